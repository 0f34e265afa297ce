// Package migrations embeds the SQL migration files applied by goose.
//
// Files follow the naming convention YYYYMMDDHHMMSS_description.sql and are
// applied in order at startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
