package db

import "time"

// Database connection constants
const (
	// ConnectionRetrySleep is the sleep duration between connection retries
	ConnectionRetrySleep = 2 * time.Second
	// maxConnectionRetries is the number of retries for initial connection
	maxConnectionRetries = 10

	defaultMaxConns          = 10
	defaultMinConns          = 2
	defaultMaxConnIdleTime   = 30 * time.Minute
	defaultMaxConnLifetime   = time.Hour
	defaultHealthCheckPeriod = time.Minute

	migrationLockID = 1000
)

// Table and column names
const (
	tableArticles        = "articles"
	tableAcquisitionLogs = "acquisition_logs"

	colID        = "id"
	colStatus    = "status"
	colCreatedAt = "created_at"
	colLayer     = "layer"
)

// maxStoredFailureReason caps the failure reason column.
const maxStoredFailureReason = 500
