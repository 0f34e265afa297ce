package worker

import "errors"

var errNonPositiveInterval = errors.New("interval must be positive")
