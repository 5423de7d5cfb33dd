package v1

import "errors"

var (
	ErrContentType = errors.New("Content-Type must be application/json")
	ErrNotRunning  = errors.New("updater not running")
	ErrAttemptID   = errors.New("attempt id is required")
)
