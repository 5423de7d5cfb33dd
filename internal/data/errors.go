package data

import (
	"errors"
	"fmt"
)

var (
	ErrConfigInvalid     = errors.New("config invalid")
	ErrNotConnected      = errors.New("network not connected")
	ErrAlreadyRunning    = errors.New("updater already running")
	ErrVersionCheck      = errors.New("version check failed")
	ErrInsufficientSpace = errors.New("not enough space for update")
	ErrEmptySource       = errors.New("content length is zero")
	ErrDownloadFailed    = errors.New("download failed")
	ErrWriteIncomplete   = errors.New("update write incomplete")
	ErrSizeMismatch      = errors.New("firmware size mismatch")
	ErrNotFound          = errors.New("attempt not found")
)

// StatusError reports a non-200 response from the version or firmware endpoint.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string { return fmt.Sprintf("HTTP %d", e.Code) }

// StatusCode returns the HTTP status carried by err, or 0 when err does not
// wrap a StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
