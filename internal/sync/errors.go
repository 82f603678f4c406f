package sync

import (
	"errors"
	"fmt"

	"trackmage-bridge/internal/trackmage"
)

// SyncError reports a remote sync attempt that failed after all applicable
// fallbacks were exhausted. Status carries the remote HTTP status when the
// underlying failure was an API error.
type SyncError struct {
	Message string
	Status  int
	Err     error
}

func (e *SyncError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	}
	return e.Message
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// syncErrorf wraps a failure, lifting the HTTP status out of an APIError
// when one is in the chain.
func syncErrorf(err error, format string, args ...interface{}) error {
	e := &SyncError{Message: fmt.Sprintf(format, args...), Err: err}
	var apiErr *trackmage.APIError
	if errors.As(err, &apiErr) {
		e.Status = apiErr.Status
	}
	return e
}
