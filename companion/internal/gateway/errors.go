package gateway

import (
	"errors"
	"fmt"
)

// ErrUnavailable marks transient failures: connectivity errors, timeouts
// and 5xx responses. Batches stay queued and are retried later.
var ErrUnavailable = errors.New("server unavailable")

// RejectedError marks definitive 4xx rejections — the session is unknown or
// the payload is invalid. Retrying would only grow the backlog.
type RejectedError struct {
	Status int
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("server rejected request (status %d)", e.Status)
}

// IsRejected reports whether err is a definitive rejection.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// IsUnavailable reports whether err is transient and worth retrying.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
