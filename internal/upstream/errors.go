package upstream

import (
	"errors"
	"fmt"
)

// NetworkError is a transport failure or an unsuccessful response from the
// product backend.
type NetworkError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": request failed"
	}
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// DegradedReadError marks a failed status read. Callers still receive an
// empty status list alongside it.
type DegradedReadError struct {
	Err error
}

func (e *DegradedReadError) Error() string {
	return fmt.Sprintf("connection status degraded: %v", e.Err)
}

func (e *DegradedReadError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by a NetworkError, or 0.
func StatusCode(err error) int {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr.Status
	}
	return 0
}
