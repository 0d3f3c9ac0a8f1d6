package model

import "fmt"

// ValidationError is returned for input rejected before any network call,
// such as an empty message or a non-PDF upload.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// TransportError covers network failures, non-success HTTP statuses and
// decode failures while reading a response.
type TransportError struct {
	Op         string // "chat" or "upload"
	StatusCode int    // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
		}
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PreconditionError is returned when an operation would break a store
// invariant. The operation is refused and state is left unchanged.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return e.Reason
}
