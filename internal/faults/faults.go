// Package faults carries the coded error type shared by the entity services.
package faults

import "fmt"

// ServiceError pairs a stable machine-readable code with the underlying cause.
// Codes take the form "<operation>.<reason>", e.g. "journal.upsert.query_failed".
type ServiceError struct {
	code string
	err  error
}

func New(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}
