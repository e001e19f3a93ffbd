package models

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds persisted into a failed job's error record.
const (
	ErrorKindInvalidInput       = "invalid_input"
	ErrorKindNotFound           = "not_found"
	ErrorKindStorageUnavailable = "storage_unavailable"
	ErrorKindTransformTransient = "transform_transient"
	ErrorKindTransformRejected  = "transform_rejected"
	ErrorKindTimeout            = "timeout"
)

var (
	// ErrInvalidInput means a job creation request referenced missing or
	// foreign artifacts, or carried malformed fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound means the referenced job or artifact does not exist
	// within the caller's ownership scope.
	ErrNotFound = errors.New("not found")

	// ErrStorageUnavailable wraps a transient artifact store failure.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrJobAlreadyTerminal means a mutation was attempted on a job that
	// already reached completed, failed or cancelled.
	ErrJobAlreadyTerminal = errors.New("job already terminal")

	// ErrTransitionConflict means another worker advanced the job first.
	// It is resolved internally and never reaches a caller.
	ErrTransitionConflict = errors.New("transition claimed by another worker")

	// ErrInvalidTransition means the requested stage change is not an edge
	// of the pipeline state machine. Always a programming error.
	ErrInvalidTransition = errors.New("invalid stage transition")
)

// TransformError classifies a media transform failure as retryable or not.
type TransformError struct {
	Transient bool
	Err       error
}

func (e *TransformError) Error() string {
	if e.Transient {
		return fmt.Sprintf("transform failed (transient): %v", e.Err)
	}
	return fmt.Sprintf("transform rejected: %v", e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// TransientTransform wraps err as a retryable transform failure.
func TransientTransform(err error) error {
	return &TransformError{Transient: true, Err: err}
}

// RejectedTransform wraps err as a non-recoverable transform failure.
func RejectedTransform(err error) error {
	return &TransformError{Transient: false, Err: err}
}

// Recoverable reports whether err may succeed on retry.
func Recoverable(err error) bool {
	if errors.Is(err, ErrStorageUnavailable) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te *TransformError
	if errors.As(err, &te) {
		return te.Transient
	}
	return false
}

// KindOf maps err to the taxonomy kind recorded on a failed job.
func KindOf(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return ErrorKindInvalidInput
	case errors.Is(err, ErrNotFound):
		return ErrorKindNotFound
	case errors.Is(err, ErrStorageUnavailable):
		return ErrorKindStorageUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTimeout
	}
	var te *TransformError
	if errors.As(err, &te) {
		if te.Transient {
			return ErrorKindTransformTransient
		}
		return ErrorKindTransformRejected
	}
	return ErrorKindTransformRejected
}
