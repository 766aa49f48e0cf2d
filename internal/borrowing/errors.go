package borrowing

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrUnavailable           = errors.New("book is not available")
	ErrAlreadyReturned       = errors.New("loan already returned")
	ErrAuthenticationMissing = errors.New("authentication required")
	ErrAccountSuspended      = errors.New("account suspended")
	ErrOperationFailed       = errors.New("borrowing operation failed")

	// ErrOwnershipMismatch is reported as not-found so a caller cannot discover
	// loans belonging to others.
	ErrOwnershipMismatch = fmt.Errorf("%w: loan does not belong to the current account", ErrNotFound)
)

// OperationError wraps an unexpected store failure. It matches
// ErrOperationFailed with errors.Is and unwraps to the cause.
type OperationError struct {
	Op  string
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrOperationFailed, e.Op, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

func (e *OperationError) Is(target error) bool { return target == ErrOperationFailed }

var taxonomy = []error{
	ErrNotFound, ErrUnavailable, ErrAlreadyReturned,
	ErrAuthenticationMissing, ErrAccountSuspended, ErrOperationFailed,
}

// fail passes domain errors through unchanged and wraps everything else.
func fail(op string, err error) error {
	for _, t := range taxonomy {
		if errors.Is(err, t) {
			return err
		}
	}
	return &OperationError{Op: op, Err: err}
}
