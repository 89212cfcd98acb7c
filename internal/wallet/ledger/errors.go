package ledger

import (
	"context"

	"github.com/pkg/errors"
)

// classifiedError marks an error as retryable or not
type classifiedError struct {
	err       error
	transient bool
}

func (e *classifiedError) Error() string {
	return e.err.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.err
}

func (e *classifiedError) Cause() error {
	return e.err
}

// Transient marks err as retryable (network, timeout, node unavailable)
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, transient: true}
}

// Permanent marks err as not retryable (malformed transaction, rejected by the node)
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, transient: false}
}

// IsTransient reports whether err is worth retrying. Unclassified errors are treated as transient,
// context cancellation never is.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.transient
	}

	return true
}
