package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mcclellann/milkrun/pkg/store"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("ledger: validation failed")

	// ErrNotFound is returned when a customer, bill or payment does not exist.
	ErrNotFound = store.ErrNotFound

	// ErrConflict is returned when a concurrent update won; the caller may
	// retry the whole operation.
	ErrConflict = store.ErrConflict
)

// ValidationError reports a rejected input. No state has been changed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// PersistenceError wraps a store failure that is neither a missing row nor a
// conflict. The enclosing transaction has been rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// wrapStoreError classifies err for op. Validation, not-found and conflict
// errors keep their identity; anything else becomes a *PersistenceError.
func wrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &PersistenceError{Op: op, Err: err}
}

// CustomerFailure records why one customer was left out of a bulk run.
type CustomerFailure struct {
	CustomerID   uuid.UUID `json:"customer_id"`
	CustomerName string    `json:"customer_name"`
	Message      string    `json:"error"`
	Err          error     `json:"-"`
}

// BatchError collects the per-customer failures of a bulk run.
type BatchError struct {
	Failures []CustomerFailure
}

func (e *BatchError) Error() string {
	if len(e.Failures) == 1 {
		f := e.Failures[0]
		return fmt.Sprintf("customer %s: %v", f.CustomerName, f.Err)
	}
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, fmt.Sprintf("%s: %v", f.CustomerName, f.Err))
	}
	return fmt.Sprintf("%d customers failed: %s", len(e.Failures), strings.Join(msgs, "; "))
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
