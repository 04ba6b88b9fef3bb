package billbook

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/billbook/id"
	"github.com/xraph/billbook/payment"
	"github.com/xraph/billbook/types"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("billbook: not found")
	ErrAlreadyExists = errors.New("billbook: already exists")
	ErrForbidden     = errors.New("billbook: forbidden")

	// Taxonomy roots. Typed errors below unwrap to one of these.
	ErrValidation          = errors.New("billbook: validation failed")
	ErrAllocation          = errors.New("billbook: invoice number allocation failed")
	ErrInvalidTransition   = errors.New("billbook: invalid payment status transition")
	ErrAmountMismatch      = errors.New("billbook: payment amounts do not match invoice total")
	ErrNoPendingInvoices   = errors.New("billbook: no pending invoices to export")
	ErrExternalUnavailable = errors.New("billbook: external system unavailable")

	// Branch errors
	ErrBranchNotFound = errors.New("billbook: branch not found")
	ErrBranchInactive = errors.New("billbook: branch is inactive")

	// Invoice and payment errors
	ErrInvoiceNotFound     = errors.New("billbook: invoice not found")
	ErrDuplicateReference  = errors.New("billbook: upi reference already used by another invoice")
	ErrReferenceAlreadySet = errors.New("billbook: invoice already has a upi reference")
	ErrNoVerifier          = errors.New("billbook: no payment verifier configured")

	// Export errors
	ErrBatchNotFound = errors.New("billbook: export batch not found")

	// Store errors
	ErrStoreClosed = errors.New("billbook: store is closed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("billbook: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e ValidationError) Unwrap() error { return ErrValidation }

// AllocationError reports a numbering failure. The invoice is not created.
type AllocationError struct {
	BranchID id.BranchID
	Period   string
	Err      error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("billbook: allocate number for branch %s period %s: %v", e.BranchID, e.Period, e.Err)
}

// Is matches ErrAllocation.
func (e *AllocationError) Is(target error) bool { return target == ErrAllocation }

func (e *AllocationError) Unwrap() error { return e.Err }

// TransitionError reports a rejected payment status change. The invoice is
// left exactly as it was.
type TransitionError struct {
	InvoiceID id.InvoiceID
	From      payment.Status
	To        payment.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("billbook: invoice %s: cannot move payment from %s to %s", e.InvoiceID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// AmountMismatchError reports split instrument amounts that do not add up.
type AmountMismatchError struct {
	Expected types.Money
	Got      types.Money
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("billbook: split amounts sum to %s, invoice total is %s", e.Got, e.Expected)
}

func (e *AmountMismatchError) Unwrap() error { return ErrAmountMismatch }

// ExternalError wraps a failure or timeout of the payment verifier or the
// export sink. Nothing was guessed forward; callers may retry.
type ExternalError struct {
	Op  string
	Ref string
	Err error
}

func (e *ExternalError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("billbook: %s %s: %v", e.Op, e.Ref, e.Err)
	}
	return fmt.Sprintf("billbook: %s: %v", e.Op, e.Err)
}

// Is matches ErrExternalUnavailable.
func (e *ExternalError) Is(target error) bool { return target == ErrExternalUnavailable }

func (e *ExternalError) Unwrap() error { return e.Err }

// MultiError collects every rejected field of one request.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "billbook: no errors"
	case 1:
		return e.Errors[0].Error()
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("billbook: %d errors: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes every collected error to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add appends err unless it is nil.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrBranchNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrBatchNotFound)
}

// IsValidation reports caller-side input errors that must not be retried.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrAmountMismatch)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrExternalUnavailable)
}
