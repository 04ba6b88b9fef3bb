package invoice

import (
	"context"
	"time"

	"github.com/xraph/billbook/id"
	"github.com/xraph/billbook/payment"
)

// Store persists invoices. Implementations must make TransitionPayment and
// AttachUPIReference single conditional writes.
type Store interface {
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, invoiceID id.InvoiceID) (*Invoice, error)
	GetInvoiceByNumber(ctx context.Context, number string) (*Invoice, error)
	GetInvoiceByUPIReference(ctx context.Context, ref string) (*Invoice, error)
	ListInvoices(ctx context.Context, opts ListOpts) ([]*Invoice, error)
	MarkInvoicePrinted(ctx context.Context, invoiceID id.InvoiceID) error

	// TransitionPayment moves the payment status from -> to and records the
	// evidence in the same write. It fails with ErrInvalidTransition when the
	// stored status is no longer from.
	TransitionPayment(ctx context.Context, invoiceID id.InvoiceID, from, to payment.Status, ev payment.Evidence) error

	// AttachUPIReference sets the reference on a pending invoice that has
	// none yet.
	AttachUPIReference(ctx context.Context, invoiceID id.InvoiceID, ref string) error
}

// ListOpts filters invoice listings. Start is inclusive, End exclusive.
// Results are ordered by creation time, oldest first.
type ListOpts struct {
	BranchID  id.BranchID
	CreatedBy id.UserID
	Start     time.Time
	End       time.Time
	Mode      payment.Mode
	Status    payment.Status
	Exported  *bool
	Limit     int
	Offset    int
}

// Matches reports whether inv passes every filter in o. Limit and Offset
// are not considered.
func (o ListOpts) Matches(inv *Invoice) bool {
	if !o.BranchID.IsNil() && inv.BranchID.String() != o.BranchID.String() {
		return false
	}
	if !o.CreatedBy.IsNil() && inv.CreatedBy.String() != o.CreatedBy.String() {
		return false
	}
	if !o.Start.IsZero() && inv.CreatedAt.Before(o.Start) {
		return false
	}
	if !o.End.IsZero() && !inv.CreatedAt.Before(o.End) {
		return false
	}
	if o.Mode != "" && inv.Payment.Mode != o.Mode {
		return false
	}
	if o.Status != "" && inv.Payment.Status != o.Status {
		return false
	}
	if o.Exported != nil && inv.Exported != *o.Exported {
		return false
	}
	return true
}
