// Package export moves settled-or-not invoices into an external accounting
// ledger in batches.
//
// A batch runs in four steps: claim the unexported invoices matching a
// filter, encode exactly the claimed set, deliver the artifact, and mark the
// claimed set exported. Claiming is one conditional write, so two exporters
// never hold the same invoice. Nothing is marked exported until delivery is
// confirmed.
//
// Delivery is at-least-once, not exactly-once. If the process dies after the
// sink accepted an artifact but before the invoices were marked, the claim
// lease expires and a later batch delivers the same vouchers again. The
// external ledger must deduplicate by voucher number (the invoice number).
package export

import (
	"errors"
	"time"

	"github.com/xraph/billbook/id"
	"github.com/xraph/billbook/invoice"
	"github.com/xraph/billbook/types"
)

// ErrInvalidRange is returned when To is not after From.
var ErrInvalidRange = errors.New("export: range end must be after start")

// Filter selects invoices by creation time and branch. From is inclusive,
// To exclusive. A zero bound is open.
type Filter struct {
	From     time.Time   `json:"from"`
	To       time.Time   `json:"to"`
	BranchID id.BranchID `json:"branch_id,omitempty"`
}

// Validate rejects inverted ranges.
func (f Filter) Validate() error {
	if !f.From.IsZero() && !f.To.IsZero() && !f.To.After(f.From) {
		return ErrInvalidRange
	}
	return nil
}

// Matches reports whether inv falls inside the filter.
func (f Filter) Matches(inv *invoice.Invoice) bool {
	if !f.BranchID.IsNil() && inv.BranchID.String() != f.BranchID.String() {
		return false
	}
	if !f.From.IsZero() && inv.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !inv.CreatedAt.Before(f.To) {
		return false
	}
	return true
}

// Batch records one confirmed delivery.
type Batch struct {
	types.Entity
	ID           id.ExportBatchID `json:"id"`
	Filter       Filter           `json:"filter"`
	InvoiceIDs   []id.InvoiceID   `json:"invoice_ids"`
	InvoiceCount int              `json:"invoice_count"`
	Total        types.Money      `json:"total"`
	Format       string           `json:"format"`
	Artifact     string           `json:"artifact"`
	DeliveredAt  time.Time        `json:"delivered_at"`
}

// Result is returned by a successful export.
type Result struct {
	Batch *Batch `json:"batch"`
	// Numbers lists the exported invoice numbers in voucher order.
	Numbers []string `json:"numbers"`
	// Marked is how many invoices were flagged. It is lower than
	// len(Numbers) only if a claim expired while the batch was in flight.
	Marked int64 `json:"marked"`
}

// Status counts invoices inside a filter.
type Status struct {
	Total    int64 `json:"total"`
	Exported int64 `json:"exported"`
	Pending  int64 `json:"pending"`
}
