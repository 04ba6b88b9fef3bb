// Package store defines the unified storage interface of the billbook
// engine. Backends live in the subpackages memory, postgres, sqlite and
// mongo.
package store

import (
	"context"
	"time"

	"github.com/xraph/billbook/branch"
	"github.com/xraph/billbook/export"
	"github.com/xraph/billbook/id"
	"github.com/xraph/billbook/invoice"
	"github.com/xraph/billbook/payment"
	"github.com/xraph/billbook/sequence"
)

// Store is the unified storage interface for all billbook entities.
// Methods are declared explicitly rather than by embedding so that every
// backend has one flat checklist.
type Store interface {
	// Branch methods
	CreateBranch(ctx context.Context, b *branch.Branch) error
	GetBranch(ctx context.Context, branchID id.BranchID) (*branch.Branch, error)
	GetBranchByCode(ctx context.Context, code string) (*branch.Branch, error)
	ListBranches(ctx context.Context, opts branch.ListOpts) ([]*branch.Branch, error)
	SetBranchActive(ctx context.Context, branchID id.BranchID, active bool) error

	// Sequence methods
	NextInvoiceSequence(ctx context.Context, branchID id.BranchID, period string) (int64, error)

	// Invoice methods
	CreateInvoice(ctx context.Context, inv *invoice.Invoice) error
	GetInvoice(ctx context.Context, invoiceID id.InvoiceID) (*invoice.Invoice, error)
	GetInvoiceByNumber(ctx context.Context, number string) (*invoice.Invoice, error)
	GetInvoiceByUPIReference(ctx context.Context, ref string) (*invoice.Invoice, error)
	ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error)
	MarkInvoicePrinted(ctx context.Context, invoiceID id.InvoiceID) error
	TransitionPayment(ctx context.Context, invoiceID id.InvoiceID, from, to payment.Status, ev payment.Evidence) error
	AttachUPIReference(ctx context.Context, invoiceID id.InvoiceID, ref string) error

	// Export methods
	ClaimForExport(ctx context.Context, f export.Filter, token string, now, staleBefore time.Time) (int64, error)
	ListClaimed(ctx context.Context, token string) ([]*invoice.Invoice, error)
	MarkExported(ctx context.Context, token string, batchID id.ExportBatchID, at time.Time) (int64, error)
	ReleaseClaim(ctx context.Context, token string) error
	RecordBatch(ctx context.Context, b *export.Batch) error
	GetBatch(ctx context.Context, batchID id.ExportBatchID) (*export.Batch, error)
	ListBatches(ctx context.Context, limit int) ([]*export.Batch, error)
	CountExportStatus(ctx context.Context, f export.Filter) (export.Status, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Compile-time checks that Store satisfies every domain store.
var (
	_ branch.Store     = Store(nil)
	_ sequence.Counter = Store(nil)
	_ invoice.Store    = Store(nil)
	_ export.Store     = Store(nil)
)
