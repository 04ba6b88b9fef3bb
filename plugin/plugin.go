// Package plugin provides the extension points of the billbook engine.
// A plugin implements Plugin plus any of the hook interfaces below; the
// registry discovers them once at registration.
package plugin

import (
	"context"

	"github.com/xraph/billbook/branch"
	"github.com/xraph/billbook/export"
	"github.com/xraph/billbook/invoice"
	"github.com/xraph/billbook/payment"
	"github.com/xraph/billbook/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called from Engine.Start. engine is the *billbook.Engine.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called from Engine.Stop.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Branch hooks
// ──────────────────────────────────────────────────

// OnBranchCreated is called after a branch is persisted.
type OnBranchCreated interface {
	Plugin
	OnBranchCreated(ctx context.Context, b *branch.Branch) error
}

// ──────────────────────────────────────────────────
// Invoice and payment hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated is called after an invoice is numbered and persisted.
type OnInvoiceCreated interface {
	Plugin
	OnInvoiceCreated(ctx context.Context, inv *invoice.Invoice) error
}

// OnPaymentSettled is called after a pending payment became completed or
// failed. inv carries the new status.
type OnPaymentSettled interface {
	Plugin
	OnPaymentSettled(ctx context.Context, inv *invoice.Invoice, ev payment.Evidence) error
}

// OnPaymentConflict is called when a gateway reports a status that
// disagrees with an already terminal invoice. Nothing was changed.
type OnPaymentConflict interface {
	Plugin
	OnPaymentConflict(ctx context.Context, inv *invoice.Invoice, reported payment.Status, reference string) error
}

// ──────────────────────────────────────────────────
// Export hooks
// ──────────────────────────────────────────────────

// OnBatchExported is called after a batch was delivered and marked.
type OnBatchExported interface {
	Plugin
	OnBatchExported(ctx context.Context, b *export.Batch) error
}

// OnExportFailed is called when delivery failed and the claim was released.
type OnExportFailed interface {
	Plugin
	OnExportFailed(ctx context.Context, f export.Filter, claimed int, err error) error
}

// ──────────────────────────────────────────────────
// Tax calculators
// ──────────────────────────────────────────────────

// TaxCalculator computes tax for an invoice draft whose items are priced
// but which has no number yet. The first registered calculator wins.
type TaxCalculator interface {
	Plugin
	CalculateTax(ctx context.Context, draft *invoice.Invoice, subtotal types.Money) (types.Money, error)
}
