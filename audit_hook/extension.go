// Package audithook bridges billbook lifecycle events to an audit trail backend.
//
// The audit backend is reached through the local Recorder interface, so
// this package has no dependency on any particular trail store. Wrap a
// function in RecorderFunc to adapt one at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/billbook/branch"
	"github.com/xraph/billbook/export"
	"github.com/xraph/billbook/invoice"
	"github.com/xraph/billbook/payment"
	"github.com/xraph/billbook/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin            = (*Extension)(nil)
	_ plugin.OnBranchCreated   = (*Extension)(nil)
	_ plugin.OnInvoiceCreated  = (*Extension)(nil)
	_ plugin.OnPaymentSettled  = (*Extension)(nil)
	_ plugin.OnPaymentConflict = (*Extension)(nil)
	_ plugin.OnBatchExported   = (*Extension)(nil)
	_ plugin.OnExportFailed    = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry of the audit trail.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges billbook lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Branch hooks
// ──────────────────────────────────────────────────

// OnBranchCreated implements plugin.OnBranchCreated.
func (e *Extension) OnBranchCreated(ctx context.Context, b *branch.Branch) error {
	return e.record(ctx, ActionBranchCreated, SeverityInfo, OutcomeSuccess,
		ResourceBranch, b.ID.String(), CategoryAdmin, nil,
		"code", b.Code,
		"name", b.Name,
	)
}

// ──────────────────────────────────────────────────
// Invoice and payment hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated implements plugin.OnInvoiceCreated.
func (e *Extension) OnInvoiceCreated(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceCreated, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryBilling, nil,
		"number", inv.Number,
		"branch", inv.BranchCode,
		"total", inv.Total.String(),
		"payment_mode", string(inv.Payment.Mode),
		"created_by", inv.CreatedBy.String(),
	)
}

// OnPaymentSettled implements plugin.OnPaymentSettled.
func (e *Extension) OnPaymentSettled(ctx context.Context, inv *invoice.Invoice, ev payment.Evidence) error {
	action, severity, outcome := ActionPaymentCompleted, SeverityInfo, OutcomeSuccess
	if inv.Payment.Status == payment.StatusFailed {
		action, severity, outcome = ActionPaymentFailed, SeverityWarning, OutcomeFailure
	}
	return e.record(ctx, action, severity, outcome,
		ResourcePayment, inv.ID.String(), CategoryPayment, nil,
		"number", inv.Number,
		"reference", ev.Reference,
		"source", ev.Source,
	)
}

// OnPaymentConflict implements plugin.OnPaymentConflict. The gateway and
// the ledger disagree on a settled payment, which needs a human.
func (e *Extension) OnPaymentConflict(ctx context.Context, inv *invoice.Invoice, reported payment.Status, reference string) error {
	return e.record(ctx, ActionPaymentConflict, SeverityCritical, OutcomeFailure,
		ResourcePayment, inv.ID.String(), CategoryPayment, nil,
		"number", inv.Number,
		"recorded", string(inv.Payment.Status),
		"reported", string(reported),
		"reference", reference,
	)
}

// ──────────────────────────────────────────────────
// Export hooks
// ──────────────────────────────────────────────────

// OnBatchExported implements plugin.OnBatchExported.
func (e *Extension) OnBatchExported(ctx context.Context, b *export.Batch) error {
	return e.record(ctx, ActionBatchExported, SeverityInfo, OutcomeSuccess,
		ResourceBatch, b.ID.String(), CategoryIntegration, nil,
		"invoices", b.InvoiceCount,
		"total", b.Total.String(),
		"format", b.Format,
		"artifact", b.Artifact,
	)
}

// OnExportFailed implements plugin.OnExportFailed.
func (e *Extension) OnExportFailed(ctx context.Context, f export.Filter, claimed int, err error) error {
	return e.record(ctx, ActionExportFailed, SeverityError, OutcomeFailure,
		ResourceBatch, "", CategoryIntegration, err,
		"claimed", claimed,
		"branch_id", f.BranchID.String(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
