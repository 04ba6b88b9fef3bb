package billbook

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/xraph/billbook/access"
	"github.com/xraph/billbook/export"
	"github.com/xraph/billbook/id"
	"github.com/xraph/billbook/invoice"
	"github.com/xraph/billbook/types"
)

// ExportBatch claims the unexported invoices matching f, delivers them as
// one artifact and marks them exported. It fails with ErrNoPendingInvoices
// when there is nothing to claim.
//
// The claim is a single conditional write, so concurrent calls with
// overlapping filters split the invoices between them and never share one.
// If delivery fails or times out the claim is released, nothing is marked,
// and the error is an ExternalError. See package export for the
// at-least-once boundary between delivery and marking.
func (e *Engine) ExportBatch(ctx context.Context, actor access.Actor, f export.Filter) (*export.Result, error) {
	if !actor.Can(access.ExportLedger) {
		return nil, forbidden(actor, access.ExportLedger)
	}
	if err := f.Validate(); err != nil {
		return nil, ValidationError{Field: "filter", Message: err.Error()}
	}

	token := uuid.NewString()
	now := e.now()

	claimed, err := e.store.ClaimForExport(ctx, f, token, now.UTC(), now.Add(-e.exportClaimTTL).UTC())
	if err != nil {
		return nil, fmt.Errorf("billbook: claim invoices for export: %w", err)
	}
	if claimed == 0 {
		return nil, ErrNoPendingInvoices
	}

	invoices, err := e.store.ListClaimed(ctx, token)
	if err != nil {
		e.release(ctx, token)
		return nil, fmt.Errorf("billbook: load claimed invoices: %w", err)
	}

	artifact, total, err := e.encode(invoices)
	if err != nil {
		e.release(ctx, token)
		return nil, err
	}

	location, err := e.deliver(ctx, artifact)
	if err != nil {
		e.release(ctx, token)
		e.logger.Warn("export delivery failed",
			"claimed", len(invoices),
			"artifact", artifact.Name,
			"error", err,
		)
		e.plugins.EmitExportFailed(ctx, f, len(invoices), err)
		return nil, &ExternalError{Op: "deliver export", Ref: artifact.Name, Err: err}
	}

	batch := &export.Batch{
		Entity:       types.NewEntityAt(now),
		ID:           id.NewExportBatchID(),
		Filter:       f,
		InvoiceIDs:   make([]id.InvoiceID, 0, len(invoices)),
		InvoiceCount: len(invoices),
		Total:        total,
		Format:       artifact.Format,
		Artifact:     location,
		DeliveredAt:  e.now().UTC(),
	}
	numbers := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		batch.InvoiceIDs = append(batch.InvoiceIDs, inv.ID)
		numbers = append(numbers, inv.Number)
	}

	// From here on the artifact is out. A failure leaves the claim to
	// expire and the invoices to be delivered again.
	marked, err := e.store.MarkExported(ctx, token, batch.ID, batch.DeliveredAt)
	if err != nil {
		e.logger.Error("export delivered but not marked",
			"batch_id", batch.ID.String(),
			"artifact", location,
			"error", err,
		)
		return nil, fmt.Errorf("billbook: mark batch %s exported: %w", batch.ID, err)
	}
	if marked != int64(len(invoices)) {
		e.logger.Warn("export claim partly expired before marking",
			"batch_id", batch.ID.String(),
			"delivered", len(invoices),
			"marked", marked,
		)
	}

	if err := e.store.RecordBatch(ctx, batch); err != nil {
		// The invoices are already flagged; only the audit record is missing.
		e.logger.Error("export batch record failed", "batch_id", batch.ID.String(), "error", err)
	}

	e.logger.Info("export batch delivered",
		"batch_id", batch.ID.String(),
		"invoices", batch.InvoiceCount,
		"total", total.String(),
		"artifact", location,
	)
	e.plugins.EmitBatchExported(ctx, batch)

	return &export.Result{Batch: batch, Numbers: numbers, Marked: marked}, nil
}

func (e *Engine) encode(invoices []*invoice.Invoice) (export.Artifact, types.Money, error) {
	total := types.Zero(e.currency)
	vouchers := make([]export.Voucher, 0, len(invoices))
	for _, inv := range invoices {
		vouchers = append(vouchers, export.VoucherFrom(inv, e.location))
		if inv.Total.SameCurrency(total) {
			total = total.Add(inv.Total)
		}
	}

	var buf bytes.Buffer
	if err := e.encoder.Encode(&buf, vouchers); err != nil {
		return export.Artifact{}, total, err
	}

	return export.Artifact{
		Name:   export.ArtifactName(e.encoder.Format(), e.encoder.Extension(), e.now()),
		Format: e.encoder.Format(),
		Data:   buf.Bytes(),
		Count:  len(vouchers),
	}, total, nil
}

// deliver runs the sink under DeliveryTimeout. A sink that ignores its
// context still cannot report success after the deadline.
func (e *Engine) deliver(ctx context.Context, a export.Artifact) (string, error) {
	dctx, cancel := context.WithTimeout(ctx, e.deliveryTimeout)
	defer cancel()

	location, err := e.sink.Deliver(dctx, a)
	if err != nil {
		return "", err
	}
	if err := dctx.Err(); err != nil {
		return "", err
	}
	return location, nil
}

func (e *Engine) release(ctx context.Context, token string) {
	// Use a fresh context: the caller's may be the reason we are here.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.deliveryTimeout)
	defer cancel()

	if err := e.store.ReleaseClaim(rctx, token); err != nil {
		e.logger.Error("export claim release failed; it will expire", "error", err)
	}
}

// ExportStatus counts exported and pending invoices in f.
func (e *Engine) ExportStatus(ctx context.Context, actor access.Actor, f export.Filter) (export.Status, error) {
	if !actor.Can(access.ExportLedger) {
		return export.Status{}, forbidden(actor, access.ExportLedger)
	}
	if err := f.Validate(); err != nil {
		return export.Status{}, ValidationError{Field: "filter", Message: err.Error()}
	}
	return e.store.CountExportStatus(ctx, f)
}

// ListExportBatches returns the most recent batches, newest first.
func (e *Engine) ListExportBatches(ctx context.Context, limit int) ([]*export.Batch, error) {
	return e.store.ListBatches(ctx, limit)
}
