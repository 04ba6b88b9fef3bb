package billbook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/billbook/access"
	"github.com/xraph/billbook/id"
	"github.com/xraph/billbook/invoice"
	"github.com/xraph/billbook/payment"
)

// UpdatePaymentStatus settles a pending payment as completed or failed and
// records the evidence with it. Any other move, including one out of a
// terminal status, fails with a TransitionError and changes nothing.
func (e *Engine) UpdatePaymentStatus(ctx context.Context, actor access.Actor, invoiceID id.InvoiceID, to payment.Status, ev payment.Evidence) error {
	inv, err := e.paymentInvoice(ctx, actor, invoiceID)
	if err != nil {
		return err
	}
	if ev.Source == "" {
		ev.Source = payment.SourceManual
	}
	_, err = e.transition(ctx, inv, to, ev)
	return err
}

// paymentInvoice loads an invoice for actor to act on its payment.
func (e *Engine) paymentInvoice(ctx context.Context, actor access.Actor, invoiceID id.InvoiceID) (*invoice.Invoice, error) {
	if !actor.Can(access.ProcessPayments) {
		return nil, forbidden(actor, access.ProcessPayments)
	}
	inv, err := e.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if !actor.CanUseBranch(inv.BranchID) {
		return nil, forbidden(actor, access.AllBranches)
	}
	return inv, nil
}

// transition applies from the status held in inv. A concurrent writer that
// got there first turns into a TransitionError carrying the status it left.
func (e *Engine) transition(ctx context.Context, inv *invoice.Invoice, to payment.Status, ev payment.Evidence) (*invoice.Invoice, error) {
	from := inv.Payment.Status
	if !payment.CanTransition(from, to) {
		return nil, &TransitionError{InvoiceID: inv.ID, From: from, To: to}
	}
	if ev.At.IsZero() {
		ev.At = e.now()
	}
	ev.At = ev.At.UTC()

	if err := e.store.TransitionPayment(ctx, inv.ID, from, to, ev); err != nil {
		if !errors.Is(err, ErrInvalidTransition) {
			return nil, err
		}
		current, gerr := e.store.GetInvoice(ctx, inv.ID)
		if gerr != nil {
			return nil, gerr
		}
		return current, &TransitionError{InvoiceID: inv.ID, From: current.Payment.Status, To: to}
	}

	inv.Payment.Status = to
	inv.Payment.EvidenceRef = ev.Reference
	inv.Payment.EvidenceSource = ev.Source
	settled := ev.At
	inv.Payment.SettledAt = &settled

	e.logger.Info("payment settled",
		"invoice_id", inv.ID.String(),
		"number", inv.Number,
		"status", to,
		"source", ev.Source,
		"evidence", ev.Reference,
	)
	e.plugins.EmitPaymentSettled(ctx, inv, ev)
	return inv, nil
}

// AttachUPIReference gives a pending UPI or split invoice its transaction
// reference, generating one when ref is empty. A reference is set at most
// once; repeating the same reference is a no-op.
func (e *Engine) AttachUPIReference(ctx context.Context, actor access.Actor, invoiceID id.InvoiceID, ref string) (string, error) {
	inv, err := e.paymentInvoice(ctx, actor, invoiceID)
	if err != nil {
		return "", err
	}
	if !inv.Payment.Mode.AcceptsUPIReference() {
		return "", ValidationError{Field: "payment.mode", Message: fmt.Sprintf("%s payments do not take a upi reference", inv.Payment.Mode)}
	}
	if cur := inv.Payment.UPIReference; cur != "" {
		if cur == ref || ref == "" {
			return cur, nil
		}
		return "", fmt.Errorf("%w: %s", ErrReferenceAlreadySet, inv.Number)
	}
	if inv.Settled() {
		return "", &TransitionError{InvoiceID: inv.ID, From: inv.Payment.Status, To: payment.StatusPending}
	}

	if ref == "" {
		ref = payment.NewReference()
	}
	if err := e.store.AttachUPIReference(ctx, invoiceID, ref); err != nil {
		return "", err
	}

	e.logger.Info("upi reference attached", "invoice_id", invoiceID.String(), "reference", ref)
	return ref, nil
}

// VerifyUPIPayment asks the gateway about ref and applies a terminal answer
// to the invoice holding it. A pending answer changes nothing. A gateway
// error or timeout returns ExternalError and leaves the invoice as it was.
//
// When the invoice is already terminal and the gateway disagrees, the
// returned Reconciliation describes the conflict and the error is a
// TransitionError.
func (e *Engine) VerifyUPIPayment(ctx context.Context, actor access.Actor, ref string) (*payment.Reconciliation, error) {
	if !actor.Can(access.ProcessPayments) {
		return nil, forbidden(actor, access.ProcessPayments)
	}
	if e.verifier == nil {
		return nil, ErrNoVerifier
	}

	inv, err := e.store.GetInvoiceByUPIReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !actor.CanUseBranch(inv.BranchID) {
		return nil, forbidden(actor, access.AllBranches)
	}

	vctx, cancel := context.WithTimeout(ctx, e.verifyTimeout)
	defer cancel()

	start := time.Now()
	out, err := e.verifier.Verify(vctx, ref)
	if err != nil {
		e.logger.Warn("payment verification failed",
			"reference", ref,
			"elapsed", time.Since(start),
			"error", err,
		)
		return nil, &ExternalError{Op: "verify payment", Ref: ref, Err: err}
	}
	if out.Reference == "" {
		out.Reference = ref
	}

	return e.reconcile(ctx, inv, out, payment.SourceVerifier)
}

// HandleUPICallback applies a gateway push notification. The payload must
// already be authenticated by the caller; the gateway acts as no user, so
// there is no actor to check.
func (e *Engine) HandleUPICallback(ctx context.Context, out payment.Outcome) (*payment.Reconciliation, error) {
	if out.Reference == "" {
		return nil, ValidationError{Field: "reference", Message: "is required"}
	}
	inv, err := e.store.GetInvoiceByUPIReference(ctx, out.Reference)
	if err != nil {
		return nil, err
	}
	return e.reconcile(ctx, inv, out, payment.SourceCallback)
}

func (e *Engine) reconcile(ctx context.Context, inv *invoice.Invoice, out payment.Outcome, source string) (*payment.Reconciliation, error) {
	rec := &payment.Reconciliation{
		InvoiceID: inv.ID,
		Reference: out.Reference,
		Reported:  out.Status(),
		Previous:  inv.Payment.Status,
		Current:   inv.Payment.Status,
	}

	if rec.Reported == payment.StatusPending {
		return rec, nil
	}

	if inv.Settled() {
		return e.settledAnswer(ctx, inv, rec)
	}

	ev := payment.Evidence{Reference: out.EvidenceRef(), Source: source, At: e.now()}
	updated, err := e.transition(ctx, inv, rec.Reported, ev)
	if err != nil {
		var te *TransitionError
		if errors.As(err, &te) && updated != nil {
			// Another writer settled it between our read and our write.
			rec.Current = updated.Payment.Status
			return e.settledAnswer(ctx, updated, rec)
		}
		return nil, err
	}

	rec.Current = rec.Reported
	rec.Applied = true
	return rec, nil
}

// settledAnswer handles a terminal report for an invoice that is already
// terminal: agreement is acknowledged, disagreement reported.
func (e *Engine) settledAnswer(ctx context.Context, inv *invoice.Invoice, rec *payment.Reconciliation) (*payment.Reconciliation, error) {
	if inv.Payment.Status == rec.Reported {
		rec.AlreadySettled = true
		return rec, nil
	}

	e.logger.Warn("payment status conflict",
		"invoice_id", inv.ID.String(),
		"number", inv.Number,
		"stored", inv.Payment.Status,
		"reported", rec.Reported,
		"reference", rec.Reference,
	)
	e.plugins.EmitPaymentConflict(ctx, inv, rec.Reported, rec.Reference)
	return rec, &TransitionError{InvoiceID: inv.ID, From: inv.Payment.Status, To: rec.Reported}
}

// ReconcilePending verifies every pending invoice that carries a UPI
// reference and returns how many were settled. Gateway errors are logged
// and skipped; the invoice stays pending for the next sweep.
func (e *Engine) ReconcilePending(ctx context.Context) (int, error) {
	pending, err := e.store.ListInvoices(ctx, invoice.ListOpts{Status: payment.StatusPending})
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, inv := range pending {
		ref := inv.Payment.UPIReference
		if ref == "" {
			continue
		}
		rec, err := e.VerifyUPIPayment(ctx, access.System, ref)
		if err != nil {
			if ctx.Err() != nil {
				return settled, ctx.Err()
			}
			e.logger.Debug("reconcile skipped invoice", "number", inv.Number, "error", err)
			continue
		}
		if rec.Applied {
			settled++
		}
	}
	return settled, nil
}

func (e *Engine) reconcileWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := e.ReconcilePending(ctx)
			if err != nil {
				e.logger.Error("reconcile sweep failed", "error", err)
				continue
			}
			if n > 0 {
				e.logger.Info("reconcile sweep settled payments", "count", n)
			}
		}
	}
}
