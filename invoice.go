package billbook

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/billbook/access"
	"github.com/xraph/billbook/id"
	"github.com/xraph/billbook/invoice"
	"github.com/xraph/billbook/payment"
	"github.com/xraph/billbook/sequence"
	"github.com/xraph/billbook/types"
)

// CreateInvoiceInput is what a cashier submits.
type CreateInvoiceInput struct {
	// BranchID defaults to the actor's branch.
	BranchID id.BranchID
	Customer invoice.Customer
	Items    []invoice.LineItem
	// Tax overrides the registered tax calculator. Nil means calculate.
	Tax      *types.Money
	Payment  payment.Intent
	Metadata map[string]string
}

// CreateInvoice prices, numbers and stores a new invoice.
//
// All input is validated and the payment recorded before a number is
// allocated, so rejected input never consumes a sequence value. If the
// insert itself fails after allocation the number is lost and the error is
// an AllocationError.
func (e *Engine) CreateInvoice(ctx context.Context, actor access.Actor, in CreateInvoiceInput) (*invoice.Invoice, error) {
	if !actor.Can(access.CreateInvoices) {
		return nil, forbidden(actor, access.CreateInvoices)
	}

	branchID := in.BranchID
	if branchID.IsNil() {
		branchID = actor.BranchID
	}
	if branchID.IsNil() {
		return nil, ValidationError{Field: "branch_id", Message: "is required"}
	}
	if !actor.CanUseBranch(branchID) {
		return nil, forbidden(actor, access.AllBranches)
	}

	var invalid MultiError
	addFieldErrors(&invalid, in.Customer.Validate())
	items, subtotal, err := invoice.PriceItems(in.Items, e.currency)
	addFieldErrors(&invalid, err)
	if invalid.HasErrors() {
		return nil, invalid
	}

	now := e.now()
	inv := &invoice.Invoice{
		Entity:        types.NewEntityAt(now),
		ID:            id.NewInvoiceID(),
		Customer:      in.Customer,
		Items:         items,
		Subtotal:      subtotal,
		BranchID:      branchID,
		CreatedBy:     actor.UserID,
		CreatedByName: actor.Name,
		Metadata:      in.Metadata,
	}

	tax, err := e.computeTax(ctx, inv, in.Tax)
	if err != nil {
		return nil, err
	}
	inv.Tax = tax
	if inv.Total, err = subtotal.CheckedAdd(tax); err != nil {
		return nil, ValidationError{Field: "tax", Message: "total is too large"}
	}

	inv.Payment, err = payment.Record(in.Payment, inv.Total, now)
	if err != nil {
		return nil, paymentError(err)
	}
	if ref := inv.Payment.UPIReference; ref != "" {
		if _, err := e.store.GetInvoiceByUPIReference(ctx, ref); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateReference, ref)
		} else if !errors.Is(err, ErrInvoiceNotFound) {
			return nil, err
		}
	}

	b, err := e.activeBranch(ctx, branchID, now)
	if err != nil {
		return nil, err
	}
	inv.BranchCode = b.Code

	inv.Number, err = e.allocate(ctx, b, now)
	if err != nil {
		return nil, err
	}

	if err := e.store.CreateInvoice(ctx, inv); err != nil {
		e.logger.Error("invoice insert failed after allocation",
			"number", inv.Number,
			"branch", b.Code,
			"error", err,
		)
		return nil, &AllocationError{BranchID: b.ID, Period: sequence.Period(now, e.location), Err: err}
	}

	e.logger.Info("invoice created",
		"invoice_id", inv.ID.String(),
		"number", inv.Number,
		"branch", inv.BranchCode,
		"total", inv.Total.String(),
		"mode", inv.Payment.Mode,
	)
	e.plugins.EmitInvoiceCreated(ctx, inv)
	return inv, nil
}

func (e *Engine) computeTax(ctx context.Context, draft *invoice.Invoice, override *types.Money) (types.Money, error) {
	tax := types.Zero(e.currency)

	switch {
	case override != nil:
		tax = override.In(e.currency)
	default:
		calc := e.plugins.TaxCalculator()
		if calc == nil {
			return tax, nil
		}
		t, err := calc.CalculateTax(ctx, draft, draft.Subtotal)
		if err != nil {
			return tax, fmt.Errorf("billbook: tax calculator %s: %w", calc.Name(), err)
		}
		tax = t.In(e.currency)
	}

	if tax.Currency != e.currency {
		return tax, ValidationError{Field: "tax", Message: "currency must be " + e.currency}
	}
	if tax.IsNegative() {
		return tax, ValidationError{Field: "tax", Message: "must not be negative"}
	}
	return tax, nil
}

// GetInvoice returns an invoice by ID.
func (e *Engine) GetInvoice(ctx context.Context, invoiceID id.InvoiceID) (*invoice.Invoice, error) {
	return e.store.GetInvoice(ctx, invoiceID)
}

// GetInvoiceByNumber returns an invoice by its number.
func (e *Engine) GetInvoiceByNumber(ctx context.Context, number string) (*invoice.Invoice, error) {
	return e.store.GetInvoiceByNumber(ctx, number)
}

// ListInvoices lists invoices visible to actor. Actors bound to a branch
// only see that branch.
func (e *Engine) ListInvoices(ctx context.Context, actor access.Actor, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	if !actor.Can(access.ViewInvoices) {
		return nil, forbidden(actor, access.ViewInvoices)
	}
	opts, err := scopeToBranch(actor, opts)
	if err != nil {
		return nil, err
	}
	return e.store.ListInvoices(ctx, opts)
}

// MarkPrinted records that the invoice went to the printer.
func (e *Engine) MarkPrinted(ctx context.Context, invoiceID id.InvoiceID) error {
	return e.store.MarkInvoicePrinted(ctx, invoiceID)
}

func scopeToBranch(actor access.Actor, opts invoice.ListOpts) (invoice.ListOpts, error) {
	if actor.Can(access.AllBranches) {
		return opts, nil
	}
	if opts.BranchID.IsNil() {
		opts.BranchID = actor.BranchID
	}
	if !actor.CanUseBranch(opts.BranchID) {
		return opts, forbidden(actor, access.AllBranches)
	}
	return opts, nil
}

// addFieldErrors adds err to m, turning each invoice field error it holds
// into a ValidationError.
func addFieldErrors(m *MultiError, err error) {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			addFieldErrors(m, e)
		}
		return
	}
	var fe *invoice.FieldError
	if errors.As(err, &fe) {
		m.Add(ValidationError{Field: fe.Field, Message: fe.Message})
		return
	}
	m.Add(err)
}

func paymentError(err error) error {
	var mm *payment.MismatchError
	switch {
	case errors.As(err, &mm):
		return &AmountMismatchError{Expected: mm.Expected, Got: mm.Got}
	case errors.Is(err, payment.ErrInvalidMode),
		errors.Is(err, payment.ErrNegativeAmount),
		errors.Is(err, payment.ErrAmountRange),
		errors.Is(err, payment.ErrCurrency):
		return ValidationError{Field: "payment", Message: err.Error()}
	}
	return err
}
