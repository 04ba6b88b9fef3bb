// Package invoice defines the invoice aggregate: the customer snapshot,
// ordered line items, fixed totals and the payment record.
//
// Totals are computed once at creation and never recomputed. An invoice is
// never deleted or renumbered; only its payment, printed and export fields
// change afterwards.
package invoice

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/billbook/id"
	"github.com/xraph/billbook/payment"
	"github.com/xraph/billbook/types"
)

// Invoice is an immutable financial record with a small set of mutable
// bookkeeping flags.
type Invoice struct {
	types.Entity
	ID            id.InvoiceID      `json:"id"`
	Number        string            `json:"number"`
	Customer      Customer          `json:"customer"`
	Items         []LineItem        `json:"items"`
	Subtotal      types.Money       `json:"subtotal"`
	Tax           types.Money       `json:"tax"`
	Total         types.Money       `json:"total"`
	Payment       payment.Payment   `json:"payment"`
	BranchID      id.BranchID       `json:"branch_id"`
	BranchCode    string            `json:"branch_code"`
	CreatedBy     id.UserID         `json:"created_by"`
	CreatedByName string            `json:"created_by_name,omitempty"`
	Printed       bool              `json:"printed"`
	Exported      bool              `json:"exported_to_ledger"`
	ExportBatchID id.ExportBatchID  `json:"export_batch_id,omitempty"`
	ExportedAt    *time.Time        `json:"exported_at,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Customer is copied onto the invoice at creation. Later edits to the
// customer elsewhere do not touch issued invoices.
type Customer struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

// LineItem is one product row. Amount = UnitPrice*Quantity - Discount.
type LineItem struct {
	ID        id.LineItemID `json:"id"`
	ProductID id.ProductID  `json:"product_id"`
	Name      string        `json:"name"`
	Quantity  int64         `json:"quantity"`
	UnitPrice types.Money   `json:"unit_price"`
	Discount  types.Money   `json:"discount"`
	Amount    types.Money   `json:"amount"`
}

// FieldError names the offending input field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invoice: %s: %s", e.Field, e.Message)
}

// Validate checks the required customer fields.
func (c Customer) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return &FieldError{Field: "customer.name", Message: "is required"}
	}
	return nil
}

// PriceItems validates items in order, fills in IDs and line amounts, and
// returns the priced copy together with the subtotal. Every amount must be
// in currency. Each rejected line contributes one *FieldError; they come
// back joined so a caller sees every bad line at once.
func PriceItems(items []LineItem, currency string) ([]LineItem, types.Money, error) {
	subtotal := types.Zero(currency)
	if len(items) == 0 {
		return nil, subtotal, &FieldError{Field: "items", Message: "at least one item is required"}
	}

	var errs []error
	priced := make([]LineItem, len(items))
	for i, it := range items {
		it, err := priceItem(it, fmt.Sprintf("items[%d]", i), subtotal.Currency)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if subtotal, err = subtotal.CheckedAdd(it.Amount); err != nil {
			return nil, types.Zero(currency), &FieldError{Field: "items", Message: "subtotal is too large"}
		}
		priced[i] = it
	}
	if len(errs) > 0 {
		return nil, types.Zero(currency), errors.Join(errs...)
	}
	return priced, subtotal, nil
}

func priceItem(it LineItem, field, currency string) (LineItem, error) {
	if it.Quantity < 1 {
		return it, &FieldError{Field: field + ".quantity", Message: fmt.Sprintf("must be at least 1, got %d", it.Quantity)}
	}
	if strings.TrimSpace(it.Name) == "" {
		return it, &FieldError{Field: field + ".name", Message: "is required"}
	}

	it.UnitPrice = it.UnitPrice.In(currency)
	it.Discount = it.Discount.In(currency)
	if it.UnitPrice.Currency != currency || it.Discount.Currency != currency {
		return it, &FieldError{Field: field, Message: "currency must be " + currency}
	}
	if it.UnitPrice.IsNegative() {
		return it, &FieldError{Field: field + ".unit_price", Message: "must not be negative"}
	}

	gross, err := it.UnitPrice.CheckedMultiply(it.Quantity)
	if err != nil {
		return it, &FieldError{Field: field + ".quantity", Message: "line amount is too large"}
	}
	if it.Discount.IsNegative() || it.Discount.GreaterThan(gross) {
		return it, &FieldError{Field: field + ".discount", Message: "must be between 0 and " + gross.String()}
	}

	if it.ID.IsNil() {
		it.ID = id.NewLineItemID()
	}
	it.Amount = gross.Subtract(it.Discount)
	return it, nil
}

// Balanced reports whether Total == Subtotal + Tax.
func (inv *Invoice) Balanced() bool {
	if !inv.Subtotal.SameCurrency(inv.Tax) || !inv.Subtotal.SameCurrency(inv.Total) {
		return false
	}
	return inv.Subtotal.Add(inv.Tax).Equal(inv.Total)
}

// Settled reports whether the payment reached a terminal status.
func (inv *Invoice) Settled() bool {
	return inv.Payment.Status.Terminal()
}

// Day returns the creation date as YYYY-MM-DD in loc.
func (inv *Invoice) Day(loc *time.Location) string {
	return inv.CreatedOn(loc)
}
