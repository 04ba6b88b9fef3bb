// Package payment holds the settlement side of an invoice: which
// instruments cover the total and whether the money has arrived.
//
// Status moves forward only. pending may become completed or failed; both
// are terminal. A late gateway answer that disagrees with a terminal status
// is reported to the caller, never written over it.
package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/xraph/billbook/types"
)

// Mode is the payment instrument mix for an invoice.
type Mode string

const (
	ModeCash   Mode = "cash"
	ModeUPI    Mode = "upi"
	ModeCredit Mode = "credit"
	ModeSplit  Mode = "split"
)

// Modes lists every mode in reporting order.
func Modes() []Mode {
	return []Mode{ModeCash, ModeUPI, ModeCredit, ModeSplit}
}

// Valid reports whether m is one of the four known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeCash, ModeUPI, ModeCredit, ModeSplit:
		return true
	}
	return false
}

// AcceptsUPIReference reports whether a UPI transaction can settle m.
func (m Mode) AcceptsUPIReference() bool {
	return m == ModeUPI || m == ModeSplit
}

// Status is the settlement state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Statuses lists every status.
func Statuses() []Status {
	return []Status{StatusPending, StatusCompleted, StatusFailed}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusCompleted || s == StatusFailed
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	return from == StatusPending && to.Terminal()
}

// Errors returned by Record. The engine maps them onto its own taxonomy.
var (
	ErrInvalidMode    = errors.New("payment: invalid mode")
	ErrNegativeAmount = errors.New("payment: negative amount")
	ErrCurrency       = errors.New("payment: currency differs from invoice total")
	ErrAmountRange    = errors.New("payment: split amount exceeds invoice total")
)

// MismatchError reports split instrument amounts that do not sum to the total.
type MismatchError struct {
	Expected types.Money
	Got      types.Money
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("payment: split amounts sum to %s, want %s", e.Got, e.Expected)
}

// Intent is what the cashier asked for. Instrument amounts are only read
// for split mode.
type Intent struct {
	Mode         Mode        `json:"mode"`
	CashAmount   types.Money `json:"cash_amount"`
	UPIAmount    types.Money `json:"upi_amount"`
	CreditAmount types.Money `json:"credit_amount"`
	UPIReference string      `json:"upi_reference,omitempty"`
}

// Payment is the persisted settlement record of one invoice.
type Payment struct {
	Mode           Mode        `json:"mode"`
	Status         Status      `json:"status"`
	CashAmount     types.Money `json:"cash_amount"`
	UPIAmount      types.Money `json:"upi_amount"`
	CreditAmount   types.Money `json:"credit_amount"`
	UPIReference   string      `json:"upi_reference,omitempty"`
	EvidenceRef    string      `json:"evidence_ref,omitempty"`
	EvidenceSource string      `json:"evidence_source,omitempty"`
	SettledAt      *time.Time  `json:"settled_at,omitempty"`
}

// Covered returns cash + upi + credit.
func (p Payment) Covered() types.Money {
	return p.CashAmount.Add(p.UPIAmount).Add(p.CreditAmount)
}

// Record turns an intent into the initial Payment for an invoice of the
// given total. Cash settles at the counter and starts completed; every other
// mode starts pending. For single-instrument modes the instrument carries the
// whole total. For split mode each amount must lie in [0, total] and the
// three must sum to total exactly.
func Record(in Intent, total types.Money, at time.Time) (Payment, error) {
	if !in.Mode.Valid() {
		return Payment{}, fmt.Errorf("%w: %q", ErrInvalidMode, in.Mode)
	}

	zero := types.Zero(total.Currency)
	p := Payment{
		Mode:         in.Mode,
		Status:       StatusPending,
		CashAmount:   zero,
		UPIAmount:    zero,
		CreditAmount: zero,
		UPIReference: in.UPIReference,
	}

	switch in.Mode {
	case ModeCash:
		p.CashAmount = total
		p.Status = StatusCompleted
		p.EvidenceSource = SourceCounter
		settled := at.UTC()
		p.SettledAt = &settled
	case ModeUPI:
		p.UPIAmount = total
	case ModeCredit:
		p.CreditAmount = total
	case ModeSplit:
		amounts := []types.Money{
			in.CashAmount.In(total.Currency),
			in.UPIAmount.In(total.Currency),
			in.CreditAmount.In(total.Currency),
		}
		for _, a := range amounts {
			if !a.SameCurrency(total) {
				return Payment{}, fmt.Errorf("%w: %s", ErrCurrency, a.Currency)
			}
			if a.IsNegative() {
				return Payment{}, fmt.Errorf("%w: %s", ErrNegativeAmount, a)
			}
		}
		got := zero
		for _, a := range amounts {
			if a.GreaterThan(total) {
				return Payment{}, fmt.Errorf("%w: %s > %s", ErrAmountRange, a, total)
			}
			var err error
			if got, err = got.CheckedAdd(a); err != nil {
				return Payment{}, fmt.Errorf("%w: %v", ErrAmountRange, err)
			}
		}
		p.CashAmount, p.UPIAmount, p.CreditAmount = amounts[0], amounts[1], amounts[2]
		if !got.Equal(total) {
			return Payment{}, &MismatchError{Expected: total, Got: got}
		}
	}

	if p.UPIReference != "" && !p.Mode.AcceptsUPIReference() {
		return Payment{}, fmt.Errorf("%w: upi reference on %s payment", ErrInvalidMode, p.Mode)
	}
	return p, nil
}
