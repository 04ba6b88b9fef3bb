// Package report derives sales and payment summaries from a set of
// invoices. Every function here is pure: the same input slice always gives
// the same output and nothing is read from or written to a store.
package report

import (
	"sort"
	"time"

	"github.com/xraph/billbook/invoice"
	"github.com/xraph/billbook/payment"
	"github.com/xraph/billbook/types"
)

// Summary is the sales summary of an invoice set.
type Summary struct {
	Currency     string                        `json:"currency"`
	TotalSales   types.Money                   `json:"total_sales"`
	InvoiceCount int                           `json:"invoice_count"`
	ByMode       map[payment.Mode]types.Money  `json:"payment_mode_breakdown"`
	Daily        map[string]types.Money        `json:"daily_sales"`
	ByBranch     map[string]types.Money        `json:"branch_sales"`
	// Skipped counts invoices in another currency. They are left out of
	// every total.
	Skipped int `json:"skipped,omitempty"`
}

// Days returns the Daily keys in ascending order.
func (s *Summary) Days() []string {
	days := make([]string, 0, len(s.Daily))
	for d := range s.Daily {
		days = append(days, d)
	}
	sort.Strings(days)
	return days
}

type config struct {
	loc      *time.Location
	currency string
}

// Option configures Summarize and AnalyzePayments.
type Option func(*config)

// WithLocation sets the zone used to bucket invoices by day.
func WithLocation(loc *time.Location) Option {
	return func(c *config) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithCurrency sets the currency totals are kept in.
func WithCurrency(currency string) Option {
	return func(c *config) {
		if currency != "" {
			c.currency = currency
		}
	}
}

func newConfig(opts []Option) config {
	c := config{loc: time.UTC, currency: types.DefaultCurrency}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Summarize totals invoices overall, per payment mode, per day and per
// branch code. Every payment mode is present in ByMode even when zero, and
// the ByMode values always add up to TotalSales.
func Summarize(invoices []*invoice.Invoice, opts ...Option) *Summary {
	cfg := newConfig(opts)
	zero := types.Zero(cfg.currency)

	s := &Summary{
		Currency:   zero.Currency,
		TotalSales: zero,
		ByMode:     make(map[payment.Mode]types.Money, 4),
		Daily:      make(map[string]types.Money),
		ByBranch:   make(map[string]types.Money),
	}
	for _, m := range payment.Modes() {
		s.ByMode[m] = zero
	}

	for _, inv := range invoices {
		if inv == nil {
			continue
		}
		if !inv.Total.SameCurrency(zero) {
			s.Skipped++
			continue
		}

		s.InvoiceCount++
		s.TotalSales = s.TotalSales.Add(inv.Total)

		mode := inv.Payment.Mode
		if _, ok := s.ByMode[mode]; !ok {
			// Unknown modes still get a bucket so the breakdown sums to the total.
			s.ByMode[mode] = zero
		}
		s.ByMode[mode] = s.ByMode[mode].Add(inv.Total)

		day := inv.CreatedOn(cfg.loc)
		s.Daily[day] = accumulate(s.Daily, day, zero).Add(inv.Total)
		s.ByBranch[inv.BranchCode] = accumulate(s.ByBranch, inv.BranchCode, zero).Add(inv.Total)
	}
	return s
}

func accumulate(m map[string]types.Money, key string, zero types.Money) types.Money {
	if v, ok := m[key]; ok {
		return v
	}
	return zero
}

// ModeAnalysis is the settlement picture of one payment mode.
type ModeAnalysis struct {
	Mode      payment.Mode `json:"mode"`
	Amount    types.Money  `json:"total_amount"`
	Count     int          `json:"total_transactions"`
	Completed int          `json:"successful_transactions"`
	Failed    int          `json:"failed_transactions"`
	Pending   int          `json:"pending_transactions"`
	// SuccessRate is Completed/Count as a percentage, nil when Count is 0.
	SuccessRate *float64 `json:"success_rate"`
}

// AnalyzePayments returns one entry per payment mode, in payment.Modes order.
func AnalyzePayments(invoices []*invoice.Invoice, opts ...Option) []ModeAnalysis {
	cfg := newConfig(opts)
	zero := types.Zero(cfg.currency)

	byMode := make(map[payment.Mode]*ModeAnalysis, 4)
	out := make([]ModeAnalysis, 0, 4)
	for _, m := range payment.Modes() {
		byMode[m] = &ModeAnalysis{Mode: m, Amount: zero}
	}

	for _, inv := range invoices {
		if inv == nil || !inv.Total.SameCurrency(zero) {
			continue
		}
		a, ok := byMode[inv.Payment.Mode]
		if !ok {
			continue
		}
		a.Count++
		a.Amount = a.Amount.Add(inv.Total)
		switch inv.Payment.Status {
		case payment.StatusCompleted:
			a.Completed++
		case payment.StatusFailed:
			a.Failed++
		default:
			a.Pending++
		}
	}

	for _, m := range payment.Modes() {
		a := byMode[m]
		if a.Count > 0 {
			rate := float64(a.Completed) / float64(a.Count) * 100
			a.SuccessRate = &rate
		}
		out = append(out, *a)
	}
	return out
}
