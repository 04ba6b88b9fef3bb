package billbook

import (
	"context"

	"github.com/xraph/billbook/access"
	"github.com/xraph/billbook/invoice"
	"github.com/xraph/billbook/report"
)

// SalesReport summarizes the invoices matching opts in the engine's
// currency and time zone. Branch-bound actors are limited to their branch.
func (e *Engine) SalesReport(ctx context.Context, actor access.Actor, opts invoice.ListOpts) (*report.Summary, error) {
	invoices, err := e.reportInvoices(ctx, actor, opts)
	if err != nil {
		return nil, err
	}
	return report.Summarize(invoices, e.reportOptions()...), nil
}

// PaymentAnalysis breaks the invoices matching opts down by payment mode
// and settlement outcome.
func (e *Engine) PaymentAnalysis(ctx context.Context, actor access.Actor, opts invoice.ListOpts) ([]report.ModeAnalysis, error) {
	invoices, err := e.reportInvoices(ctx, actor, opts)
	if err != nil {
		return nil, err
	}
	return report.AnalyzePayments(invoices, e.reportOptions()...), nil
}

// SalesRows returns the flat per-invoice projection used for CSV output.
func (e *Engine) SalesRows(ctx context.Context, actor access.Actor, opts invoice.ListOpts) ([]report.Row, error) {
	invoices, err := e.reportInvoices(ctx, actor, opts)
	if err != nil {
		return nil, err
	}
	return report.Rows(invoices), nil
}

func (e *Engine) reportInvoices(ctx context.Context, actor access.Actor, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	if !actor.Can(access.ViewReports) {
		return nil, forbidden(actor, access.ViewReports)
	}
	opts, err := scopeToBranch(actor, opts)
	if err != nil {
		return nil, err
	}
	return e.store.ListInvoices(ctx, opts)
}

func (e *Engine) reportOptions() []report.Option {
	return []report.Option{report.WithLocation(e.location), report.WithCurrency(e.currency)}
}
