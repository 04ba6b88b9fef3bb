// Package observability provides a metrics extension for billbook that
// records lifecycle event counts through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/billbook/branch"
	"github.com/xraph/billbook/export"
	"github.com/xraph/billbook/invoice"
	"github.com/xraph/billbook/payment"
	"github.com/xraph/billbook/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin            = (*MetricsExtension)(nil)
	_ plugin.OnBranchCreated   = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceCreated  = (*MetricsExtension)(nil)
	_ plugin.OnPaymentSettled  = (*MetricsExtension)(nil)
	_ plugin.OnPaymentConflict = (*MetricsExtension)(nil)
	_ plugin.OnBatchExported   = (*MetricsExtension)(nil)
	_ plugin.OnExportFailed    = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a billbook plugin to track sales and export activity.
type MetricsExtension struct {
	BranchCreated Counter

	// Invoice metrics
	InvoiceCreated Counter
	InvoiceTotal   Histogram
	invoiceByMode  map[payment.Mode]Counter

	// Payment metrics
	PaymentCompleted Counter
	PaymentFailed    Counter
	PaymentConflicts Counter

	// Export metrics
	BatchExported   Counter
	InvoiceExported Counter
	BatchSize       Histogram
	ExportFailed    Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	m := &MetricsExtension{
		BranchCreated: factory.Counter("billbook.branch.created"),

		InvoiceCreated: factory.Counter("billbook.invoice.created"),
		InvoiceTotal:   factory.Histogram("billbook.invoice.total_minor"),
		invoiceByMode:  make(map[payment.Mode]Counter, len(payment.Modes())),

		PaymentCompleted: factory.Counter("billbook.payment.completed"),
		PaymentFailed:    factory.Counter("billbook.payment.failed"),
		PaymentConflicts: factory.Counter("billbook.payment.conflicts"),

		BatchExported:   factory.Counter("billbook.export.batches"),
		InvoiceExported: factory.Counter("billbook.export.invoices"),
		BatchSize:       factory.Histogram("billbook.export.batch_size"),
		ExportFailed:    factory.Counter("billbook.export.failed"),
	}
	for _, mode := range payment.Modes() {
		m.invoiceByMode[mode] = factory.Counter("billbook.invoice.mode." + string(mode))
	}
	return m
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnBranchCreated implements plugin.OnBranchCreated.
func (m *MetricsExtension) OnBranchCreated(_ context.Context, _ *branch.Branch) error {
	m.BranchCreated.Inc()
	return nil
}

// OnInvoiceCreated implements plugin.OnInvoiceCreated.
func (m *MetricsExtension) OnInvoiceCreated(_ context.Context, inv *invoice.Invoice) error {
	m.InvoiceCreated.Inc()
	m.InvoiceTotal.Observe(float64(inv.Total.Amount))
	if c, ok := m.invoiceByMode[inv.Payment.Mode]; ok {
		c.Inc()
	}
	return nil
}

// OnPaymentSettled implements plugin.OnPaymentSettled.
func (m *MetricsExtension) OnPaymentSettled(_ context.Context, inv *invoice.Invoice, _ payment.Evidence) error {
	switch inv.Payment.Status {
	case payment.StatusCompleted:
		m.PaymentCompleted.Inc()
	case payment.StatusFailed:
		m.PaymentFailed.Inc()
	}
	return nil
}

// OnPaymentConflict implements plugin.OnPaymentConflict.
func (m *MetricsExtension) OnPaymentConflict(_ context.Context, _ *invoice.Invoice, _ payment.Status, _ string) error {
	m.PaymentConflicts.Inc()
	return nil
}

// OnBatchExported implements plugin.OnBatchExported.
func (m *MetricsExtension) OnBatchExported(_ context.Context, b *export.Batch) error {
	m.BatchExported.Inc()
	m.InvoiceExported.Add(float64(b.InvoiceCount))
	m.BatchSize.Observe(float64(b.InvoiceCount))
	return nil
}

// OnExportFailed implements plugin.OnExportFailed.
func (m *MetricsExtension) OnExportFailed(_ context.Context, _ export.Filter, _ int, _ error) error {
	m.ExportFailed.Inc()
	return nil
}
