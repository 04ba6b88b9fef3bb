package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/billbook/export"
	"github.com/xraph/billbook/invoice"
	"github.com/xraph/billbook/payment"
	"github.com/xraph/billbook/types"
)

type counter struct{ v float64 }

func (c *counter) Inc()          { c.v++ }
func (c *counter) Add(f float64) { c.v += f }

type histogram struct{ obs []float64 }

func (h *histogram) Observe(f float64) { h.obs = append(h.obs, f) }

type factory struct {
	counters   map[string]*counter
	histograms map[string]*histogram
}

func newFactory() *factory {
	return &factory{counters: map[string]*counter{}, histograms: map[string]*histogram{}}
}

func (f *factory) Counter(name string) Counter {
	c := &counter{}
	f.counters[name] = c
	return c
}

func (f *factory) Histogram(name string) Histogram {
	h := &histogram{}
	f.histograms[name] = h
	return h
}

func TestInvoiceMetrics(t *testing.T) {
	f := newFactory()
	m := NewMetricsExtension(f)
	ctx := context.Background()

	for _, mode := range []payment.Mode{payment.ModeCash, payment.ModeUPI, payment.ModeUPI} {
		inv := &invoice.Invoice{Total: types.INR(150000), Payment: payment.Payment{Mode: mode}}
		if err := m.OnInvoiceCreated(ctx, inv); err != nil {
			t.Fatalf("OnInvoiceCreated: %v", err)
		}
	}

	if got := f.counters["billbook.invoice.created"].v; got != 3 {
		t.Errorf("invoice.created = %v, want 3", got)
	}
	if got := f.counters["billbook.invoice.mode.upi"].v; got != 2 {
		t.Errorf("invoice.mode.upi = %v, want 2", got)
	}
	if got := f.histograms["billbook.invoice.total_minor"].obs; len(got) != 3 || got[0] != 150000 {
		t.Errorf("invoice.total_minor = %v", got)
	}
}

func TestPaymentAndExportMetrics(t *testing.T) {
	f := newFactory()
	m := NewMetricsExtension(f)
	ctx := context.Background()

	done := &invoice.Invoice{Payment: payment.Payment{Status: payment.StatusCompleted}}
	failed := &invoice.Invoice{Payment: payment.Payment{Status: payment.StatusFailed}}
	_ = m.OnPaymentSettled(ctx, done, payment.Evidence{})
	_ = m.OnPaymentSettled(ctx, failed, payment.Evidence{})
	_ = m.OnPaymentConflict(ctx, done, payment.StatusFailed, "TXN_1")
	_ = m.OnBatchExported(ctx, &export.Batch{InvoiceCount: 5})
	_ = m.OnExportFailed(ctx, export.Filter{}, 2, errors.New("down"))

	want := map[string]float64{
		"billbook.payment.completed": 1,
		"billbook.payment.failed":    1,
		"billbook.payment.conflicts": 1,
		"billbook.export.batches":    1,
		"billbook.export.invoices":   5,
		"billbook.export.failed":     1,
	}
	for name, v := range want {
		if got := f.counters[name].v; got != v {
			t.Errorf("%s = %v, want %v", name, got, v)
		}
	}
}
