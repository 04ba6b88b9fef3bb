package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/billbook/branch"
	"github.com/xraph/billbook/export"
	"github.com/xraph/billbook/invoice"
	"github.com/xraph/billbook/payment"
)

// DefaultHookTimeout bounds every hook call.
const DefaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so emitting an event never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit            []OnInit
	onShutdown        []OnShutdown
	onBranchCreated   []OnBranchCreated
	onInvoiceCreated  []OnInvoiceCreated
	onPaymentSettled  []OnPaymentSettled
	onPaymentConflict []OnPaymentConflict
	onBatchExported   []OnBatchExported
	onExportFailed    []OnExportFailed
	taxCalculators    []TaxCalculator
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout overrides DefaultHookTimeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnBranchCreated); ok {
		r.onBranchCreated = append(r.onBranchCreated, v)
	}
	if v, ok := p.(OnInvoiceCreated); ok {
		r.onInvoiceCreated = append(r.onInvoiceCreated, v)
	}
	if v, ok := p.(OnPaymentSettled); ok {
		r.onPaymentSettled = append(r.onPaymentSettled, v)
	}
	if v, ok := p.(OnPaymentConflict); ok {
		r.onPaymentConflict = append(r.onPaymentConflict, v)
	}
	if v, ok := p.(OnBatchExported); ok {
		r.onBatchExported = append(r.onBatchExported, v)
	}
	if v, ok := p.(OnExportFailed); ok {
		r.onExportFailed = append(r.onExportFailed, v)
	}
	if v, ok := p.(TaxCalculator); ok {
		r.taxCalculators = append(r.taxCalculators, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnBranchCreated", reflect.TypeOf((*OnBranchCreated)(nil)).Elem()},
	{"OnInvoiceCreated", reflect.TypeOf((*OnInvoiceCreated)(nil)).Elem()},
	{"OnPaymentSettled", reflect.TypeOf((*OnPaymentSettled)(nil)).Elem()},
	{"OnPaymentConflict", reflect.TypeOf((*OnPaymentConflict)(nil)).Elem()},
	{"OnBatchExported", reflect.TypeOf((*OnBatchExported)(nil)).Elem()},
	{"OnExportFailed", reflect.TypeOf((*OnExportFailed)(nil)).Elem()},
	{"TaxCalculator", reflect.TypeOf((*TaxCalculator)(nil)).Elem()},
}

// implementedInterfaces returns the hook names p implements.
func implementedInterfaces(p Plugin) []string {
	var names []string
	t := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if t.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit runs fn for every hook in hooks. Failures are logged, never returned:
// a broken plugin must not fail a ledger write that already happened.
func emit[H Plugin](ctx context.Context, r *Registry, event string, hooks []H, fn func(H) error) {
	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error { return fn(h) }); err != nil {
			r.logger.Warn("plugin "+event+" failed",
				"plugin", h.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	hooks := r.onInit
	r.mu.RUnlock()

	emit(ctx, r, "OnInit", hooks, func(p OnInit) error { return p.OnInit(ctx, engine) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	hooks := r.onShutdown
	r.mu.RUnlock()

	emit(ctx, r, "OnShutdown", hooks, func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitBranchCreated emits a branch created event.
func (r *Registry) EmitBranchCreated(ctx context.Context, b *branch.Branch) {
	r.mu.RLock()
	hooks := r.onBranchCreated
	r.mu.RUnlock()

	emit(ctx, r, "OnBranchCreated", hooks, func(p OnBranchCreated) error { return p.OnBranchCreated(ctx, b) })
}

// EmitInvoiceCreated emits an invoice created event.
func (r *Registry) EmitInvoiceCreated(ctx context.Context, inv *invoice.Invoice) {
	r.mu.RLock()
	hooks := r.onInvoiceCreated
	r.mu.RUnlock()

	emit(ctx, r, "OnInvoiceCreated", hooks, func(p OnInvoiceCreated) error { return p.OnInvoiceCreated(ctx, inv) })
}

// EmitPaymentSettled emits a payment settled event.
func (r *Registry) EmitPaymentSettled(ctx context.Context, inv *invoice.Invoice, ev payment.Evidence) {
	r.mu.RLock()
	hooks := r.onPaymentSettled
	r.mu.RUnlock()

	emit(ctx, r, "OnPaymentSettled", hooks, func(p OnPaymentSettled) error { return p.OnPaymentSettled(ctx, inv, ev) })
}

// EmitPaymentConflict emits a payment conflict event.
func (r *Registry) EmitPaymentConflict(ctx context.Context, inv *invoice.Invoice, reported payment.Status, reference string) {
	r.mu.RLock()
	hooks := r.onPaymentConflict
	r.mu.RUnlock()

	emit(ctx, r, "OnPaymentConflict", hooks, func(p OnPaymentConflict) error {
		return p.OnPaymentConflict(ctx, inv, reported, reference)
	})
}

// EmitBatchExported emits a batch exported event.
func (r *Registry) EmitBatchExported(ctx context.Context, b *export.Batch) {
	r.mu.RLock()
	hooks := r.onBatchExported
	r.mu.RUnlock()

	emit(ctx, r, "OnBatchExported", hooks, func(p OnBatchExported) error { return p.OnBatchExported(ctx, b) })
}

// EmitExportFailed emits an export failed event.
func (r *Registry) EmitExportFailed(ctx context.Context, f export.Filter, claimed int, err error) {
	r.mu.RLock()
	hooks := r.onExportFailed
	r.mu.RUnlock()

	emit(ctx, r, "OnExportFailed", hooks, func(p OnExportFailed) error { return p.OnExportFailed(ctx, f, claimed, err) })
}

// TaxCalculator returns the first registered tax calculator, or nil.
func (r *Registry) TaxCalculator() TaxCalculator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.taxCalculators) == 0 {
		return nil
	}
	return r.taxCalculators[0]
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
