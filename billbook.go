package billbook

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/billbook/branch"
	"github.com/xraph/billbook/export"
	"github.com/xraph/billbook/payment"
	"github.com/xraph/billbook/plugin"
	"github.com/xraph/billbook/store"
	"github.com/xraph/billbook/types"
)

// Defaults applied by New.
const (
	DefaultExportClaimTTL  = 15 * time.Minute
	DefaultVerifyTimeout   = 10 * time.Second
	DefaultDeliveryTimeout = 30 * time.Second
	DefaultBranchCacheTTL  = 5 * time.Minute
	DefaultExportDir       = "exports"

	// claimTTLFactor is the minimum ratio of export claim TTL to delivery
	// timeout. The margin covers encoding and marking the batch.
	claimTTLFactor = 2
)

// Engine is the invoice ledger. It is safe for concurrent use; it holds no
// lock across a store or external call.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	branches branch.Cache
	verifier payment.Verifier
	sink     export.Sink
	encoder  export.Encoder
	now      func() time.Time

	// Background reconciliation
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Configuration
	location          *time.Location
	currency          string
	exportClaimTTL    time.Duration
	verifyTimeout     time.Duration
	deliveryTimeout   time.Duration
	reconcileInterval time.Duration
}

// New creates a new Engine over s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:           s,
		plugins:         plugin.NewRegistry(),
		logger:          slog.Default(),
		branches:        branch.NewMemoryCache(DefaultBranchCacheTTL),
		sink:            export.NewFileSink(DefaultExportDir),
		encoder:         export.TallyXML{},
		now:             time.Now,
		stopChan:        make(chan struct{}),
		location:        time.UTC,
		currency:        types.DefaultCurrency,
		exportClaimTTL:  DefaultExportClaimTTL,
		verifyTimeout:   DefaultVerifyTimeout,
		deliveryTimeout: DefaultDeliveryTimeout,
	}

	for _, opt := range opts {
		opt(e)
	}

	// A claim must outlive the delivery it covers, or a second exporter
	// can take the invoices over while the first is still writing them.
	if minTTL := claimTTLFactor * e.deliveryTimeout; e.exportClaimTTL < minTTL {
		e.logger.Warn("export claim ttl shorter than delivery timeout allows; raising it",
			"claim_ttl", e.exportClaimTTL,
			"delivery_timeout", e.deliveryTimeout,
			"raised_to", minTTL,
		)
		e.exportClaimTTL = minTTL
	}

	return e
}

// ExportClaimTTL returns the effective export claim lifetime.
func (e *Engine) ExportClaimTTL() time.Duration { return e.exportClaimTTL }

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithLocation sets the zone that decides month boundaries for numbering,
// voucher dates and report days.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

// WithCurrency sets the ledger currency.
func WithCurrency(currency string) Option {
	return func(e *Engine) {
		if currency != "" {
			e.currency = types.Zero(currency).Currency
		}
	}
}

// WithExportClaimTTL sets how long an export claim is honoured before a
// later batch may take the invoices over.
func WithExportClaimTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.exportClaimTTL = ttl
		}
	}
}

// WithVerifyTimeout bounds each payment gateway call.
func WithVerifyTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.verifyTimeout = d
		}
	}
}

// WithDeliveryTimeout bounds each export delivery.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.deliveryTimeout = d
		}
	}
}

// WithVerifier sets the payment gateway client.
func WithVerifier(v payment.Verifier) Option {
	return func(e *Engine) { e.verifier = v }
}

// WithSink sets where export artifacts are delivered.
func WithSink(s export.Sink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithEncoder sets the export format.
func WithEncoder(enc export.Encoder) Option {
	return func(e *Engine) {
		if enc != nil {
			e.encoder = enc
		}
	}
}

// WithBranchCache replaces the in-process branch cache, e.g. with the
// redis cache shared by several engine instances.
func WithBranchCache(c branch.Cache) Option {
	return func(e *Engine) {
		if c != nil {
			e.branches = c
		}
	}
}

// WithClock overrides time.Now. Tests use it to pin invoice dates.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithReconcileInterval enables a background sweep that verifies pending
// UPI payments every d. It needs a verifier.
func WithReconcileInterval(d time.Duration) Option {
	return func(e *Engine) { e.reconcileInterval = d }
}

// Start migrates the store, initializes plugins and starts the
// reconciliation worker when configured.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	if e.reconcileInterval > 0 && e.verifier != nil {
		e.wg.Add(1)
		go e.reconcileWorker(ctx)
	}

	e.logger.Info("billbook started",
		"location", e.location.String(),
		"currency", e.currency,
		"export_format", e.encoder.Format(),
		"claim_ttl", e.exportClaimTTL,
		"reconcile_interval", e.reconcileInterval,
	)

	return nil
}

// Stop shuts down the worker, notifies plugins and closes the store.
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.wg.Wait()

	e.plugins.EmitShutdown(context.Background())

	return e.store.Close()
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Location returns the configured business time zone.
func (e *Engine) Location() *time.Location { return e.location }

// Currency returns the ledger currency.
func (e *Engine) Currency() string { return e.currency }
