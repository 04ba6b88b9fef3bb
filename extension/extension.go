// Package extension provides the Forge extension adapter for billbook.
//
// It implements the forge.Extension interface to integrate the invoice
// ledger into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.billbook" or
// "billbook" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/billbook"
	"github.com/xraph/billbook/export"
	"github.com/xraph/billbook/store"
	"github.com/xraph/billbook/store/backend"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "billbook"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Multi-branch invoice ledger with payment reconciliation and accounting export"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts billbook as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *billbook.Engine
	store      store.Store
	groveDB    *grove.DB
	engineOpts []billbook.Option
}

// New creates a new billbook Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *billbook.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		s, err := backend.New(e.config.StoreDriver, e.groveDB)
		if err != nil {
			return err
		}
		e.store = s
	}

	opts, err := buildEngineOpts(e.config, e.engineOpts)
	if err != nil {
		return err
	}

	e.engine = billbook.New(e.store, opts...)

	return vessel.Provide(fapp.Container(), func() (*billbook.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("billbook: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("billbook: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts turns the resolved config into engine options. Pass-through
// options come last so they win over config.
func buildEngineOpts(cfg Config, extra []billbook.Option) ([]billbook.Option, error) {
	opts := make([]billbook.Option, 0, len(extra)+8)

	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("billbook: timezone %q: %w", cfg.Timezone, err)
		}
		opts = append(opts, billbook.WithLocation(loc))
	}

	var sink export.Sink = export.NewFileSink(cfg.ExportDir)
	if cfg.ExportRetries > 1 {
		sink = export.NewRetrySink(sink, cfg.ExportRetries)
	}

	opts = append(opts,
		billbook.WithCurrency(cfg.Currency),
		billbook.WithSink(sink),
		billbook.WithExportClaimTTL(cfg.ExportClaimTTL),
		billbook.WithVerifyTimeout(cfg.VerifyTimeout),
		billbook.WithDeliveryTimeout(cfg.DeliveryTimeout),
		billbook.WithReconcileInterval(cfg.ReconcileInterval),
	)

	return append(opts, extra...), nil
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("billbook: configuration is required but not found in config files; " +
				"ensure 'extensions.billbook' or 'billbook' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("billbook: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("timezone", e.config.Timezone),
		forge.F("currency", e.config.Currency),
		forge.F("export_dir", e.config.ExportDir),
		forge.F("export_claim_ttl", e.config.ExportClaimTTL),
		forge.F("reconcile_interval", e.config.ReconcileInterval),
		forge.F("store_driver", e.config.StoreDriver),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.billbook", "billbook"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("billbook: loaded config from file", forge.F("key", key))
			return cfg, true
		}
		e.Logger().Warn("billbook: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Timezone == "" {
		cfg.Timezone = defaults.Timezone
	}
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = defaults.ExportDir
	}
	if cfg.ExportClaimTTL == 0 {
		cfg.ExportClaimTTL = defaults.ExportClaimTTL
	}
	if cfg.VerifyTimeout == 0 {
		cfg.VerifyTimeout = defaults.VerifyTimeout
	}
	if cfg.DeliveryTimeout == 0 {
		cfg.DeliveryTimeout = defaults.DeliveryTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML wins; programmatic values fill gaps and bool flags override when true.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	fillString(&yamlConfig.Timezone, programmaticConfig.Timezone)
	fillString(&yamlConfig.Currency, programmaticConfig.Currency)
	fillString(&yamlConfig.ExportDir, programmaticConfig.ExportDir)
	fillString(&yamlConfig.StoreDriver, programmaticConfig.StoreDriver)

	if yamlConfig.ExportRetries == 0 {
		yamlConfig.ExportRetries = programmaticConfig.ExportRetries
	}
	fillDuration(&yamlConfig.ExportClaimTTL, programmaticConfig.ExportClaimTTL)
	fillDuration(&yamlConfig.VerifyTimeout, programmaticConfig.VerifyTimeout)
	fillDuration(&yamlConfig.DeliveryTimeout, programmaticConfig.DeliveryTimeout)
	fillDuration(&yamlConfig.ReconcileInterval, programmaticConfig.ReconcileInterval)

	return mergeWithDefaults(yamlConfig)
}

func fillString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func fillDuration(dst *time.Duration, v time.Duration) {
	if *dst == 0 {
		*dst = v
	}
}
