package extension

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/billbook"
	"github.com/xraph/billbook/plugin"
	"github.com/xraph/billbook/store"
)

// Option configures the billbook Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDatabase builds the store from db. driver is one of postgres,
// sqlite or mongo and may be left empty when Config.StoreDriver is set.
func WithGroveDatabase(db *grove.DB, driver string) Option {
	return func(e *Extension) {
		e.groveDB = db
		if driver != "" {
			e.config.StoreDriver = driver
		}
	}
}

// WithEngineOption passes a billbook.Option through to the engine.
func WithEngineOption(opt billbook.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a billbook plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, billbook.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithTimezone sets the business time zone by IANA name.
func WithTimezone(name string) Option {
	return func(e *Extension) { e.config.Timezone = name }
}

// WithExportDir sets the directory of the file sink.
func WithExportDir(dir string) Option {
	return func(e *Extension) { e.config.ExportDir = dir }
}

// WithExportRetries sets how many delivery attempts a batch gets.
func WithExportRetries(n uint) Option {
	return func(e *Extension) { e.config.ExportRetries = n }
}

// WithReconcileInterval enables the pending UPI sweep.
func WithReconcileInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.ReconcileInterval = d }
}
