package extension

import "time"

// Config holds the billbook extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.billbook" or "billbook" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Timezone decides month boundaries for invoice numbers and report
	// days (default: "Asia/Kolkata").
	Timezone string `json:"timezone" mapstructure:"timezone" yaml:"timezone"`

	// Currency is the ledger currency (default: "inr").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// ExportDir is where the file sink writes export artifacts
	// (default: "exports").
	ExportDir string `json:"export_dir" mapstructure:"export_dir" yaml:"export_dir"`

	// ExportRetries is how many times a failed delivery is attempted
	// before the batch is released. 0 or 1 disables retry.
	ExportRetries uint `json:"export_retries" mapstructure:"export_retries" yaml:"export_retries"`

	// ExportClaimTTL is how long an in-flight export claim is honoured
	// (default: 15m).
	ExportClaimTTL time.Duration `json:"export_claim_ttl" mapstructure:"export_claim_ttl" yaml:"export_claim_ttl"`

	// VerifyTimeout bounds each payment gateway call (default: 10s).
	VerifyTimeout time.Duration `json:"verify_timeout" mapstructure:"verify_timeout" yaml:"verify_timeout"`

	// DeliveryTimeout bounds each export delivery (default: 30s).
	DeliveryTimeout time.Duration `json:"delivery_timeout" mapstructure:"delivery_timeout" yaml:"delivery_timeout"`

	// ReconcileInterval enables the pending UPI sweep when positive.
	ReconcileInterval time.Duration `json:"reconcile_interval" mapstructure:"reconcile_interval" yaml:"reconcile_interval"`

	// StoreDriver selects the backend for a database passed with
	// WithGroveDatabase: postgres, sqlite or mongo.
	StoreDriver string `json:"store_driver" mapstructure:"store_driver" yaml:"store_driver"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timezone:        "Asia/Kolkata",
		Currency:        "inr",
		ExportDir:       "exports",
		ExportClaimTTL:  15 * time.Minute,
		VerifyTimeout:   10 * time.Second,
		DeliveryTimeout: 30 * time.Second,
	}
}
