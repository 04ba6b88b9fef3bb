package extension

import (
	"testing"
	"time"

	"github.com/xraph/billbook"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{Currency: "usd"})

	if cfg.Currency != "usd" {
		t.Errorf("Currency = %q, want usd", cfg.Currency)
	}
	if cfg.Timezone != "Asia/Kolkata" {
		t.Errorf("Timezone = %q", cfg.Timezone)
	}
	if cfg.ExportClaimTTL != 15*time.Minute {
		t.Errorf("ExportClaimTTL = %v", cfg.ExportClaimTTL)
	}
	if cfg.ExportDir != "exports" {
		t.Errorf("ExportDir = %q", cfg.ExportDir)
	}
}

func TestMergeConfigurations(t *testing.T) {
	yaml := Config{Timezone: "UTC", ExportClaimTTL: time.Minute}
	prog := Config{
		Timezone:       "Asia/Kolkata",
		ExportDir:      "/var/billbook",
		ExportClaimTTL: time.Hour,
		DisableMigrate: true,
		StoreDriver:    "postgres",
	}

	cfg := mergeConfigurations(yaml, prog)

	if cfg.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want file value UTC", cfg.Timezone)
	}
	if cfg.ExportClaimTTL != time.Minute {
		t.Errorf("ExportClaimTTL = %v, want file value", cfg.ExportClaimTTL)
	}
	if cfg.ExportDir != "/var/billbook" {
		t.Errorf("ExportDir = %q, want programmatic fill", cfg.ExportDir)
	}
	if !cfg.DisableMigrate {
		t.Error("DisableMigrate flag lost")
	}
	if cfg.StoreDriver != "postgres" {
		t.Errorf("StoreDriver = %q", cfg.StoreDriver)
	}
	if cfg.Currency != "inr" {
		t.Errorf("Currency = %q, want default", cfg.Currency)
	}
}

func TestBuildEngineOpts(t *testing.T) {
	extra := billbook.WithCurrency("usd")

	opts, err := buildEngineOpts(mergeWithDefaults(Config{Timezone: "UTC", ExportRetries: 3}), []billbook.Option{extra})
	if err != nil {
		t.Fatalf("buildEngineOpts: %v", err)
	}
	if len(opts) != 8 {
		t.Fatalf("len(opts) = %d, want 8", len(opts))
	}

	if _, err := buildEngineOpts(Config{Timezone: "Mars/Olympus"}, nil); err == nil {
		t.Fatal("unknown timezone: want error")
	}
}
