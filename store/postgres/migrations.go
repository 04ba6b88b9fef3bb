package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the billbook store.
var Migrations = migrate.NewGroup("billbook")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_billbook_branches",
			Version: "20240301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS billbook_branches (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    code       TEXT NOT NULL,
    address    TEXT NOT NULL DEFAULT '',
    phone      TEXT NOT NULL DEFAULT '',
    email      TEXT NOT NULL DEFAULT '',
    active     BOOLEAN NOT NULL DEFAULT TRUE,
    metadata   JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_billbook_branches_code ON billbook_branches (code);
CREATE UNIQUE INDEX IF NOT EXISTS idx_billbook_branches_name ON billbook_branches (name);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS billbook_branches`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_billbook_invoice_sequences",
			Version: "20240301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS billbook_invoice_sequences (
    branch_id  TEXT NOT NULL,
    period     CHAR(4) NOT NULL,
    last_value BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (branch_id, period)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS billbook_invoice_sequences`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_billbook_invoices",
			Version: "20240301000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS billbook_invoices (
    id                TEXT PRIMARY KEY,
    number            TEXT NOT NULL,
    branch_id         TEXT NOT NULL REFERENCES billbook_branches (id),
    branch_code       TEXT NOT NULL,
    customer          JSONB NOT NULL DEFAULT '{}',
    items             JSONB NOT NULL DEFAULT '[]',
    currency          TEXT NOT NULL,
    subtotal_amount   BIGINT NOT NULL DEFAULT 0,
    tax_amount        BIGINT NOT NULL DEFAULT 0,
    total_amount      BIGINT NOT NULL DEFAULT 0,
    payment_mode      TEXT NOT NULL,
    payment_status    TEXT NOT NULL DEFAULT 'pending',
    cash_amount       BIGINT NOT NULL DEFAULT 0,
    upi_amount        BIGINT NOT NULL DEFAULT 0,
    credit_amount     BIGINT NOT NULL DEFAULT 0,
    upi_reference     TEXT NOT NULL DEFAULT '',
    evidence_ref      TEXT NOT NULL DEFAULT '',
    evidence_source   TEXT NOT NULL DEFAULT '',
    settled_at        TIMESTAMPTZ,
    created_by        TEXT NOT NULL DEFAULT '',
    created_by_name   TEXT NOT NULL DEFAULT '',
    printed           BOOLEAN NOT NULL DEFAULT FALSE,
    exported          BOOLEAN NOT NULL DEFAULT FALSE,
    export_batch_id   TEXT NOT NULL DEFAULT '',
    exported_at       TIMESTAMPTZ,
    export_claim      TEXT NOT NULL DEFAULT '',
    export_claimed_at TIMESTAMPTZ,
    metadata          JSONB NOT NULL DEFAULT '{}',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT chk_billbook_invoices_total CHECK (total_amount = subtotal_amount + tax_amount),
    CONSTRAINT chk_billbook_invoices_split CHECK (
        payment_mode <> 'split' OR cash_amount + upi_amount + credit_amount = total_amount
    )
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_billbook_invoices_number ON billbook_invoices (number);
CREATE UNIQUE INDEX IF NOT EXISTS idx_billbook_invoices_upi_ref ON billbook_invoices (upi_reference) WHERE upi_reference <> '';
CREATE INDEX IF NOT EXISTS idx_billbook_invoices_branch_created ON billbook_invoices (branch_id, created_at);
CREATE INDEX IF NOT EXISTS idx_billbook_invoices_status ON billbook_invoices (payment_status, created_at);
CREATE INDEX IF NOT EXISTS idx_billbook_invoices_unexported ON billbook_invoices (created_at) WHERE exported = FALSE;
CREATE INDEX IF NOT EXISTS idx_billbook_invoices_claim ON billbook_invoices (export_claim) WHERE export_claim <> '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS billbook_invoices`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_billbook_export_batches",
			Version: "20240301000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS billbook_export_batches (
    id               TEXT PRIMARY KEY,
    filter_from      TIMESTAMPTZ,
    filter_to        TIMESTAMPTZ,
    filter_branch_id TEXT NOT NULL DEFAULT '',
    invoice_ids      JSONB NOT NULL DEFAULT '[]',
    invoice_count    INT NOT NULL DEFAULT 0,
    total_amount     BIGINT NOT NULL DEFAULT 0,
    total_currency   TEXT NOT NULL DEFAULT '',
    format           TEXT NOT NULL DEFAULT '',
    artifact         TEXT NOT NULL DEFAULT '',
    delivered_at     TIMESTAMPTZ NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_billbook_export_batches_delivered ON billbook_export_batches (delivered_at DESC);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS billbook_export_batches`)
				return err
			},
		},
	)
}
