package export

import (
	"context"
	"time"

	"github.com/xraph/billbook/id"
	"github.com/xraph/billbook/invoice"
)

// Store holds the export bookkeeping on invoices and the batch log.
type Store interface {
	// ClaimForExport stamps token on every unexported invoice matching f
	// whose claim is empty or older than staleBefore, in a single write.
	// It returns the number of invoices claimed.
	ClaimForExport(ctx context.Context, f Filter, token string, now, staleBefore time.Time) (int64, error)

	// ListClaimed returns the invoices holding token, ordered by number.
	ListClaimed(ctx context.Context, token string) ([]*invoice.Invoice, error)

	// MarkExported flags the invoices still holding token as exported and
	// clears the claim. It returns the number flagged.
	MarkExported(ctx context.Context, token string, batchID id.ExportBatchID, at time.Time) (int64, error)

	// ReleaseClaim clears token from unexported invoices.
	ReleaseClaim(ctx context.Context, token string) error

	RecordBatch(ctx context.Context, b *Batch) error
	GetBatch(ctx context.Context, batchID id.ExportBatchID) (*Batch, error)
	ListBatches(ctx context.Context, limit int) ([]*Batch, error)

	CountExportStatus(ctx context.Context, f Filter) (Status, error)
}
