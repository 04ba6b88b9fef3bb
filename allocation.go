package billbook

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/billbook/branch"
	"github.com/xraph/billbook/id"
	"github.com/xraph/billbook/sequence"
)

// NextInvoiceNumber allocates the next number for branchID in the month
// containing now. Every call consumes a sequence value, so it must only be
// called for an invoice that is about to be stored.
func (e *Engine) NextInvoiceNumber(ctx context.Context, branchID id.BranchID, now time.Time) (string, error) {
	b, err := e.activeBranch(ctx, branchID, now)
	if err != nil {
		return "", err
	}
	return e.allocate(ctx, b, now)
}

func (e *Engine) activeBranch(ctx context.Context, branchID id.BranchID, now time.Time) (*branch.Branch, error) {
	period := sequence.Period(now, e.location)

	b, err := e.GetBranch(ctx, branchID)
	if err != nil {
		if errors.Is(err, ErrBranchNotFound) {
			return nil, &AllocationError{BranchID: branchID, Period: period, Err: ErrBranchNotFound}
		}
		return nil, &AllocationError{BranchID: branchID, Period: period, Err: err}
	}
	if !b.Active {
		return nil, &AllocationError{BranchID: branchID, Period: period, Err: ErrBranchInactive}
	}
	return b, nil
}

func (e *Engine) allocate(ctx context.Context, b *branch.Branch, now time.Time) (string, error) {
	period := sequence.Period(now, e.location)

	seq, err := e.store.NextInvoiceSequence(ctx, b.ID, period)
	if err != nil {
		return "", &AllocationError{BranchID: b.ID, Period: period, Err: err}
	}

	number := sequence.Format(b.Code, period, seq)
	e.logger.Debug("invoice number allocated", "branch", b.Code, "period", period, "number", number)
	return number, nil
}
