package billbook

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/billbook/access"
	"github.com/xraph/billbook/branch"
	"github.com/xraph/billbook/id"
	"github.com/xraph/billbook/types"
)

// CreateBranch validates and stores a new branch. The code is normalized to
// upper case and must be unique.
func (e *Engine) CreateBranch(ctx context.Context, actor access.Actor, b *branch.Branch) error {
	if !actor.Can(access.ManageBranches) {
		return forbidden(actor, access.ManageBranches)
	}

	b.Code = branch.NormalizeCode(b.Code)
	if err := b.Validate(); err != nil {
		field := "name"
		if errors.Is(err, branch.ErrInvalidCode) {
			field = "code"
		}
		return ValidationError{Field: field, Message: err.Error()}
	}

	if b.ID.IsNil() {
		b.ID = id.NewBranchID()
	}
	b.Entity = types.NewEntityAt(e.now())

	if err := e.store.CreateBranch(ctx, b); err != nil {
		return err
	}

	e.logger.Info("branch created", "branch_id", b.ID.String(), "code", b.Code)
	e.plugins.EmitBranchCreated(ctx, b)
	return nil
}

// GetBranch returns a branch, serving repeat lookups from the cache.
func (e *Engine) GetBranch(ctx context.Context, branchID id.BranchID) (*branch.Branch, error) {
	cached, ok, err := e.branches.Get(ctx, branchID)
	switch {
	case err != nil:
		// A broken cache degrades to store reads.
		e.logger.Warn("branch cache read failed", "branch_id", branchID.String(), "error", err)
	case ok:
		return cached, nil
	}

	b, err := e.store.GetBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}
	if err := e.branches.Set(ctx, b); err != nil {
		e.logger.Warn("branch cache write failed", "branch_id", branchID.String(), "error", err)
	}
	return b, nil
}

// GetBranchByCode looks a branch up by its code.
func (e *Engine) GetBranchByCode(ctx context.Context, code string) (*branch.Branch, error) {
	return e.store.GetBranchByCode(ctx, branch.NormalizeCode(code))
}

// ListBranches lists branches.
func (e *Engine) ListBranches(ctx context.Context, opts branch.ListOpts) ([]*branch.Branch, error) {
	return e.store.ListBranches(ctx, opts)
}

// SetBranchActive opens or closes a branch for new invoices.
func (e *Engine) SetBranchActive(ctx context.Context, actor access.Actor, branchID id.BranchID, active bool) error {
	if !actor.Can(access.ManageBranches) {
		return forbidden(actor, access.ManageBranches)
	}
	if err := e.store.SetBranchActive(ctx, branchID, active); err != nil {
		return err
	}
	if err := e.branches.Invalidate(ctx, branchID); err != nil {
		// Stale entries expire with the cache TTL.
		e.logger.Warn("branch cache invalidate failed", "branch_id", branchID.String(), "error", err)
	}
	e.logger.Info("branch status changed", "branch_id", branchID.String(), "active", active)
	return nil
}

func forbidden(actor access.Actor, c access.Capability) error {
	return fmt.Errorf("%w: role %q lacks %s", ErrForbidden, actor.Role, c)
}
