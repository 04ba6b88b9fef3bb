package branch

import (
	"context"

	"github.com/xraph/billbook/id"
)

// Store persists branches. Code and Name are unique.
type Store interface {
	CreateBranch(ctx context.Context, b *Branch) error
	GetBranch(ctx context.Context, branchID id.BranchID) (*Branch, error)
	GetBranchByCode(ctx context.Context, code string) (*Branch, error)
	ListBranches(ctx context.Context, opts ListOpts) ([]*Branch, error)
	SetBranchActive(ctx context.Context, branchID id.BranchID, active bool) error
}
