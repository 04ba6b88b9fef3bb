// Package access maps operator roles to a fixed set of capabilities.
package access

import (
	"errors"
	"fmt"

	"github.com/xraph/billbook/id"
)

// Capability is one thing an operator may do.
type Capability string

const (
	CreateInvoices   Capability = "create_invoices"
	ViewInvoices     Capability = "view_invoices"
	ProcessPayments  Capability = "process_payments"
	ViewReports      Capability = "view_reports"
	ExportLedger     Capability = "export_ledger"
	ManageBranches   Capability = "manage_branches"
	ManageUsers      Capability = "manage_users"
	ManageInventory  Capability = "manage_inventory"
	ViewInventory    Capability = "view_inventory"
	ProcessTransfers Capability = "process_transfers"
	// AllBranches lifts the own-branch restriction.
	AllBranches Capability = "all_branches"
)

// Role is an operator role.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleSales     Role = "sales"
	RoleInventory Role = "inventory"
)

// ErrUnknownRole is returned by ParseRole.
var ErrUnknownRole = errors.New("access: unknown role")

var grants = map[Role]map[Capability]struct{}{
	RoleAdmin: set(
		CreateInvoices, ViewInvoices, ProcessPayments, ViewReports, ExportLedger,
		ManageBranches, ManageUsers, ManageInventory, ViewInventory, ProcessTransfers,
		AllBranches,
	),
	RoleSales: set(
		CreateInvoices, ViewInvoices, ProcessPayments, ViewReports,
	),
	RoleInventory: set(
		ManageInventory, ViewInventory, ProcessTransfers,
	),
}

func set(caps ...Capability) map[Capability]struct{} {
	m := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		m[c] = struct{}{}
	}
	return m
}

// ParseRole accepts only the known role names.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := grants[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// Can reports whether r holds c. Unknown roles hold nothing.
func (r Role) Can(c Capability) bool {
	_, ok := grants[r][c]
	return ok
}

// Capabilities lists what r holds, in declaration order.
func (r Role) Capabilities() []Capability {
	all := []Capability{
		CreateInvoices, ViewInvoices, ProcessPayments, ViewReports, ExportLedger,
		ManageBranches, ManageUsers, ManageInventory, ViewInventory, ProcessTransfers,
		AllBranches,
	}
	out := make([]Capability, 0, len(all))
	for _, c := range all {
		if r.Can(c) {
			out = append(out, c)
		}
	}
	return out
}

// Actor is the operator on whose behalf an engine call runs.
type Actor struct {
	UserID   id.UserID   `json:"user_id"`
	Name     string      `json:"name"`
	Role     Role        `json:"role"`
	BranchID id.BranchID `json:"branch_id"`
}

// System is used by internal callers such as the CLI and gateway
// callbacks, which act across all branches.
var System = Actor{Name: "system", Role: RoleAdmin}

// Can reports whether the actor's role holds c.
func (a Actor) Can(c Capability) bool { return a.Role.Can(c) }

// CanUseBranch reports whether a may act on branchID: its own branch, or
// any branch when it holds AllBranches.
func (a Actor) CanUseBranch(branchID id.BranchID) bool {
	if a.Can(AllBranches) {
		return true
	}
	return !a.BranchID.IsNil() && a.BranchID.String() == branchID.String()
}
