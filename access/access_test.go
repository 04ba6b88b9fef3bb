package access_test

import (
	"errors"
	"testing"

	"github.com/xraph/billbook/access"
	"github.com/xraph/billbook/id"
)

func TestRoleCan(t *testing.T) {
	tests := []struct {
		role access.Role
		cap  access.Capability
		want bool
	}{
		{access.RoleAdmin, access.ExportLedger, true},
		{access.RoleAdmin, access.CreateInvoices, true},
		{access.RoleSales, access.CreateInvoices, true},
		{access.RoleSales, access.ViewReports, true},
		{access.RoleSales, access.ExportLedger, false},
		{access.RoleSales, access.ManageBranches, false},
		{access.RoleInventory, access.CreateInvoices, false},
		{access.RoleInventory, access.ViewInventory, true},
		{access.Role("Admin"), access.ExportLedger, false},
		{access.Role(""), access.ViewInvoices, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.cap), func(t *testing.T) {
			if got := tt.role.Can(tt.cap); got != tt.want {
				t.Errorf("Can = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	if r, err := access.ParseRole("sales"); err != nil || r != access.RoleSales {
		t.Errorf("ParseRole(sales) = %q, %v", r, err)
	}
	if _, err := access.ParseRole("superuser"); !errors.Is(err, access.ErrUnknownRole) {
		t.Errorf("expected ErrUnknownRole, got %v", err)
	}
}

func TestCapabilities(t *testing.T) {
	caps := access.RoleSales.Capabilities()
	if len(caps) != 4 || caps[0] != access.CreateInvoices {
		t.Errorf("sales capabilities: %v", caps)
	}
}

func TestCanUseBranch(t *testing.T) {
	own, other := id.NewBranchID(), id.NewBranchID()

	sales := access.Actor{Role: access.RoleSales, BranchID: own}
	if !sales.CanUseBranch(own) || sales.CanUseBranch(other) {
		t.Error("sales is limited to its own branch")
	}
	if (access.Actor{Role: access.RoleSales}).CanUseBranch(own) {
		t.Error("actor without a branch may not use any branch")
	}
	if !access.System.CanUseBranch(other) {
		t.Error("system acts on every branch")
	}
}
