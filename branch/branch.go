// Package branch models the physical sales locations that own an invoice
// numbering sequence.
package branch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/billbook/id"
	"github.com/xraph/billbook/types"
)

// ErrInvalidCode is returned for codes that are not 3 to 5 uppercase ASCII letters.
var ErrInvalidCode = errors.New("branch: code must be 3-5 uppercase letters")

// Branch is a sales location. Its Code prefixes every invoice number issued
// there and never changes after creation.
type Branch struct {
	types.Entity
	ID      id.BranchID       `json:"id"`
	Name    string            `json:"name"`
	Code    string            `json:"code"`
	Address string            `json:"address,omitempty"`
	Contact Contact           `json:"contact"`
	Active  bool              `json:"active"`
	Meta    map[string]string `json:"metadata,omitempty"`
}

// Contact holds a branch's phone and email.
type Contact struct {
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// ListOpts filters branch listings.
type ListOpts struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}

// NormalizeCode trims and upper-cases user input.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateCode checks the 3-5 uppercase letter rule.
func ValidateCode(code string) error {
	if len(code) < 3 || len(code) > 5 {
		return fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("%w: %q", ErrInvalidCode, code)
		}
	}
	return nil
}

// Validate checks the fields required before a branch is stored.
func (b *Branch) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return errors.New("branch: name is required")
	}
	return ValidateCode(b.Code)
}
