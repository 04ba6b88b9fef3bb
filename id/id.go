// Package id defines TypeID-based identifiers for billbook entities.
//
// An ID is a prefix plus a K-sortable UUIDv7 suffix ("inv_01h2xc...").
// The prefix names the entity type so that an invoice ID can never be
// confused with a branch ID, even when both are stored as plain text.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for all billbook entity types.
const (
	PrefixBranch      Prefix = "br"  // Sales branch
	PrefixInvoice     Prefix = "inv" // Invoice
	PrefixLineItem    Prefix = "li"  // Invoice line item
	PrefixExportBatch Prefix = "exp" // Ledger export batch
	PrefixUser        Prefix = "usr" // Operator creating invoices
	PrefixProduct     Prefix = "prd" // Catalog product
)

// ID is the identifier type for every billbook entity.
// It wraps a TypeID providing a prefix-qualified, globally unique,
// sortable, URL-safe identifier in the format "prefix_suffix".
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g., "inv_01h2xcejqtf2nbrexx3vqjhp41")
// into an ID. Returns an error if the string is not valid.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and validates that its prefix
// matches the expected value.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// BranchID identifies a branch (prefix: "br").
type BranchID = ID

// InvoiceID identifies an invoice (prefix: "inv").
type InvoiceID = ID

// LineItemID identifies a line item (prefix: "li").
type LineItemID = ID

// ExportBatchID identifies an export batch (prefix: "exp").
type ExportBatchID = ID

// UserID identifies an operator (prefix: "usr").
type UserID = ID

// ProductID identifies a catalog product (prefix: "prd").
type ProductID = ID

// NewBranchID generates a new branch ID.
func NewBranchID() ID { return New(PrefixBranch) }

// NewInvoiceID generates a new invoice ID.
func NewInvoiceID() ID { return New(PrefixInvoice) }

// NewLineItemID generates a new line item ID.
func NewLineItemID() ID { return New(PrefixLineItem) }

// NewExportBatchID generates a new export batch ID.
func NewExportBatchID() ID { return New(PrefixExportBatch) }

// NewUserID generates a new user ID.
func NewUserID() ID { return New(PrefixUser) }

// NewProductID generates a new product ID.
func NewProductID() ID { return New(PrefixProduct) }

// ParseBranchID parses s and checks the "br" prefix.
func ParseBranchID(s string) (ID, error) { return ParseWithPrefix(s, PrefixBranch) }

// ParseInvoiceID parses s and checks the "inv" prefix.
func ParseInvoiceID(s string) (ID, error) { return ParseWithPrefix(s, PrefixInvoice) }

// ParseLineItemID parses s and checks the "li" prefix.
func ParseLineItemID(s string) (ID, error) { return ParseWithPrefix(s, PrefixLineItem) }

// ParseExportBatchID parses s and checks the "exp" prefix.
func ParseExportBatchID(s string) (ID, error) { return ParseWithPrefix(s, PrefixExportBatch) }

// ParseUserID parses s and checks the "usr" prefix.
func ParseUserID(s string) (ID, error) { return ParseWithPrefix(s, PrefixUser) }

// ParseProductID parses s and checks the "prd" prefix.
func ParseProductID(s string) (ID, error) { return ParseWithPrefix(s, PrefixProduct) }

// ParseOptional parses s with the expected prefix, treating "" as Nil.
// Stores use it for nullable reference columns.
func ParseOptional(s string, expected Prefix) (ID, error) {
	if s == "" {
		return Nil, nil
	}
	return ParseWithPrefix(s, expected)
}

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// Value implements driver.Valuer for database storage.
// Returns nil for the Nil ID so that optional foreign key columns store NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return i.inner.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (i *ID) Scan(src any) error {
	if src == nil {
		*i = Nil

		return nil
	}

	switch v := src.(type) {
	case string:
		if v == "" {
			*i = Nil

			return nil
		}

		return i.UnmarshalText([]byte(v))
	case []byte:
		if len(v) == 0 {
			*i = Nil

			return nil
		}

		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
