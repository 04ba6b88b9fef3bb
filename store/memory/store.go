// Package memory is an in-process store.Store for tests and demos. One
// mutex guards everything, which makes every conditional write trivially
// atomic.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xraph/billbook"
	"github.com/xraph/billbook/branch"
	"github.com/xraph/billbook/export"
	"github.com/xraph/billbook/id"
	"github.com/xraph/billbook/invoice"
	"github.com/xraph/billbook/payment"
	"github.com/xraph/billbook/sequence"
	"github.com/xraph/billbook/store"
)

var _ store.Store = (*Store)(nil)

type claim struct {
	token string
	at    time.Time
}

// Store keeps every record in maps keyed by ID string. Reads return copies.
type Store struct {
	mu     sync.RWMutex
	closed bool

	branches map[string]*branch.Branch

	// sequences is keyed by branch ID and period.
	sequences map[string]int64

	invoices map[string]*invoice.Invoice
	claims   map[string]claim

	batches map[string]*export.Batch
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		branches:  make(map[string]*branch.Branch),
		sequences: make(map[string]int64),
		invoices:  make(map[string]*invoice.Invoice),
		claims:    make(map[string]claim),
		batches:   make(map[string]*export.Batch),
	}
}

// Branch Store implementation

func (s *Store) CreateBranch(_ context.Context, b *branch.Branch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.branches[b.ID.String()]; exists {
		return billbook.ErrAlreadyExists
	}
	for _, other := range s.branches {
		if other.Code == b.Code {
			return fmt.Errorf("%w: branch code %s", billbook.ErrAlreadyExists, b.Code)
		}
		if other.Name == b.Name {
			return fmt.Errorf("%w: branch name %s", billbook.ErrAlreadyExists, b.Name)
		}
	}
	s.branches[b.ID.String()] = cloneBranch(b)
	return nil
}

func (s *Store) GetBranch(_ context.Context, branchID id.BranchID) (*branch.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.branches[branchID.String()]; ok {
		return cloneBranch(b), nil
	}
	return nil, billbook.ErrBranchNotFound
}

func (s *Store) GetBranchByCode(_ context.Context, code string) (*branch.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.branches {
		if b.Code == code {
			return cloneBranch(b), nil
		}
	}
	return nil, billbook.ErrBranchNotFound
}

func (s *Store) ListBranches(_ context.Context, opts branch.ListOpts) ([]*branch.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*branch.Branch, 0, len(s.branches))
	for _, b := range s.branches {
		if opts.ActiveOnly && !b.Active {
			continue
		}
		result = append(result, cloneBranch(b))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) SetBranchActive(_ context.Context, branchID id.BranchID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.branches[branchID.String()]
	if !ok {
		return billbook.ErrBranchNotFound
	}
	b.Active = active
	b.Touch()
	return nil
}

// Sequence implementation

func (s *Store) NextInvoiceSequence(_ context.Context, branchID id.BranchID, period string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, billbook.ErrStoreClosed
	}
	key := branchID.String() + "/" + period
	s.sequences[key]++
	return s.sequences[key], nil
}

// Invoice Store implementation

func (s *Store) CreateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return billbook.ErrStoreClosed
	}
	if _, exists := s.invoices[inv.ID.String()]; exists {
		return billbook.ErrAlreadyExists
	}
	for _, other := range s.invoices {
		if other.Number == inv.Number {
			return fmt.Errorf("%w: invoice number %s", billbook.ErrAlreadyExists, inv.Number)
		}
		if ref := inv.Payment.UPIReference; ref != "" && other.Payment.UPIReference == ref {
			return fmt.Errorf("%w: %s", billbook.ErrDuplicateReference, ref)
		}
	}
	s.invoices[inv.ID.String()] = cloneInvoice(inv)
	return nil
}

func (s *Store) GetInvoice(_ context.Context, invoiceID id.InvoiceID) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if inv, ok := s.invoices[invoiceID.String()]; ok {
		return cloneInvoice(inv), nil
	}
	return nil, billbook.ErrInvoiceNotFound
}

func (s *Store) GetInvoiceByNumber(_ context.Context, number string) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inv := range s.invoices {
		if inv.Number == number {
			return cloneInvoice(inv), nil
		}
	}
	return nil, billbook.ErrInvoiceNotFound
}

func (s *Store) GetInvoiceByUPIReference(_ context.Context, ref string) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ref == "" {
		return nil, billbook.ErrInvoiceNotFound
	}
	for _, inv := range s.invoices {
		if inv.Payment.UPIReference == ref {
			return cloneInvoice(inv), nil
		}
	}
	return nil, billbook.ErrInvoiceNotFound
}

func (s *Store) ListInvoices(_ context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*invoice.Invoice, 0)
	for _, inv := range s.invoices {
		if opts.Matches(inv) {
			result = append(result, cloneInvoice(inv))
		}
	}
	sortInvoices(result)

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) MarkInvoicePrinted(_ context.Context, invoiceID id.InvoiceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invoiceID.String()]
	if !ok {
		return billbook.ErrInvoiceNotFound
	}
	inv.Printed = true
	inv.Touch()
	return nil
}

func (s *Store) TransitionPayment(_ context.Context, invoiceID id.InvoiceID, from, to payment.Status, ev payment.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invoiceID.String()]
	if !ok {
		return billbook.ErrInvoiceNotFound
	}
	if inv.Payment.Status != from {
		return billbook.ErrInvalidTransition
	}

	at := ev.At
	inv.Payment.Status = to
	inv.Payment.EvidenceRef = ev.Reference
	inv.Payment.EvidenceSource = ev.Source
	inv.Payment.SettledAt = &at
	inv.Touch()
	return nil
}

func (s *Store) AttachUPIReference(_ context.Context, invoiceID id.InvoiceID, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invoiceID.String()]
	if !ok {
		return billbook.ErrInvoiceNotFound
	}
	for key, other := range s.invoices {
		if key != invoiceID.String() && other.Payment.UPIReference == ref {
			return fmt.Errorf("%w: %s", billbook.ErrDuplicateReference, ref)
		}
	}
	if inv.Payment.UPIReference != "" {
		return billbook.ErrReferenceAlreadySet
	}
	if inv.Payment.Status != payment.StatusPending {
		return billbook.ErrInvalidTransition
	}

	inv.Payment.UPIReference = ref
	inv.Touch()
	return nil
}

// Export Store implementation

func (s *Store) ClaimForExport(_ context.Context, f export.Filter, token string, now, staleBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, inv := range s.invoices {
		if inv.Exported || !f.Matches(inv) {
			continue
		}
		if c, held := s.claims[key]; held && !c.at.Before(staleBefore) {
			continue
		}
		s.claims[key] = claim{token: token, at: now}
		n++
	}
	return n, nil
}

func (s *Store) ListClaimed(_ context.Context, token string) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*invoice.Invoice, 0)
	for key, c := range s.claims {
		if c.token != token {
			continue
		}
		if inv, ok := s.invoices[key]; ok && !inv.Exported {
			result = append(result, cloneInvoice(inv))
		}
	}
	sortInvoices(result)
	return result, nil
}

func (s *Store) MarkExported(_ context.Context, token string, batchID id.ExportBatchID, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, c := range s.claims {
		if c.token != token {
			continue
		}
		inv, ok := s.invoices[key]
		if !ok || inv.Exported {
			continue
		}
		exportedAt := at
		inv.Exported = true
		inv.ExportBatchID = batchID
		inv.ExportedAt = &exportedAt
		inv.Touch()
		delete(s.claims, key)
		n++
	}
	return n, nil
}

func (s *Store) ReleaseClaim(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, c := range s.claims {
		if c.token == token {
			delete(s.claims, key)
		}
	}
	return nil
}

func (s *Store) RecordBatch(_ context.Context, b *export.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.batches[b.ID.String()]; exists {
		return billbook.ErrAlreadyExists
	}
	s.batches[b.ID.String()] = cloneBatch(b)
	return nil
}

func (s *Store) GetBatch(_ context.Context, batchID id.ExportBatchID) (*export.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.batches[batchID.String()]; ok {
		return cloneBatch(b), nil
	}
	return nil, billbook.ErrBatchNotFound
}

func (s *Store) ListBatches(_ context.Context, limit int) ([]*export.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*export.Batch, 0, len(s.batches))
	for _, b := range s.batches {
		result = append(result, cloneBatch(b))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DeliveredAt.After(result[j].DeliveredAt) })

	return paginate(result, 0, limit), nil
}

func (s *Store) CountExportStatus(_ context.Context, f export.Filter) (export.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st export.Status
	for _, inv := range s.invoices {
		if !f.Matches(inv) {
			continue
		}
		st.Total++
		if inv.Exported {
			st.Exported++
		}
	}
	st.Pending = st.Total - st.Exported
	return st, nil
}

// Core methods

func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return billbook.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// sortInvoices orders by creation time, then by invoice number.
func sortInvoices(invs []*invoice.Invoice) {
	sort.Slice(invs, func(i, j int) bool {
		if !invs[i].CreatedAt.Equal(invs[j].CreatedAt) {
			return invs[i].CreatedAt.Before(invs[j].CreatedAt)
		}
		return sequence.Compare(invs[i].Number, invs[j].Number) < 0
	})
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset > len(items) {
		offset = len(items)
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func cloneBranch(b *branch.Branch) *branch.Branch {
	c := *b
	if b.Meta != nil {
		c.Meta = make(map[string]string, len(b.Meta))
		for k, v := range b.Meta {
			c.Meta[k] = v
		}
	}
	return &c
}

func cloneInvoice(inv *invoice.Invoice) *invoice.Invoice {
	c := *inv
	c.Items = append([]invoice.LineItem(nil), inv.Items...)
	if inv.Metadata != nil {
		c.Metadata = make(map[string]string, len(inv.Metadata))
		for k, v := range inv.Metadata {
			c.Metadata[k] = v
		}
	}
	if inv.Payment.SettledAt != nil {
		t := *inv.Payment.SettledAt
		c.Payment.SettledAt = &t
	}
	if inv.ExportedAt != nil {
		t := *inv.ExportedAt
		c.ExportedAt = &t
	}
	return &c
}

func cloneBatch(b *export.Batch) *export.Batch {
	c := *b
	c.InvoiceIDs = append([]id.InvoiceID(nil), b.InvoiceIDs...)
	return &c
}
