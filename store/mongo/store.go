package mongo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/billbook"
	"github.com/xraph/billbook/branch"
	"github.com/xraph/billbook/export"
	"github.com/xraph/billbook/id"
	"github.com/xraph/billbook/invoice"
	"github.com/xraph/billbook/payment"
	"github.com/xraph/billbook/sequence"
	bbstore "github.com/xraph/billbook/store"
)

// Collection name constants.
const (
	colBranches  = "billbook_branches"
	colSequences = "billbook_invoice_sequences"
	colInvoices  = "billbook_invoices"
	colBatches   = "billbook_export_batches"
)

// compile-time interface check
var _ bbstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all billbook collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("billbook/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Branch Store ====================

func (s *Store) CreateBranch(ctx context.Context, b *branch.Branch) error {
	_, err := s.mdb.NewInsert(toBranchModel(b)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: branch %s", billbook.ErrAlreadyExists, b.Code)
		}
		return fmt.Errorf("billbook/mongo: create branch: %w", err)
	}
	return nil
}

func (s *Store) GetBranch(ctx context.Context, branchID id.BranchID) (*branch.Branch, error) {
	return s.findBranch(ctx, bson.M{"_id": branchID.String()})
}

func (s *Store) GetBranchByCode(ctx context.Context, code string) (*branch.Branch, error) {
	return s.findBranch(ctx, bson.M{"code": code})
}

func (s *Store) findBranch(ctx context.Context, filter bson.M) (*branch.Branch, error) {
	var m branchModel
	err := s.mdb.NewFind(&m).
		Filter(filter).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, billbook.ErrBranchNotFound
		}
		return nil, fmt.Errorf("billbook/mongo: get branch: %w", err)
	}
	return fromBranchModel(&m)
}

func (s *Store) ListBranches(ctx context.Context, opts branch.ListOpts) ([]*branch.Branch, error) {
	var models []branchModel

	filter := bson.M{}
	if opts.ActiveOnly {
		filter["active"] = true
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "code", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("billbook/mongo: list branches: %w", err)
	}

	result := make([]*branch.Branch, len(models))
	for i := range models {
		b, err := fromBranchModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = b
	}
	return result, nil
}

func (s *Store) SetBranchActive(ctx context.Context, branchID id.BranchID, active bool) error {
	res, err := s.mdb.NewUpdate((*branchModel)(nil)).
		Filter(bson.M{"_id": branchID.String()}).
		Set("active", active).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("billbook/mongo: set branch active: %w", err)
	}
	if res.MatchedCount() == 0 {
		return billbook.ErrBranchNotFound
	}
	return nil
}

// ==================== Sequence ====================

// NextInvoiceSequence increments the (branch, period) counter with a single
// findAndModify. Two first calls for a new period may race on the upsert;
// the loser hits the unique _id and retries against the existing document.
func (s *Store) NextInvoiceSequence(ctx context.Context, branchID id.BranchID, period string) (int64, error) {
	filter := bson.M{"_id": branchID.String() + "/" + period}
	update := bson.M{
		"$inc":         bson.M{"last_value": int64(1)},
		"$set":         bson.M{"updated_at": now()},
		"$setOnInsert": bson.M{"branch_id": branchID.String(), "period": period},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	const attempts = 3
	var err error
	for i := 0; i < attempts; i++ {
		var m sequenceModel
		err = s.mdb.Collection(colSequences).FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
		if err == nil {
			return m.LastValue, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			break
		}
	}
	return 0, fmt.Errorf("billbook/mongo: next invoice sequence: %w", err)
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	_, err := s.mdb.NewInsert(toInvoiceModel(inv)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if strings.Contains(err.Error(), "upi_reference") {
				return fmt.Errorf("%w: %s", billbook.ErrDuplicateReference, inv.Payment.UPIReference)
			}
			return fmt.Errorf("%w: invoice %s", billbook.ErrAlreadyExists, inv.Number)
		}
		return fmt.Errorf("billbook/mongo: create invoice: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invoiceID id.InvoiceID) (*invoice.Invoice, error) {
	return s.findInvoice(ctx, bson.M{"_id": invoiceID.String()})
}

func (s *Store) GetInvoiceByNumber(ctx context.Context, number string) (*invoice.Invoice, error) {
	return s.findInvoice(ctx, bson.M{"number": number})
}

func (s *Store) GetInvoiceByUPIReference(ctx context.Context, ref string) (*invoice.Invoice, error) {
	if ref == "" {
		return nil, billbook.ErrInvoiceNotFound
	}
	return s.findInvoice(ctx, bson.M{"upi_reference": ref})
}

func (s *Store) findInvoice(ctx context.Context, filter bson.M) (*invoice.Invoice, error) {
	var m invoiceModel
	err := s.mdb.NewFind(&m).
		Filter(filter).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, billbook.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("billbook/mongo: get invoice: %w", err)
	}
	return fromInvoiceModel(&m)
}

func (s *Store) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []invoiceModel

	filter := filterDoc(export.Filter{From: opts.Start, To: opts.End, BranchID: opts.BranchID})
	if !opts.CreatedBy.IsNil() {
		filter["created_by"] = opts.CreatedBy.String()
	}
	if opts.Mode != "" {
		filter["payment_mode"] = string(opts.Mode)
	}
	if opts.Status != "" {
		filter["payment_status"] = string(opts.Status)
	}
	if opts.Exported != nil {
		filter["exported"] = *opts.Exported
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "number", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("billbook/mongo: list invoices: %w", err)
	}
	return fromInvoiceModels(models)
}

func (s *Store) MarkInvoicePrinted(ctx context.Context, invoiceID id.InvoiceID) error {
	res, err := s.mdb.NewUpdate((*invoiceModel)(nil)).
		Filter(bson.M{"_id": invoiceID.String()}).
		Set("printed", true).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("billbook/mongo: mark printed: %w", err)
	}
	if res.MatchedCount() == 0 {
		return billbook.ErrInvoiceNotFound
	}
	return nil
}

func (s *Store) TransitionPayment(ctx context.Context, invoiceID id.InvoiceID, from, to payment.Status, ev payment.Evidence) error {
	res, err := s.mdb.NewUpdate((*invoiceModel)(nil)).
		Filter(bson.M{"_id": invoiceID.String(), "payment_status": string(from)}).
		Set("payment_status", string(to)).
		Set("evidence_ref", ev.Reference).
		Set("evidence_source", ev.Source).
		Set("settled_at", ev.At.UTC()).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("billbook/mongo: transition payment: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.GetInvoice(ctx, invoiceID); err != nil {
			return err
		}
		return billbook.ErrInvalidTransition
	}
	return nil
}

func (s *Store) AttachUPIReference(ctx context.Context, invoiceID id.InvoiceID, ref string) error {
	res, err := s.mdb.NewUpdate((*invoiceModel)(nil)).
		Filter(bson.M{
			"_id":            invoiceID.String(),
			"upi_reference":  bson.M{"$in": bson.A{nil, ""}},
			"payment_status": string(payment.StatusPending),
		}).
		Set("upi_reference", ref).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", billbook.ErrDuplicateReference, ref)
		}
		return fmt.Errorf("billbook/mongo: attach upi reference: %w", err)
	}
	if res.MatchedCount() == 0 {
		inv, err := s.GetInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Payment.UPIReference != "" {
			return billbook.ErrReferenceAlreadySet
		}
		return billbook.ErrInvalidTransition
	}
	return nil
}

// ==================== Export Store ====================

// ClaimForExport uses updateMany. Each document update re-evaluates the
// filter, so a document already taken by a concurrent claimer is skipped.
func (s *Store) ClaimForExport(ctx context.Context, f export.Filter, token string, claimedAt, staleBefore time.Time) (int64, error) {
	filter := filterDoc(f)
	filter["exported"] = false
	filter["$or"] = bson.A{
		bson.M{"export_claim": ""},
		bson.M{"export_claimed_at": bson.M{"$lt": staleBefore.UTC()}},
	}

	res, err := s.mdb.Collection(colInvoices).UpdateMany(ctx, filter, bson.M{
		"$set": bson.M{"export_claim": token, "export_claimed_at": claimedAt.UTC()},
	})
	if err != nil {
		return 0, fmt.Errorf("billbook/mongo: claim for export: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *Store) ListClaimed(ctx context.Context, token string) ([]*invoice.Invoice, error) {
	var models []invoiceModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"export_claim": token, "exported": false}).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "number", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("billbook/mongo: list claimed: %w", err)
	}
	invs, err := fromInvoiceModels(models)
	if err != nil {
		return nil, err
	}
	// A plain string sort puts a widened "-10000" before "-9999".
	sort.SliceStable(invs, func(i, j int) bool {
		if !invs[i].CreatedAt.Equal(invs[j].CreatedAt) {
			return invs[i].CreatedAt.Before(invs[j].CreatedAt)
		}
		return sequence.Compare(invs[i].Number, invs[j].Number) < 0
	})
	return invs, nil
}

func (s *Store) MarkExported(ctx context.Context, token string, batchID id.ExportBatchID, at time.Time) (int64, error) {
	res, err := s.mdb.Collection(colInvoices).UpdateMany(ctx,
		bson.M{"export_claim": token, "exported": false},
		bson.M{
			"$set": bson.M{
				"exported":        true,
				"export_batch_id": batchID.String(),
				"exported_at":     at.UTC(),
				"export_claim":    "",
				"updated_at":      now(),
			},
			"$unset": bson.M{"export_claimed_at": ""},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("billbook/mongo: mark exported: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *Store) ReleaseClaim(ctx context.Context, token string) error {
	_, err := s.mdb.Collection(colInvoices).UpdateMany(ctx,
		bson.M{"export_claim": token, "exported": false},
		bson.M{
			"$set":   bson.M{"export_claim": ""},
			"$unset": bson.M{"export_claimed_at": ""},
		},
	)
	if err != nil {
		return fmt.Errorf("billbook/mongo: release claim: %w", err)
	}
	return nil
}

func (s *Store) RecordBatch(ctx context.Context, b *export.Batch) error {
	_, err := s.mdb.NewInsert(toBatchModel(b)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return billbook.ErrAlreadyExists
		}
		return fmt.Errorf("billbook/mongo: record batch: %w", err)
	}
	return nil
}

func (s *Store) GetBatch(ctx context.Context, batchID id.ExportBatchID) (*export.Batch, error) {
	var m batchModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": batchID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, billbook.ErrBatchNotFound
		}
		return nil, fmt.Errorf("billbook/mongo: get batch: %w", err)
	}
	return fromBatchModel(&m)
}

func (s *Store) ListBatches(ctx context.Context, limit int) ([]*export.Batch, error) {
	var models []batchModel
	q := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "delivered_at", Value: -1}})
	if limit > 0 {
		q = q.Limit(int64(limit))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("billbook/mongo: list batches: %w", err)
	}

	result := make([]*export.Batch, len(models))
	for i := range models {
		b, err := fromBatchModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = b
	}
	return result, nil
}

func (s *Store) CountExportStatus(ctx context.Context, f export.Filter) (export.Status, error) {
	col := s.mdb.Collection(colInvoices)
	filter := filterDoc(f)

	total, err := col.CountDocuments(ctx, filter)
	if err != nil {
		return export.Status{}, fmt.Errorf("billbook/mongo: count invoices: %w", err)
	}
	filter["exported"] = true
	exported, err := col.CountDocuments(ctx, filter)
	if err != nil {
		return export.Status{}, fmt.Errorf("billbook/mongo: count exported: %w", err)
	}
	return export.Status{Total: total, Exported: exported, Pending: total - exported}, nil
}

// ==================== Helpers ====================

func filterDoc(f export.Filter) bson.M {
	filter := bson.M{}
	if !f.BranchID.IsNil() {
		filter["branch_id"] = f.BranchID.String()
	}
	created := bson.M{}
	if !f.From.IsZero() {
		created["$gte"] = f.From.UTC()
	}
	if !f.To.IsZero() {
		created["$lt"] = f.To.UTC()
	}
	if len(created) > 0 {
		filter["created_at"] = created
	}
	return filter
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all billbook collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colBranches: {
			{
				Keys:    bson.D{{Key: "code", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colSequences: {
			{Keys: bson.D{{Key: "branch_id", Value: 1}, {Key: "period", Value: 1}}},
		},
		colInvoices: {
			{
				Keys:    bson.D{{Key: "number", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "upi_reference", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
			{Keys: bson.D{{Key: "branch_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "payment_status", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "exported", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "export_claim", Value: 1}}},
		},
		colBatches: {
			{Keys: bson.D{{Key: "delivered_at", Value: -1}}},
		},
	}
}
