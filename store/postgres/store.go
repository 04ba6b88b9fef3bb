package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/billbook"
	"github.com/xraph/billbook/branch"
	"github.com/xraph/billbook/export"
	"github.com/xraph/billbook/id"
	"github.com/xraph/billbook/invoice"
	"github.com/xraph/billbook/payment"
	bbstore "github.com/xraph/billbook/store"
)

// compile-time interface check
var _ bbstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("billbook/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("billbook/postgres: migration failed: %w", err)
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
	_, err := s.pg.NewInsert(toBranchModel(b)).Exec(ctx)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: branch %s", billbook.ErrAlreadyExists, b.Code)
	}
	return err
}

func (s *Store) GetBranch(ctx context.Context, branchID id.BranchID) (*branch.Branch, error) {
	m := new(branchModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", branchID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, billbook.ErrBranchNotFound
		}
		return nil, err
	}
	return fromBranchModel(m)
}

func (s *Store) GetBranchByCode(ctx context.Context, code string) (*branch.Branch, error) {
	m := new(branchModel)
	err := s.pg.NewSelect(m).
		Where("code = $1", code).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, billbook.ErrBranchNotFound
		}
		return nil, err
	}
	return fromBranchModel(m)
}

func (s *Store) ListBranches(ctx context.Context, opts branch.ListOpts) ([]*branch.Branch, error) {
	var models []branchModel
	q := s.pg.NewSelect(&models)

	if opts.ActiveOnly {
		q = q.Where("active = $1", true)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("code ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	res, err := s.pg.NewUpdate((*branchModel)(nil)).
		Set("active = $1", active).
		Set("updated_at = $2", now()).
		Where("id = $3", branchID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return billbook.ErrBranchNotFound
	}
	return nil
}

// ==================== Sequence ====================

// NextInvoiceSequence increments the (branch, period) counter and returns
// the new value in one statement. The row lock taken by ON CONFLICT
// serializes concurrent callers.
func (s *Store) NextInvoiceSequence(ctx context.Context, branchID id.BranchID, period string) (int64, error) {
	var seq int64
	err := s.pg.NewRaw(`
		INSERT INTO billbook_invoice_sequences (branch_id, period, last_value, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (branch_id, period)
		DO UPDATE SET last_value = billbook_invoice_sequences.last_value + 1, updated_at = NOW()
		RETURNING last_value
	`, branchID.String(), period).Scan(ctx, &seq)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m, err := toInvoiceModel(inv)
	if err != nil {
		return err
	}
	_, err = s.pg.NewInsert(m).Exec(ctx)
	return invoiceWriteError(err, inv.Number, inv.Payment.UPIReference)
}

func (s *Store) GetInvoice(ctx context.Context, invoiceID id.InvoiceID) (*invoice.Invoice, error) {
	return s.getInvoiceWhere(ctx, "id = $1", invoiceID.String())
}

func (s *Store) GetInvoiceByNumber(ctx context.Context, number string) (*invoice.Invoice, error) {
	return s.getInvoiceWhere(ctx, "number = $1", number)
}

func (s *Store) GetInvoiceByUPIReference(ctx context.Context, ref string) (*invoice.Invoice, error) {
	if ref == "" {
		return nil, billbook.ErrInvoiceNotFound
	}
	return s.getInvoiceWhere(ctx, "upi_reference = $1", ref)
}

func (s *Store) getInvoiceWhere(ctx context.Context, cond string, arg any) (*invoice.Invoice, error) {
	m := new(invoiceModel)
	err := s.pg.NewSelect(m).Where(cond, arg).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, billbook.ErrInvoiceNotFound
		}
		return nil, err
	}
	return fromInvoiceModel(m)
}

func (s *Store) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []invoiceModel
	q := s.pg.NewSelect(&models)

	var p placeholders
	for _, c := range listConds(opts, &p) {
		q = q.Where(c.expr, c.arg)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, LENGTH(number) ASC, number ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromInvoiceModels(models)
}

func (s *Store) MarkInvoicePrinted(ctx context.Context, invoiceID id.InvoiceID) error {
	res, err := s.pg.NewUpdate((*invoiceModel)(nil)).
		Set("printed = $1", true).
		Set("updated_at = $2", now()).
		Where("id = $3", invoiceID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return billbook.ErrInvoiceNotFound
	}
	return nil
}

func (s *Store) TransitionPayment(ctx context.Context, invoiceID id.InvoiceID, from, to payment.Status, ev payment.Evidence) error {
	res, err := s.pg.NewUpdate((*invoiceModel)(nil)).
		Set("payment_status = $1", string(to)).
		Set("evidence_ref = $2", ev.Reference).
		Set("evidence_source = $3", ev.Source).
		Set("settled_at = $4", ev.At.UTC()).
		Set("updated_at = $5", now()).
		Where("id = $6", invoiceID.String()).
		Where("payment_status = $7", string(from)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.GetInvoice(ctx, invoiceID); err != nil {
			return err
		}
		return billbook.ErrInvalidTransition
	}
	return nil
}

func (s *Store) AttachUPIReference(ctx context.Context, invoiceID id.InvoiceID, ref string) error {
	res, err := s.pg.NewUpdate((*invoiceModel)(nil)).
		Set("upi_reference = $1", ref).
		Set("updated_at = $2", now()).
		Where("id = $3", invoiceID.String()).
		Where("upi_reference = ''").
		Where("payment_status = $4", string(payment.StatusPending)).
		Exec(ctx)
	if err != nil {
		return invoiceWriteError(err, "", ref)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
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

func (s *Store) ClaimForExport(ctx context.Context, f export.Filter, token string, claimedAt, staleBefore time.Time) (int64, error) {
	q := s.pg.NewUpdate((*invoiceModel)(nil)).
		Set("export_claim = $1", token).
		Set("export_claimed_at = $2", claimedAt.UTC()).
		Where("exported = FALSE").
		Where("(export_claim = '' OR export_claimed_at < $3)", staleBefore.UTC())

	p := placeholders{n: 3}
	for _, c := range filterConds(f, &p) {
		q = q.Where(c.expr, c.arg)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) ListClaimed(ctx context.Context, token string) ([]*invoice.Invoice, error) {
	var models []invoiceModel
	err := s.pg.NewSelect(&models).
		Where("export_claim = $1", token).
		Where("exported = FALSE").
		OrderExpr("created_at ASC, LENGTH(number) ASC, number ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromInvoiceModels(models)
}

func (s *Store) MarkExported(ctx context.Context, token string, batchID id.ExportBatchID, at time.Time) (int64, error) {
	res, err := s.pg.NewUpdate((*invoiceModel)(nil)).
		Set("exported = TRUE").
		Set("export_batch_id = $1", batchID.String()).
		Set("exported_at = $2", at.UTC()).
		Set("export_claim = ''").
		Set("export_claimed_at = NULL").
		Set("updated_at = $3", now()).
		Where("export_claim = $4", token).
		Where("exported = FALSE").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) ReleaseClaim(ctx context.Context, token string) error {
	_, err := s.pg.NewUpdate((*invoiceModel)(nil)).
		Set("export_claim = ''").
		Set("export_claimed_at = NULL").
		Where("export_claim = $1", token).
		Where("exported = FALSE").
		Exec(ctx)
	return err
}

func (s *Store) RecordBatch(ctx context.Context, b *export.Batch) error {
	m, err := toBatchModel(b)
	if err != nil {
		return err
	}
	_, err = s.pg.NewInsert(m).Exec(ctx)
	if isUniqueViolation(err) {
		return billbook.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetBatch(ctx context.Context, batchID id.ExportBatchID) (*export.Batch, error) {
	m := new(batchModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", batchID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, billbook.ErrBatchNotFound
		}
		return nil, err
	}
	return fromBatchModel(m)
}

func (s *Store) ListBatches(ctx context.Context, limit int) ([]*export.Batch, error) {
	var models []batchModel
	q := s.pg.NewSelect(&models).OrderExpr("delivered_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	var p placeholders
	conds := filterConds(f, &p)

	query := `SELECT COUNT(*), COUNT(*) FILTER (WHERE exported) FROM billbook_invoices`
	args := make([]any, 0, len(conds))
	if len(conds) > 0 {
		exprs := make([]string, len(conds))
		for i, c := range conds {
			exprs[i] = c.expr
			args = append(args, c.arg)
		}
		query += " WHERE " + strings.Join(exprs, " AND ")
	}

	var st export.Status
	if err := s.pg.NewRaw(query, args...).Scan(ctx, &st.Total, &st.Exported); err != nil {
		return export.Status{}, err
	}
	st.Pending = st.Total - st.Exported
	return st, nil
}

// ==================== Helpers ====================

// cond is one WHERE fragment with its single argument.
type cond struct {
	expr string
	arg  any
}

// placeholders numbers $n arguments across Set and Where calls.
type placeholders struct{ n int }

func (p *placeholders) next() string {
	p.n++
	return "$" + strconv.Itoa(p.n)
}

func filterConds(f export.Filter, p *placeholders) []cond {
	var conds []cond
	if !f.BranchID.IsNil() {
		conds = append(conds, cond{"branch_id = " + p.next(), f.BranchID.String()})
	}
	if !f.From.IsZero() {
		conds = append(conds, cond{"created_at >= " + p.next(), f.From.UTC()})
	}
	if !f.To.IsZero() {
		conds = append(conds, cond{"created_at < " + p.next(), f.To.UTC()})
	}
	return conds
}

func listConds(o invoice.ListOpts, p *placeholders) []cond {
	conds := filterConds(export.Filter{From: o.Start, To: o.End, BranchID: o.BranchID}, p)
	if !o.CreatedBy.IsNil() {
		conds = append(conds, cond{"created_by = " + p.next(), o.CreatedBy.String()})
	}
	if o.Mode != "" {
		conds = append(conds, cond{"payment_mode = " + p.next(), string(o.Mode)})
	}
	if o.Status != "" {
		conds = append(conds, cond{"payment_status = " + p.next(), string(o.Status)})
	}
	if o.Exported != nil {
		conds = append(conds, cond{"exported = " + p.next(), *o.Exported})
	}
	return conds
}

// invoiceWriteError maps unique index violations to domain errors.
func invoiceWriteError(err error, number, ref string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	if pgErr.ConstraintName == "idx_billbook_invoices_upi_ref" {
		return fmt.Errorf("%w: %s", billbook.ErrDuplicateReference, ref)
	}
	return fmt.Errorf("%w: invoice %s", billbook.ErrAlreadyExists, number)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
