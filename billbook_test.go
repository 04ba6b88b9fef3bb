package billbook_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/xraph/billbook"
	"github.com/xraph/billbook/access"
	"github.com/xraph/billbook/branch"
	"github.com/xraph/billbook/export"
	"github.com/xraph/billbook/id"
	"github.com/xraph/billbook/invoice"
	"github.com/xraph/billbook/payment"
	"github.com/xraph/billbook/sequence"
	"github.com/xraph/billbook/store/memory"
	"github.com/xraph/billbook/types"
)

var march = time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)

// memorySink keeps delivered artifacts and can be switched to fail.
type memorySink struct {
	mu        sync.Mutex
	artifacts []export.Artifact
	fail      error
}

func (s *memorySink) Deliver(_ context.Context, a export.Artifact) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	s.artifacts = append(s.artifacts, a)
	return "mem://" + a.Name, nil
}

func (s *memorySink) setFail(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

type fixture struct {
	engine  *billbook.Engine
	branch  *branch.Branch
	cashier access.Actor
	sink    *memorySink
}

func newFixture(t *testing.T, opts ...billbook.Option) *fixture {
	t.Helper()

	sink := &memorySink{}
	base := []billbook.Option{
		billbook.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		billbook.WithClock(func() time.Time { return march }),
		billbook.WithSink(sink),
	}
	e := billbook.New(memory.New(), append(base, opts...)...)

	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = e.Stop() })

	b := &branch.Branch{Name: "Connaught Place", Code: "del", Active: true}
	if err := e.CreateBranch(ctx, access.System, b); err != nil {
		t.Fatal(err)
	}

	return &fixture{
		engine: e,
		branch: b,
		cashier: access.Actor{
			UserID:   id.NewUserID(),
			Name:     "Asha",
			Role:     access.RoleSales,
			BranchID: b.ID,
		},
		sink: sink,
	}
}

// input is one chai line worth 1000.00.
func input(intent payment.Intent) billbook.CreateInvoiceInput {
	return billbook.CreateInvoiceInput{
		Customer: invoice.Customer{Name: "Ravi"},
		Items: []invoice.LineItem{
			{Name: "Masala chai (kg)", Quantity: 2, UnitPrice: types.INR(50000)},
		},
		Payment: intent,
	}
}

func (f *fixture) create(t *testing.T, mode payment.Mode) *invoice.Invoice {
	t.Helper()
	inv, err := f.engine.CreateInvoice(context.Background(), f.cashier, input(payment.Intent{Mode: mode}))
	if err != nil {
		t.Fatalf("CreateInvoice(%s): %v", mode, err)
	}
	return inv
}

func TestCreateInvoiceNumbering(t *testing.T) {
	f := newFixture(t)

	for i := 1; i <= 3; i++ {
		inv := f.create(t, payment.ModeCash)
		want := fmt.Sprintf("DEL-INV-2403-%04d", i)
		if inv.Number != want {
			t.Errorf("invoice %d number = %q, want %q", i, inv.Number, want)
		}
		if !inv.Total.Equal(types.INR(100000)) {
			t.Errorf("total = %s, want 1000.00", inv.Total)
		}
		if inv.BranchCode != "DEL" {
			t.Errorf("branch code = %q", inv.BranchCode)
		}
	}
}

func TestCreateInvoiceMonthRollover(t *testing.T) {
	var (
		mu  sync.Mutex
		now = march
	)
	f := newFixture(t, billbook.WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}))

	f.create(t, payment.ModeCash)
	f.create(t, payment.ModeCash)

	mu.Lock()
	now = time.Date(2024, time.April, 1, 0, 0, 1, 0, time.UTC)
	mu.Unlock()

	inv := f.create(t, payment.ModeCash)
	if inv.Number != "DEL-INV-2404-0001" {
		t.Errorf("number after rollover = %q, want DEL-INV-2404-0001", inv.Number)
	}
}

func TestCreateInvoiceConcurrentNumbering(t *testing.T) {
	f := newFixture(t)
	const n = 50

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = make(map[string]bool, n)
		errs    []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv, err := f.engine.CreateInvoice(context.Background(), f.cashier, input(payment.Intent{Mode: payment.ModeCash}))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			numbers[inv.Number] = true
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(numbers) != n {
		t.Fatalf("got %d distinct numbers, want %d", len(numbers), n)
	}
	for i := int64(1); i <= n; i++ {
		num := sequence.Format("DEL", "2403", i)
		if !numbers[num] {
			t.Errorf("missing %s", num)
		}
	}
	for num := range numbers {
		if _, err := sequence.Parse(num); err != nil {
			t.Errorf("Parse(%q): %v", num, err)
		}
	}
}

func TestCreateInvoiceSplitPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.engine.CreateInvoice(ctx, f.cashier, input(payment.Intent{
		Mode:       payment.ModeSplit,
		CashAmount: types.INR(40000),
		UPIAmount:  types.INR(60000),
	}))
	if err != nil {
		t.Fatal(err)
	}
	if inv.Payment.Status != payment.StatusPending {
		t.Errorf("split status = %s, want pending", inv.Payment.Status)
	}
	if !inv.Payment.Covered().Equal(inv.Total) {
		t.Errorf("covered %s != total %s", inv.Payment.Covered(), inv.Total)
	}

	_, err = f.engine.CreateInvoice(ctx, f.cashier, input(payment.Intent{
		Mode:       payment.ModeSplit,
		CashAmount: types.INR(40000),
		UPIAmount:  types.INR(50000),
	}))
	if !errors.Is(err, billbook.ErrAmountMismatch) {
		t.Fatalf("err = %v, want ErrAmountMismatch", err)
	}
	var mm *billbook.AmountMismatchError
	if !errors.As(err, &mm) || !mm.Got.Equal(types.INR(90000)) {
		t.Errorf("mismatch detail = %+v", mm)
	}

	// The rejected invoice must not have consumed a number.
	next := f.create(t, payment.ModeCash)
	if next.Number != "DEL-INV-2403-0002" {
		t.Errorf("next number = %q, want DEL-INV-2403-0002", next.Number)
	}
}

func TestCreateInvoiceRejectsWrappingSplit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Both instruments near the int64 limit wrap around to the total when
	// added without a range check.
	_, err := f.engine.CreateInvoice(ctx, f.cashier, input(payment.Intent{
		Mode:         payment.ModeSplit,
		CashAmount:   types.INR(math.MaxInt64),
		UPIAmount:    types.INR(math.MaxInt64),
		CreditAmount: types.INR(100002),
	}))
	if !billbook.IsValidation(err) {
		t.Fatalf("err = %v, want a validation error", err)
	}

	next := f.create(t, payment.ModeCash)
	if next.Number != "DEL-INV-2403-0001" {
		t.Errorf("rejected split consumed a number: next is %q", next.Number)
	}
}

func TestCreateInvoiceRejectsWrappingLineAmount(t *testing.T) {
	f := newFixture(t)

	in := input(payment.Intent{Mode: payment.ModeCash})
	in.Items = []invoice.LineItem{{Name: "Washer", Quantity: 1 << 62, UnitPrice: types.INR(4)}}

	_, err := f.engine.CreateInvoice(context.Background(), f.cashier, in)
	var ve billbook.ValidationError
	if !errors.As(err, &ve) || ve.Field != "items[0].quantity" {
		t.Fatalf("err = %v, want items[0].quantity ValidationError", err)
	}
}

func TestCreateInvoiceReportsAllFields(t *testing.T) {
	f := newFixture(t)

	in := billbook.CreateInvoiceInput{
		Items: []invoice.LineItem{
			{Name: "Rice", Quantity: 0, UnitPrice: types.INR(100)},
			{Name: "", Quantity: 1, UnitPrice: types.INR(100)},
		},
		Payment: payment.Intent{Mode: payment.ModeCash},
	}
	_, err := f.engine.CreateInvoice(context.Background(), f.cashier, in)

	var multi billbook.MultiError
	if !errors.As(err, &multi) {
		t.Fatalf("err = %T %v, want MultiError", err, err)
	}
	want := []string{"customer.name", "items[0].quantity", "items[1].name"}
	if len(multi.Errors) != len(want) {
		t.Fatalf("got %d errors, want %d: %v", len(multi.Errors), len(want), err)
	}
	for i, e := range multi.Errors {
		var ve billbook.ValidationError
		if !errors.As(e, &ve) || ve.Field != want[i] {
			t.Errorf("error %d = %v, want field %s", i, e, want[i])
		}
	}
	if !billbook.IsValidation(err) {
		t.Error("IsValidation should see through MultiError")
	}
}

func TestCreateInvoiceRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    billbook.CreateInvoiceInput
		field string
	}{
		{
			name:  "no customer",
			in:    billbook.CreateInvoiceInput{Items: input(payment.Intent{}).Items, Payment: payment.Intent{Mode: payment.ModeCash}},
			field: "customer.name",
		},
		{
			name:  "no items",
			in:    billbook.CreateInvoiceInput{Customer: invoice.Customer{Name: "Ravi"}, Payment: payment.Intent{Mode: payment.ModeCash}},
			field: "items",
		},
		{
			name:  "bad mode",
			in:    input(payment.Intent{Mode: "cheque"}),
			field: "payment",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreateInvoice(ctx, f.cashier, tt.in)
			var ve billbook.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field = %q, want %q", ve.Field, tt.field)
			}
		})
	}

	first := f.create(t, payment.ModeCash)
	if first.Number != "DEL-INV-2403-0001" {
		t.Errorf("rejected input consumed numbers: got %q", first.Number)
	}
}

func TestCreateInvoiceInactiveBranch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.engine.SetBranchActive(ctx, access.System, f.branch.ID, false); err != nil {
		t.Fatal(err)
	}

	_, err := f.engine.CreateInvoice(ctx, f.cashier, input(payment.Intent{Mode: payment.ModeCash}))
	if !errors.Is(err, billbook.ErrAllocation) {
		t.Fatalf("err = %v, want ErrAllocation", err)
	}
	if !errors.Is(err, billbook.ErrBranchInactive) {
		t.Errorf("err = %v, want ErrBranchInactive cause", err)
	}
}

func TestAccessControl(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	storekeeper := access.Actor{UserID: id.NewUserID(), Role: access.RoleInventory, BranchID: f.branch.ID}
	if _, err := f.engine.CreateInvoice(ctx, storekeeper, input(payment.Intent{Mode: payment.ModeCash})); !errors.Is(err, billbook.ErrForbidden) {
		t.Errorf("inventory CreateInvoice err = %v, want ErrForbidden", err)
	}

	if _, err := f.engine.ExportBatch(ctx, f.cashier, export.Filter{}); !errors.Is(err, billbook.ErrForbidden) {
		t.Errorf("sales ExportBatch err = %v, want ErrForbidden", err)
	}

	other := &branch.Branch{Name: "Bandra", Code: "BOM", Active: true}
	if err := f.engine.CreateBranch(ctx, access.System, other); err != nil {
		t.Fatal(err)
	}
	in := input(payment.Intent{Mode: payment.ModeCash})
	in.BranchID = other.ID
	if _, err := f.engine.CreateInvoice(ctx, f.cashier, in); !errors.Is(err, billbook.ErrForbidden) {
		t.Errorf("cross-branch CreateInvoice err = %v, want ErrForbidden", err)
	}

	if err := f.engine.CreateBranch(ctx, f.cashier, &branch.Branch{Name: "Pune", Code: "PNQ"}); !errors.Is(err, billbook.ErrForbidden) {
		t.Errorf("sales CreateBranch err = %v, want ErrForbidden", err)
	}
}

func TestPaymentAccessControl(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.engine.CreateInvoice(ctx, f.cashier, input(payment.Intent{Mode: payment.ModeUPI, UPIReference: "TXN_ACL"}))
	if err != nil {
		t.Fatal(err)
	}

	storekeeper := access.Actor{UserID: id.NewUserID(), Role: access.RoleInventory, BranchID: f.branch.ID}
	if err := f.engine.UpdatePaymentStatus(ctx, storekeeper, inv.ID, payment.StatusCompleted, payment.Evidence{}); !errors.Is(err, billbook.ErrForbidden) {
		t.Errorf("inventory UpdatePaymentStatus err = %v, want ErrForbidden", err)
	}
	if _, err := f.engine.AttachUPIReference(ctx, storekeeper, inv.ID, ""); !errors.Is(err, billbook.ErrForbidden) {
		t.Errorf("inventory AttachUPIReference err = %v, want ErrForbidden", err)
	}
	if _, err := f.engine.VerifyUPIPayment(ctx, storekeeper, "TXN_ACL"); !errors.Is(err, billbook.ErrForbidden) {
		t.Errorf("inventory VerifyUPIPayment err = %v, want ErrForbidden", err)
	}
	if _, err := f.engine.ExportStatus(ctx, f.cashier, export.Filter{}); !errors.Is(err, billbook.ErrForbidden) {
		t.Errorf("sales ExportStatus err = %v, want ErrForbidden", err)
	}

	other := &branch.Branch{Name: "Bandra", Code: "BOM", Active: true}
	if err := f.engine.CreateBranch(ctx, access.System, other); err != nil {
		t.Fatal(err)
	}
	bombay := access.Actor{UserID: id.NewUserID(), Role: access.RoleSales, BranchID: other.ID}
	if err := f.engine.UpdatePaymentStatus(ctx, bombay, inv.ID, payment.StatusCompleted, payment.Evidence{}); !errors.Is(err, billbook.ErrForbidden) {
		t.Errorf("cross-branch UpdatePaymentStatus err = %v, want ErrForbidden", err)
	}

	got, _ := f.engine.GetInvoice(ctx, inv.ID)
	if got.Payment.Status != payment.StatusPending {
		t.Errorf("refused calls changed the payment: %s", got.Payment.Status)
	}
}

func TestCreateBranchDuplicateCode(t *testing.T) {
	f := newFixture(t)

	err := f.engine.CreateBranch(context.Background(), access.System, &branch.Branch{Name: "Karol Bagh", Code: " Del "})
	if !errors.Is(err, billbook.ErrAlreadyExists) {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}

	err = f.engine.CreateBranch(context.Background(), access.System, &branch.Branch{Name: "Bad", Code: "D1"})
	var ve billbook.ValidationError
	if !errors.As(err, &ve) || ve.Field != "code" {
		t.Errorf("err = %v, want code ValidationError", err)
	}
}

func TestUpdatePaymentStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv := f.create(t, payment.ModeUPI)
	if inv.Payment.Status != payment.StatusPending {
		t.Fatalf("upi status = %s, want pending", inv.Payment.Status)
	}

	ev := payment.Evidence{Reference: "UTR123"}
	if err := f.engine.UpdatePaymentStatus(ctx, f.cashier, inv.ID, payment.StatusCompleted, ev); err != nil {
		t.Fatal(err)
	}

	got, err := f.engine.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Payment.Status != payment.StatusCompleted {
		t.Errorf("status = %s, want completed", got.Payment.Status)
	}
	if got.Payment.EvidenceRef != "UTR123" || got.Payment.EvidenceSource != payment.SourceManual {
		t.Errorf("evidence = %q/%q", got.Payment.EvidenceRef, got.Payment.EvidenceSource)
	}
	if got.Payment.SettledAt == nil {
		t.Error("SettledAt not set")
	}

	tests := []struct {
		name string
		id   id.InvoiceID
		to   payment.Status
	}{
		{"completed to failed", inv.ID, payment.StatusFailed},
		{"completed to pending", inv.ID, payment.StatusPending},
		{"cash to failed", f.create(t, payment.ModeCash).ID, payment.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.engine.UpdatePaymentStatus(ctx, f.cashier, tt.id, tt.to, payment.Evidence{})
			if !errors.Is(err, billbook.ErrInvalidTransition) {
				t.Errorf("err = %v, want ErrInvalidTransition", err)
			}
		})
	}

	if err := f.engine.UpdatePaymentStatus(ctx, f.cashier, id.NewInvoiceID(), payment.StatusCompleted, ev); !errors.Is(err, billbook.ErrInvoiceNotFound) {
		t.Errorf("unknown invoice err = %v, want ErrInvoiceNotFound", err)
	}
}

func TestAttachUPIReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv := f.create(t, payment.ModeUPI)
	ref, err := f.engine.AttachUPIReference(ctx, f.cashier, inv.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(ref) != 36 {
		t.Errorf("generated reference %q has length %d", ref, len(ref))
	}

	again, err := f.engine.AttachUPIReference(ctx, f.cashier, inv.ID, ref)
	if err != nil || again != ref {
		t.Errorf("repeat attach = %q, %v", again, err)
	}

	if _, err := f.engine.AttachUPIReference(ctx, f.cashier, inv.ID, "OTHER"); !errors.Is(err, billbook.ErrReferenceAlreadySet) {
		t.Errorf("second reference err = %v, want ErrReferenceAlreadySet", err)
	}

	cash := f.create(t, payment.ModeCash)
	var ve billbook.ValidationError
	if _, err := f.engine.AttachUPIReference(ctx, f.cashier, cash.ID, "X"); !errors.As(err, &ve) {
		t.Errorf("cash reference err = %v, want ValidationError", err)
	}

	dup := input(payment.Intent{Mode: payment.ModeUPI, UPIReference: ref})
	if _, err := f.engine.CreateInvoice(ctx, f.cashier, dup); !errors.Is(err, billbook.ErrDuplicateReference) {
		t.Errorf("duplicate reference err = %v, want ErrDuplicateReference", err)
	}
}

func TestVerifyUPIPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("completed", func(t *testing.T) {
		v := payment.VerifierFunc(func(_ context.Context, ref string) (payment.Outcome, error) {
			return payment.Outcome{Reference: ref, State: "SUCCESS", GatewayRef: "GW1"}, nil
		})
		f := newFixture(t, billbook.WithVerifier(v))
		inv, err := f.engine.CreateInvoice(ctx, f.cashier, input(payment.Intent{Mode: payment.ModeUPI, UPIReference: "TXN_A"}))
		if err != nil {
			t.Fatal(err)
		}

		rec, err := f.engine.VerifyUPIPayment(ctx, f.cashier, "TXN_A")
		if err != nil {
			t.Fatal(err)
		}
		if !rec.Applied || rec.Current != payment.StatusCompleted {
			t.Errorf("reconciliation = %+v", rec)
		}
		got, _ := f.engine.GetInvoice(ctx, inv.ID)
		if got.Payment.Status != payment.StatusCompleted || got.Payment.EvidenceSource != payment.SourceVerifier {
			t.Errorf("payment = %+v", got.Payment)
		}

		rec, err = f.engine.VerifyUPIPayment(ctx, f.cashier, "TXN_A")
		if err != nil || !rec.AlreadySettled {
			t.Errorf("second verify = %+v, %v", rec, err)
		}
	})

	t.Run("timeout leaves pending", func(t *testing.T) {
		v := payment.VerifierFunc(func(ctx context.Context, _ string) (payment.Outcome, error) {
			<-ctx.Done()
			return payment.Outcome{}, ctx.Err()
		})
		f := newFixture(t, billbook.WithVerifier(v), billbook.WithVerifyTimeout(20*time.Millisecond))
		inv, err := f.engine.CreateInvoice(ctx, f.cashier, input(payment.Intent{Mode: payment.ModeUPI, UPIReference: "TXN_B"}))
		if err != nil {
			t.Fatal(err)
		}

		_, err = f.engine.VerifyUPIPayment(ctx, f.cashier, "TXN_B")
		if !errors.Is(err, billbook.ErrExternalUnavailable) {
			t.Fatalf("err = %v, want ErrExternalUnavailable", err)
		}
		if !billbook.IsRetryable(err) {
			t.Error("timeout should be retryable")
		}
		got, _ := f.engine.GetInvoice(ctx, inv.ID)
		if got.Payment.Status != payment.StatusPending {
			t.Errorf("status = %s, want pending", got.Payment.Status)
		}
	})

	t.Run("pending answer", func(t *testing.T) {
		v := payment.VerifierFunc(func(_ context.Context, ref string) (payment.Outcome, error) {
			return payment.Outcome{Reference: ref, State: "PENDING"}, nil
		})
		f := newFixture(t, billbook.WithVerifier(v))
		if _, err := f.engine.CreateInvoice(ctx, f.cashier, input(payment.Intent{Mode: payment.ModeUPI, UPIReference: "TXN_C"})); err != nil {
			t.Fatal(err)
		}
		rec, err := f.engine.VerifyUPIPayment(ctx, f.cashier, "TXN_C")
		if err != nil || rec.Applied || rec.Current != payment.StatusPending {
			t.Errorf("pending verify = %+v, %v", rec, err)
		}
	})

	t.Run("no verifier", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.engine.VerifyUPIPayment(ctx, f.cashier, "TXN_D"); !errors.Is(err, billbook.ErrNoVerifier) {
			t.Errorf("err = %v, want ErrNoVerifier", err)
		}
	})
}

type conflictRecorder struct {
	mu        sync.Mutex
	conflicts []payment.Status
}

func (p *conflictRecorder) Name() string { return "conflict-recorder" }

func (p *conflictRecorder) OnPaymentConflict(_ context.Context, _ *invoice.Invoice, reported payment.Status, _ string) error {
	p.mu.Lock()
	p.conflicts = append(p.conflicts, reported)
	p.mu.Unlock()
	return nil
}

func TestHandleUPICallbackConflict(t *testing.T) {
	rec := &conflictRecorder{}
	f := newFixture(t, billbook.WithPlugin(rec))
	ctx := context.Background()

	inv, err := f.engine.CreateInvoice(ctx, f.cashier, input(payment.Intent{Mode: payment.ModeUPI, UPIReference: "TXN_CB"}))
	if err != nil {
		t.Fatal(err)
	}

	r, err := f.engine.HandleUPICallback(ctx, payment.Outcome{Reference: "TXN_CB", State: "COMPLETED"})
	if err != nil || !r.Applied {
		t.Fatalf("first callback = %+v, %v", r, err)
	}

	r, err = f.engine.HandleUPICallback(ctx, payment.Outcome{Reference: "TXN_CB", State: "FAILED"})
	if !errors.Is(err, billbook.ErrInvalidTransition) {
		t.Fatalf("conflicting callback err = %v, want ErrInvalidTransition", err)
	}
	if r == nil || r.Reported != payment.StatusFailed || r.Current != payment.StatusCompleted {
		t.Errorf("conflict reconciliation = %+v", r)
	}

	got, _ := f.engine.GetInvoice(ctx, inv.ID)
	if got.Payment.Status != payment.StatusCompleted {
		t.Errorf("status = %s, want completed", got.Payment.Status)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.conflicts) != 1 || rec.conflicts[0] != payment.StatusFailed {
		t.Errorf("conflicts = %v", rec.conflicts)
	}

	if _, err := f.engine.HandleUPICallback(ctx, payment.Outcome{}); err == nil {
		t.Error("callback without reference accepted")
	}
}

func TestReconcilePending(t *testing.T) {
	v := payment.VerifierFunc(func(_ context.Context, ref string) (payment.Outcome, error) {
		if ref == "TXN_DOWN" {
			return payment.Outcome{}, errors.New("gateway 503")
		}
		return payment.Outcome{Reference: ref, State: "SUCCESS"}, nil
	})
	f := newFixture(t, billbook.WithVerifier(v))
	ctx := context.Background()

	for _, ref := range []string{"TXN_1", "TXN_2", "TXN_DOWN"} {
		if _, err := f.engine.CreateInvoice(ctx, f.cashier, input(payment.Intent{Mode: payment.ModeUPI, UPIReference: ref})); err != nil {
			t.Fatal(err)
		}
	}
	f.create(t, payment.ModeCredit)

	n, err := f.engine.ReconcilePending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("settled = %d, want 2", n)
	}
}

func TestExportBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.create(t, payment.ModeCash)
	}

	res, err := f.engine.ExportBatch(ctx, access.System, export.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Marked != 5 || len(res.Numbers) != 5 || res.Batch.InvoiceCount != 5 {
		t.Errorf("result = %+v", res)
	}
	if !res.Batch.Total.Equal(types.INR(500000)) {
		t.Errorf("batch total = %s, want 5000.00", res.Batch.Total)
	}
	if res.Numbers[0] != "DEL-INV-2403-0001" || res.Numbers[4] != "DEL-INV-2403-0005" {
		t.Errorf("numbers = %v", res.Numbers)
	}
	if len(f.sink.artifacts) != 1 || f.sink.artifacts[0].Count != 5 {
		t.Fatalf("artifacts = %d", len(f.sink.artifacts))
	}

	if _, err := f.engine.ExportBatch(ctx, access.System, export.Filter{}); !errors.Is(err, billbook.ErrNoPendingInvoices) {
		t.Errorf("second export err = %v, want ErrNoPendingInvoices", err)
	}

	st, err := f.engine.ExportStatus(ctx, access.System, export.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 5 || st.Exported != 5 || st.Pending != 0 {
		t.Errorf("status = %+v", st)
	}

	inv, _ := f.engine.GetInvoiceByNumber(ctx, "DEL-INV-2403-0003")
	if !inv.Exported || inv.ExportBatchID.String() != res.Batch.ID.String() {
		t.Errorf("invoice export fields = %v %s", inv.Exported, inv.ExportBatchID)
	}

	batches, err := f.engine.ListExportBatches(ctx, 10)
	if err != nil || len(batches) != 1 {
		t.Errorf("batches = %d, %v", len(batches), err)
	}
}

func TestExportBatchInvalidRange(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.ExportBatch(context.Background(), access.System, export.Filter{From: march, To: march})
	if !billbook.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestExportBatchConcurrent(t *testing.T) {
	f := newFixture(t)
	const invoices = 20
	for i := 0; i < invoices; i++ {
		f.create(t, payment.ModeCash)
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		seen  = make(map[string]int)
		total int64
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.engine.ExportBatch(context.Background(), access.System, export.Filter{})
			if errors.Is(err, billbook.ErrNoPendingInvoices) {
				return
			}
			if err != nil {
				t.Errorf("ExportBatch: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			total += res.Marked
			for _, n := range res.Numbers {
				seen[n]++
			}
		}()
	}
	wg.Wait()

	if total != invoices {
		t.Errorf("marked %d, want %d", total, invoices)
	}
	for n, c := range seen {
		if c != 1 {
			t.Errorf("%s exported %d times", n, c)
		}
	}
}

func TestExportBatchDeliveryFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.create(t, payment.ModeCash)
	}

	f.sink.setFail(errors.New("disk full"))
	_, err := f.engine.ExportBatch(ctx, access.System, export.Filter{})
	if !errors.Is(err, billbook.ErrExternalUnavailable) {
		t.Fatalf("err = %v, want ErrExternalUnavailable", err)
	}

	st, _ := f.engine.ExportStatus(ctx, access.System, export.Filter{})
	if st.Exported != 0 || st.Pending != 3 {
		t.Errorf("status after failure = %+v", st)
	}

	// The released claim lets the next attempt take all three.
	f.sink.setFail(nil)
	res, err := f.engine.ExportBatch(ctx, access.System, export.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Marked != 3 {
		t.Errorf("marked = %d, want 3", res.Marked)
	}
}

func TestExportBatchBranchFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := &branch.Branch{Name: "Bandra", Code: "BOM", Active: true}
	if err := f.engine.CreateBranch(ctx, access.System, other); err != nil {
		t.Fatal(err)
	}
	f.create(t, payment.ModeCash)
	in := input(payment.Intent{Mode: payment.ModeCash})
	in.BranchID = other.ID
	if _, err := f.engine.CreateInvoice(ctx, access.System, in); err != nil {
		t.Fatal(err)
	}

	res, err := f.engine.ExportBatch(ctx, access.System, export.Filter{BranchID: other.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Numbers) != 1 || res.Numbers[0] != "BOM-INV-2403-0001" {
		t.Errorf("numbers = %v", res.Numbers)
	}
}

func TestSalesReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.create(t, payment.ModeCash)
	f.create(t, payment.ModeUPI)
	f.create(t, payment.ModeCredit)

	s, err := f.engine.SalesReport(ctx, f.cashier, invoice.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if s.InvoiceCount != 3 || !s.TotalSales.Equal(types.INR(300000)) {
		t.Errorf("summary = %+v", s)
	}
	if !s.ByMode[payment.ModeSplit].IsZero() {
		t.Errorf("split bucket = %s, want zero", s.ByMode[payment.ModeSplit])
	}
	if !s.Daily["2024-03-15"].Equal(types.INR(300000)) {
		t.Errorf("daily = %v", s.Daily)
	}

	analysis, err := f.engine.PaymentAnalysis(ctx, f.cashier, invoice.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if analysis[0].Mode != payment.ModeCash || analysis[0].Completed != 1 {
		t.Errorf("cash analysis = %+v", analysis[0])
	}

	storekeeper := access.Actor{Role: access.RoleInventory, BranchID: f.branch.ID}
	if _, err := f.engine.SalesReport(ctx, storekeeper, invoice.ListOpts{}); !errors.Is(err, billbook.ErrForbidden) {
		t.Errorf("inventory report err = %v, want ErrForbidden", err)
	}
}

type flatTax struct{}

func (flatTax) Name() string { return "flat-tax" }

func (flatTax) CalculateTax(_ context.Context, _ *invoice.Invoice, subtotal types.Money) (types.Money, error) {
	return types.INR(subtotal.Amount * 18 / 100), nil
}

func TestCreateInvoiceTax(t *testing.T) {
	f := newFixture(t, billbook.WithPlugin(flatTax{}))
	ctx := context.Background()

	inv := f.create(t, payment.ModeCash)
	if !inv.Tax.Equal(types.INR(18000)) || !inv.Total.Equal(types.INR(118000)) {
		t.Errorf("tax %s total %s", inv.Tax, inv.Total)
	}

	override := types.INR(0)
	in := input(payment.Intent{Mode: payment.ModeCash})
	in.Tax = &override
	inv, err := f.engine.CreateInvoice(ctx, f.cashier, in)
	if err != nil {
		t.Fatal(err)
	}
	if !inv.Tax.IsZero() || !inv.Total.Equal(types.INR(100000)) {
		t.Errorf("override tax %s total %s", inv.Tax, inv.Total)
	}

	negative := types.INR(-1)
	in.Tax = &negative
	var ve billbook.ValidationError
	if _, err := f.engine.CreateInvoice(ctx, f.cashier, in); !errors.As(err, &ve) || ve.Field != "tax" {
		t.Errorf("negative tax err = %v", err)
	}
}

func TestExportClaimOutlivesDelivery(t *testing.T) {
	tests := []struct {
		name string
		opts []billbook.Option
		want time.Duration
	}{
		{"defaults", nil, billbook.DefaultExportClaimTTL},
		{"inverted", []billbook.Option{billbook.WithExportClaimTTL(10 * time.Second), billbook.WithDeliveryTimeout(time.Minute)}, 2 * time.Minute},
		{"equal", []billbook.Option{billbook.WithExportClaimTTL(time.Minute), billbook.WithDeliveryTimeout(time.Minute)}, 2 * time.Minute},
		{"wide enough", []billbook.Option{billbook.WithExportClaimTTL(time.Hour), billbook.WithDeliveryTimeout(time.Minute)}, time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]billbook.Option{billbook.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, tt.opts...)
			e := billbook.New(memory.New(), opts...)
			if got := e.ExportClaimTTL(); got != tt.want {
				t.Errorf("ExportClaimTTL = %v, want %v", got, tt.want)
			}
		})
	}
}
