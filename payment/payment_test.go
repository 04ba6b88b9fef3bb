package payment_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/billbook/payment"
	"github.com/xraph/billbook/types"
)

var at = time.Date(2024, 3, 5, 11, 0, 0, 0, time.UTC)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to payment.Status
		want     bool
	}{
		{payment.StatusPending, payment.StatusCompleted, true},
		{payment.StatusPending, payment.StatusFailed, true},
		{payment.StatusPending, payment.StatusPending, false},
		{payment.StatusCompleted, payment.StatusFailed, false},
		{payment.StatusCompleted, payment.StatusPending, false},
		{payment.StatusCompleted, payment.StatusCompleted, false},
		{payment.StatusFailed, payment.StatusCompleted, false},
		{payment.StatusFailed, payment.StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := payment.CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestRecordSingleInstrument(t *testing.T) {
	total := types.INR(100000)

	tests := []struct {
		mode   payment.Mode
		status payment.Status
		cash   int64
		upi    int64
		credit int64
	}{
		{payment.ModeCash, payment.StatusCompleted, 100000, 0, 0},
		{payment.ModeUPI, payment.StatusPending, 0, 100000, 0},
		{payment.ModeCredit, payment.StatusPending, 0, 0, 100000},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			p, err := payment.Record(payment.Intent{Mode: tt.mode}, total, at)
			if err != nil {
				t.Fatalf("Record: %v", err)
			}
			if p.Status != tt.status {
				t.Errorf("status: got %s, want %s", p.Status, tt.status)
			}
			if p.CashAmount.Amount != tt.cash || p.UPIAmount.Amount != tt.upi || p.CreditAmount.Amount != tt.credit {
				t.Errorf("amounts: got %d/%d/%d", p.CashAmount.Amount, p.UPIAmount.Amount, p.CreditAmount.Amount)
			}
			if !p.Covered().Equal(total) {
				t.Errorf("covered: got %s", p.Covered())
			}
		})
	}
}

func TestRecordCashIsSettled(t *testing.T) {
	p, err := payment.Record(payment.Intent{Mode: payment.ModeCash}, types.INR(500), at)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if p.SettledAt == nil || !p.SettledAt.Equal(at) {
		t.Errorf("SettledAt: got %v", p.SettledAt)
	}
	if p.EvidenceSource != payment.SourceCounter {
		t.Errorf("EvidenceSource: got %q", p.EvidenceSource)
	}
}

func TestRecordSplit(t *testing.T) {
	total := types.INR(100000)

	ok, err := payment.Record(payment.Intent{
		Mode:       payment.ModeSplit,
		CashAmount: types.INR(40000),
		UPIAmount:  types.INR(60000),
	}, total, at)
	if err != nil {
		t.Fatalf("400/600 split rejected: %v", err)
	}
	if ok.Status != payment.StatusPending {
		t.Errorf("split status: got %s", ok.Status)
	}
	if ok.CreditAmount.Currency != "inr" {
		t.Errorf("omitted instrument should be zero in ledger currency, got %+v", ok.CreditAmount)
	}

	_, err = payment.Record(payment.Intent{
		Mode:       payment.ModeSplit,
		CashAmount: types.INR(40000),
		UPIAmount:  types.INR(50000),
	}, total, at)
	var mismatch *payment.MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("400/500 split: expected MismatchError, got %v", err)
	}
	if mismatch.Got.Amount != 90000 || mismatch.Expected.Amount != 100000 {
		t.Errorf("mismatch detail: %+v", mismatch)
	}
}

func TestRecordRejects(t *testing.T) {
	total := types.INR(1000)

	tests := []struct {
		name   string
		intent payment.Intent
		want   error
	}{
		{"unknown mode", payment.Intent{Mode: "cheque"}, payment.ErrInvalidMode},
		{"empty mode", payment.Intent{}, payment.ErrInvalidMode},
		{"negative split", payment.Intent{Mode: payment.ModeSplit, CashAmount: types.INR(2000), UPIAmount: types.INR(-1000)}, payment.ErrNegativeAmount},
		{"foreign currency", payment.Intent{Mode: payment.ModeSplit, CashAmount: types.USD(1000)}, payment.ErrCurrency},
		{"instrument above total", payment.Intent{Mode: payment.ModeSplit, CashAmount: types.INR(1001)}, payment.ErrAmountRange},
		{"wrapping split", payment.Intent{Mode: payment.ModeSplit, CashAmount: types.INR(math.MaxInt64), UPIAmount: types.INR(math.MaxInt64), CreditAmount: types.INR(1002)}, payment.ErrAmountRange},
		{"reference on cash", payment.Intent{Mode: payment.ModeCash, UPIReference: "TXN_1"}, payment.ErrInvalidMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := payment.Record(tt.intent, total, at); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRecordSplitOverflowNearMax(t *testing.T) {
	total := types.INR(math.MaxInt64 - 1)
	in := payment.Intent{
		Mode:         payment.ModeSplit,
		CashAmount:   total,
		UPIAmount:    total,
		CreditAmount: types.INR(4),
	}
	if _, err := payment.Record(in, total, at); !errors.Is(err, payment.ErrAmountRange) {
		t.Fatalf("expected ErrAmountRange, got %v", err)
	}
}

func TestOutcomeStatus(t *testing.T) {
	tests := []struct {
		state string
		want  payment.Status
	}{
		{"COMPLETED", payment.StatusCompleted},
		{"success", payment.StatusCompleted},
		{"FAILED", payment.StatusFailed},
		{"EXPIRED", payment.StatusFailed},
		{"PAYMENT_PENDING", payment.StatusPending},
		{"", payment.StatusPending},
		{"SOMETHING_NEW", payment.StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			if got := (payment.Outcome{State: tt.state}).Status(); got != tt.want {
				t.Errorf("Status(%q) = %s, want %s", tt.state, got, tt.want)
			}
		})
	}
}

func TestNewReference(t *testing.T) {
	a, b := payment.NewReference(), payment.NewReference()
	if !strings.HasPrefix(a, "TXN_") || len(a) != 36 {
		t.Errorf("unexpected reference shape %q", a)
	}
	if a == b {
		t.Error("references must be unique")
	}
}

func TestRateLimitedVerifier(t *testing.T) {
	var calls atomic.Int32
	inner := payment.VerifierFunc(func(_ context.Context, ref string) (payment.Outcome, error) {
		calls.Add(1)
		return payment.Outcome{Reference: ref, State: "COMPLETED"}, nil
	})

	v := payment.NewRateLimitedVerifier(inner, 1, 1)

	if _, err := v.Verify(context.Background(), "TXN_A"); err != nil {
		t.Fatalf("first call: %v", err)
	}

	// The bucket is empty; a cancelled context must not reach the gateway.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := v.Verify(ctx, "TXN_B"); err == nil {
		t.Error("expected error from cancelled wait")
	}
	if calls.Load() != 1 {
		t.Errorf("gateway calls: got %d, want 1", calls.Load())
	}
}
