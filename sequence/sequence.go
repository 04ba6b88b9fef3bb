// Package sequence renders and parses invoice numbers of the form
// {BRANCH_CODE}-INV-{YY}{MM}-{NNNN}.
//
// Numbers come from a counter keyed by (branch, YYMM) that the store
// increments atomically, so two concurrent invoices in the same branch and
// month never share a number. The counter restarts at 1 each month and is
// independent per branch. NNNN is zero-padded to four digits; from 10000 on
// the field simply widens, which keeps numbers unique and sortable within a
// month by (length, value).
package sequence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xraph/billbook/id"
)

// Width is the minimum number of digits in the sequence field.
const Width = 4

const infix = "-INV-"

// ErrMalformed is returned by Parse for strings that are not invoice numbers.
var ErrMalformed = errors.New("sequence: malformed invoice number")

// Counter hands out the next value of a (branch, period) sequence. The first
// call for a new key returns 1. Implementations must make the increment and
// the read a single atomic step.
type Counter interface {
	NextInvoiceSequence(ctx context.Context, branchID id.BranchID, period string) (int64, error)
}

// Number is a decomposed invoice number.
type Number struct {
	BranchCode string
	Period     string // YYMM
	Seq        int64
}

// Period returns the YYMM key of t in loc. A nil loc means UTC.
func Period(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("0601")
}

// PeriodStart returns the first instant of the calendar month that
// contains t, in loc.
func PeriodStart(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}

// Format renders an invoice number.
func Format(branchCode, period string, seq int64) string {
	return fmt.Sprintf("%s%s%s-%0*d", branchCode, infix, period, Width, seq)
}

// String renders n.
func (n Number) String() string {
	return Format(n.BranchCode, n.Period, n.Seq)
}

// Compare orders two invoice numbers of the same branch and period by
// sequence value. Plain string order misplaces widened numbers (10000 sorts
// before 1001), so shorter numbers come first.
func Compare(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// Parse decomposes an invoice number produced by Format.
func Parse(s string) (Number, error) {
	code, rest, ok := strings.Cut(s, infix)
	if !ok || code == "" {
		return Number{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	period, digits, ok := strings.Cut(rest, "-")
	if !ok || len(period) != 4 || !allDigits(period) {
		return Number{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	if len(digits) < Width || !allDigits(digits) {
		return Number{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	seq, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || seq < 1 {
		return Number{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	month, _ := strconv.Atoi(period[2:])
	if month < 1 || month > 12 {
		return Number{}, fmt.Errorf("%w: bad month in %q", ErrMalformed, s)
	}
	return Number{BranchCode: code, Period: period, Seq: seq}, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
