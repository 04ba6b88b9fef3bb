package report_test

import (
	"bytes"
	"encoding/csv"
	"reflect"
	"testing"
	"time"

	"github.com/xraph/billbook/id"
	"github.com/xraph/billbook/invoice"
	"github.com/xraph/billbook/payment"
	"github.com/xraph/billbook/report"
	"github.com/xraph/billbook/types"
)

func inv(number, branch string, at time.Time, total int64, mode payment.Mode, status payment.Status) *invoice.Invoice {
	return &invoice.Invoice{
		Entity:        types.NewEntityAt(at),
		ID:            id.NewInvoiceID(),
		Number:        number,
		Customer:      invoice.Customer{Name: "Customer " + number},
		Total:         types.INR(total),
		Payment:       payment.Payment{Mode: mode, Status: status},
		BranchCode:    branch,
		CreatedByName: "meena",
	}
}

func fixture() []*invoice.Invoice {
	day1 := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 4, 19, 0, 0, 0, time.UTC) // 5 March in IST
	return []*invoice.Invoice{
		inv("DEL-INV-2403-0001", "DEL", day1, 1000, payment.ModeCash, payment.StatusCompleted),
		inv("DEL-INV-2403-0002", "DEL", day1, 2500, payment.ModeUPI, payment.StatusPending),
		inv("BOM-INV-2403-0001", "BOM", day2, 4000, payment.ModeUPI, payment.StatusCompleted),
		inv("BOM-INV-2403-0002", "BOM", day2, 700, payment.ModeSplit, payment.StatusFailed),
	}
}

func TestSummarize(t *testing.T) {
	s := report.Summarize(fixture())

	if s.TotalSales != types.INR(8200) || s.InvoiceCount != 4 {
		t.Errorf("totals: got %s over %d", s.TotalSales, s.InvoiceCount)
	}
	if s.ByMode[payment.ModeCredit] != types.INR(0) {
		t.Errorf("credit bucket should exist as zero, got %+v", s.ByMode[payment.ModeCredit])
	}
	if s.ByMode[payment.ModeUPI] != types.INR(6500) {
		t.Errorf("upi: got %s", s.ByMode[payment.ModeUPI])
	}
	if s.ByBranch["DEL"] != types.INR(3500) || s.ByBranch["BOM"] != types.INR(4700) {
		t.Errorf("branches: %+v", s.ByBranch)
	}
	if len(s.Daily) != 1 || s.Daily["2024-03-04"] != types.INR(8200) {
		t.Errorf("daily (UTC): %+v", s.Daily)
	}
}

func TestSummarizeModesSumToTotal(t *testing.T) {
	s := report.Summarize(fixture())

	sum := types.INR(0)
	for _, v := range s.ByMode {
		sum = sum.Add(v)
	}
	if sum != s.TotalSales {
		t.Errorf("mode breakdown sums to %s, total is %s", sum, s.TotalSales)
	}
}

func TestSummarizeIsPure(t *testing.T) {
	in := fixture()
	a := report.Summarize(in)
	b := report.Summarize(in)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Summarize not deterministic:\n%+v\n%+v", a, b)
	}
}

func TestSummarizeLocation(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	s := report.Summarize(fixture(), report.WithLocation(ist))

	if got := s.Days(); !reflect.DeepEqual(got, []string{"2024-03-04", "2024-03-05"}) {
		t.Errorf("days: %v", got)
	}
	if s.Daily["2024-03-05"] != types.INR(4700) {
		t.Errorf("5 March: got %s", s.Daily["2024-03-05"])
	}
}

func TestSummarizeEmptyAndForeign(t *testing.T) {
	s := report.Summarize(nil)
	if s.TotalSales != types.INR(0) || len(s.ByMode) != 4 {
		t.Errorf("empty summary: %+v", s)
	}

	foreign := fixture()
	foreign[0].Total = types.USD(1000)
	s = report.Summarize(foreign)
	if s.Skipped != 1 || s.InvoiceCount != 3 {
		t.Errorf("foreign currency: skipped=%d count=%d", s.Skipped, s.InvoiceCount)
	}
}

func TestAnalyzePayments(t *testing.T) {
	got := report.AnalyzePayments(fixture())
	if len(got) != 4 {
		t.Fatalf("modes: got %d", len(got))
	}

	byMode := make(map[payment.Mode]report.ModeAnalysis)
	for _, a := range got {
		byMode[a.Mode] = a
	}

	upi := byMode[payment.ModeUPI]
	if upi.Count != 2 || upi.Completed != 1 || upi.Pending != 1 {
		t.Errorf("upi: %+v", upi)
	}
	if upi.SuccessRate == nil || *upi.SuccessRate != 50 {
		t.Errorf("upi success rate: %v", upi.SuccessRate)
	}
	if byMode[payment.ModeCredit].SuccessRate != nil {
		t.Error("success rate over zero transactions must be nil")
	}
	if split := byMode[payment.ModeSplit]; split.Failed != 1 || *split.SuccessRate != 0 {
		t.Errorf("split: %+v", split)
	}
}

func TestWriteCSV(t *testing.T) {
	in := fixture()
	in[0].Customer.Name = "Sharma, R."

	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, report.Rows(in)); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("records: got %d", len(records))
	}
	if !reflect.DeepEqual(records[0], report.Header) {
		t.Errorf("header: %v", records[0])
	}
	want := []string{"DEL-INV-2403-0001", "2024-03-04T10:00:00Z", "Sharma, R.", "10.00", "cash", "completed", "DEL", "meena"}
	if !reflect.DeepEqual(records[1], want) {
		t.Errorf("row: got %v, want %v", records[1], want)
	}
}
