package report

import (
	"encoding/csv"
	"io"
	"time"

	"github.com/xraph/billbook/invoice"
)

// Header is the column order written by WriteCSV.
var Header = []string{
	"Invoice Number", "Date", "Customer", "Total",
	"Payment Mode", "Payment Status", "Branch", "Created By",
}

// Row is the flat projection of one invoice.
type Row struct {
	Number        string    `json:"invoice_number"`
	Date          time.Time `json:"date"`
	Customer      string    `json:"customer"`
	Total         string    `json:"total"`
	PaymentMode   string    `json:"payment_mode"`
	PaymentStatus string    `json:"payment_status"`
	Branch        string    `json:"branch"`
	CreatedBy     string    `json:"created_by"`
}

// Rows projects invoices in input order. CreatedBy falls back to the user
// id when no name was captured.
func Rows(invoices []*invoice.Invoice) []Row {
	rows := make([]Row, 0, len(invoices))
	for _, inv := range invoices {
		if inv == nil {
			continue
		}
		creator := inv.CreatedByName
		if creator == "" {
			creator = inv.CreatedBy.String()
		}
		rows = append(rows, Row{
			Number:        inv.Number,
			Date:          inv.CreatedAt,
			Customer:      inv.Customer.Name,
			Total:         inv.Total.FormatMajor(),
			PaymentMode:   string(inv.Payment.Mode),
			PaymentStatus: string(inv.Payment.Status),
			Branch:        inv.BranchCode,
			CreatedBy:     creator,
		})
	}
	return rows
}

// WriteCSV writes Header followed by rows. Dates are RFC 3339 in UTC.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Number,
			r.Date.UTC().Format(time.RFC3339),
			r.Customer,
			r.Total,
			r.PaymentMode,
			r.PaymentStatus,
			r.Branch,
			r.CreatedBy,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
