package export

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/xraph/billbook/invoice"
)

// VoucherDateLayout is the date format the accounting ledger imports.
const VoucherDateLayout = "02/01/2006"

// Voucher is one invoice as the external ledger sees it.
type Voucher struct {
	XMLName     xml.Name      `xml:"VOUCHER"`
	Number      string        `xml:"VOUCHERNUMBER"`
	Date        string        `xml:"DATE"`
	PartyName   string        `xml:"PARTYNAME"`
	Amount      string        `xml:"AMOUNT"`
	PaymentMode string        `xml:"PAYMENTMODE"`
	Items       []VoucherItem `xml:"ITEMS>ITEM"`
}

// VoucherItem is one line of a voucher. Amount is net of discount.
type VoucherItem struct {
	Name     string `xml:"NAME"`
	Quantity int64  `xml:"QUANTITY"`
	Rate     string `xml:"RATE"`
	Amount   string `xml:"AMOUNT"`
}

// VoucherFrom projects inv into a voucher, dating it in loc.
func VoucherFrom(inv *invoice.Invoice, loc *time.Location) Voucher {
	if loc == nil {
		loc = time.UTC
	}
	v := Voucher{
		Number:      inv.Number,
		Date:        inv.CreatedAt.In(loc).Format(VoucherDateLayout),
		PartyName:   inv.Customer.Name,
		Amount:      inv.Total.FormatMajor(),
		PaymentMode: string(inv.Payment.Mode),
		Items:       make([]VoucherItem, 0, len(inv.Items)),
	}
	for _, it := range inv.Items {
		v.Items = append(v.Items, VoucherItem{
			Name:     it.Name,
			Quantity: it.Quantity,
			Rate:     it.UnitPrice.FormatMajor(),
			Amount:   it.Amount.FormatMajor(),
		})
	}
	return v
}

// Encoder serializes vouchers into an artifact body.
type Encoder interface {
	// Format names the encoding, e.g. "tally-xml".
	Format() string
	// Extension is the file suffix including the dot.
	Extension() string
	Encode(w io.Writer, vouchers []Voucher) error
}

// TallyXML encodes vouchers as a Tally import envelope.
type TallyXML struct{}

var _ Encoder = TallyXML{}

func (TallyXML) Format() string    { return "tally-xml" }
func (TallyXML) Extension() string { return ".xml" }

type tallyEnvelope struct {
	XMLName xml.Name    `xml:"ENVELOPE"`
	Header  tallyHeader `xml:"HEADER"`
	Body    tallyBody   `xml:"BODY"`
}

type tallyHeader struct {
	Request string `xml:"TALLYREQUEST"`
	Type    string `xml:"TYPE"`
	ID      string `xml:"ID"`
}

type tallyBody struct {
	Table    string    `xml:"IMPORTDATA>IMPORTTABLE>TABLENAME"`
	Vouchers []Voucher `xml:"IMPORTDATA>IMPORTTABLE>TABLEDATA>VOUCHER"`
}

// Encode writes the XML declaration and the envelope.
func (TallyXML) Encode(w io.Writer, vouchers []Voucher) error {
	env := tallyEnvelope{
		Header: tallyHeader{Request: "Import Data", Type: "Data", ID: "Sales Import"},
		Body:   tallyBody{Table: "Voucher", Vouchers: vouchers},
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(env); err != nil {
		return fmt.Errorf("export: encode tally xml: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}
