package sqlite

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/billbook/branch"
	"github.com/xraph/billbook/export"
	"github.com/xraph/billbook/id"
	"github.com/xraph/billbook/invoice"
	"github.com/xraph/billbook/payment"
	"github.com/xraph/billbook/types"
)

// ==================== Branch models ====================

type branchModel struct {
	grove.BaseModel `grove:"table:billbook_branches"`

	ID        string          `grove:"id,pk"`
	Name      string          `grove:"name"`
	Code      string          `grove:"code"`
	Address   string          `grove:"address"`
	Phone     string          `grove:"phone"`
	Email     string          `grove:"email"`
	Active    bool            `grove:"active"`
	Metadata  json.RawMessage `grove:"metadata"`
	CreatedAt time.Time       `grove:"created_at"`
	UpdatedAt time.Time       `grove:"updated_at"`
}

func toBranchModel(b *branch.Branch) *branchModel {
	return &branchModel{
		ID:        b.ID.String(),
		Name:      b.Name,
		Code:      b.Code,
		Address:   b.Address,
		Phone:     b.Contact.Phone,
		Email:     b.Contact.Email,
		Active:    b.Active,
		Metadata:  encodeMeta(b.Meta),
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

func fromBranchModel(m *branchModel) (*branch.Branch, error) {
	branchID, err := id.ParseBranchID(m.ID)
	if err != nil {
		return nil, err
	}
	return &branch.Branch{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:      branchID,
		Name:    m.Name,
		Code:    m.Code,
		Address: m.Address,
		Contact: branch.Contact{Phone: m.Phone, Email: m.Email},
		Active:  m.Active,
		Meta:    decodeMeta(m.Metadata),
	}, nil
}

// ==================== Invoice models ====================

// SQLite has no JSON column type; documents are stored as TEXT.

// invoiceModel flattens the payment record into columns so that status
// transitions and export claims are single-row conditional updates. Money
// columns share the invoice's currency.
type invoiceModel struct {
	grove.BaseModel `grove:"table:billbook_invoices"`

	ID             string          `grove:"id,pk"`
	Number         string          `grove:"number"`
	BranchID       string          `grove:"branch_id"`
	BranchCode     string          `grove:"branch_code"`
	Customer       json.RawMessage `grove:"customer"`
	Items          json.RawMessage `grove:"items"`
	Currency       string          `grove:"currency"`
	SubtotalAmount int64           `grove:"subtotal_amount"`
	TaxAmount      int64           `grove:"tax_amount"`
	TotalAmount    int64           `grove:"total_amount"`
	PaymentMode    string          `grove:"payment_mode"`
	PaymentStatus  string          `grove:"payment_status"`
	CashAmount     int64           `grove:"cash_amount"`
	UPIAmount      int64           `grove:"upi_amount"`
	CreditAmount   int64           `grove:"credit_amount"`
	UPIReference   string          `grove:"upi_reference"`
	EvidenceRef    string          `grove:"evidence_ref"`
	EvidenceSource string          `grove:"evidence_source"`
	SettledAt      *time.Time      `grove:"settled_at"`
	CreatedBy      string          `grove:"created_by"`
	CreatedByName  string          `grove:"created_by_name"`
	Printed        bool            `grove:"printed"`
	Exported       bool            `grove:"exported"`
	ExportBatchID  string          `grove:"export_batch_id"`
	ExportedAt     *time.Time      `grove:"exported_at"`
	ExportClaim    string          `grove:"export_claim"`
	ExportClaimAt  *time.Time      `grove:"export_claimed_at"`
	Metadata       json.RawMessage `grove:"metadata"`
	CreatedAt      time.Time       `grove:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at"`
}

func toInvoiceModel(inv *invoice.Invoice) (*invoiceModel, error) {
	customer, err := json.Marshal(inv.Customer)
	if err != nil {
		return nil, err
	}
	items, err := json.Marshal(inv.Items)
	if err != nil {
		return nil, err
	}

	return &invoiceModel{
		ID:             inv.ID.String(),
		Number:         inv.Number,
		BranchID:       inv.BranchID.String(),
		BranchCode:     inv.BranchCode,
		Customer:       customer,
		Items:          items,
		Currency:       inv.Total.Currency,
		SubtotalAmount: inv.Subtotal.Amount,
		TaxAmount:      inv.Tax.Amount,
		TotalAmount:    inv.Total.Amount,
		PaymentMode:    string(inv.Payment.Mode),
		PaymentStatus:  string(inv.Payment.Status),
		CashAmount:     inv.Payment.CashAmount.Amount,
		UPIAmount:      inv.Payment.UPIAmount.Amount,
		CreditAmount:   inv.Payment.CreditAmount.Amount,
		UPIReference:   inv.Payment.UPIReference,
		EvidenceRef:    inv.Payment.EvidenceRef,
		EvidenceSource: inv.Payment.EvidenceSource,
		SettledAt:      inv.Payment.SettledAt,
		CreatedBy:      inv.CreatedBy.String(),
		CreatedByName:  inv.CreatedByName,
		Printed:        inv.Printed,
		Exported:       inv.Exported,
		ExportBatchID:  inv.ExportBatchID.String(),
		ExportedAt:     inv.ExportedAt,
		Metadata:       encodeMeta(inv.Metadata),
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}, nil
}

func fromInvoiceModel(m *invoiceModel) (*invoice.Invoice, error) {
	invID, err := id.ParseInvoiceID(m.ID)
	if err != nil {
		return nil, err
	}
	branchID, err := id.ParseBranchID(m.BranchID)
	if err != nil {
		return nil, err
	}
	createdBy, err := id.ParseOptional(m.CreatedBy, id.PrefixUser)
	if err != nil {
		return nil, err
	}
	batchID, err := id.ParseOptional(m.ExportBatchID, id.PrefixExportBatch)
	if err != nil {
		return nil, err
	}

	inv := &invoice.Invoice{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         invID,
		Number:     m.Number,
		BranchID:   branchID,
		BranchCode: m.BranchCode,
		Subtotal:   types.New(m.SubtotalAmount, m.Currency),
		Tax:        types.New(m.TaxAmount, m.Currency),
		Total:      types.New(m.TotalAmount, m.Currency),
		Payment: payment.Payment{
			Mode:           payment.Mode(m.PaymentMode),
			Status:         payment.Status(m.PaymentStatus),
			CashAmount:     types.New(m.CashAmount, m.Currency),
			UPIAmount:      types.New(m.UPIAmount, m.Currency),
			CreditAmount:   types.New(m.CreditAmount, m.Currency),
			UPIReference:   m.UPIReference,
			EvidenceRef:    m.EvidenceRef,
			EvidenceSource: m.EvidenceSource,
			SettledAt:      m.SettledAt,
		},
		CreatedBy:     createdBy,
		CreatedByName: m.CreatedByName,
		Printed:       m.Printed,
		Exported:      m.Exported,
		ExportBatchID: batchID,
		ExportedAt:    m.ExportedAt,
		Metadata:      decodeMeta(m.Metadata),
	}
	if len(m.Customer) > 0 {
		if err := json.Unmarshal(m.Customer, &inv.Customer); err != nil {
			return nil, err
		}
	}
	if len(m.Items) > 0 {
		if err := json.Unmarshal(m.Items, &inv.Items); err != nil {
			return nil, err
		}
	}
	return inv, nil
}

func fromInvoiceModels(models []invoiceModel) ([]*invoice.Invoice, error) {
	result := make([]*invoice.Invoice, len(models))
	for i := range models {
		inv, err := fromInvoiceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = inv
	}
	return result, nil
}

// ==================== Export batch models ====================

type batchModel struct {
	grove.BaseModel `grove:"table:billbook_export_batches"`

	ID             string          `grove:"id,pk"`
	FilterFrom     *time.Time      `grove:"filter_from"`
	FilterTo       *time.Time      `grove:"filter_to"`
	FilterBranchID string          `grove:"filter_branch_id"`
	InvoiceIDs     json.RawMessage `grove:"invoice_ids"`
	InvoiceCount   int             `grove:"invoice_count"`
	TotalAmount    int64           `grove:"total_amount"`
	TotalCurrency  string          `grove:"total_currency"`
	Format         string          `grove:"format"`
	Artifact       string          `grove:"artifact"`
	DeliveredAt    time.Time       `grove:"delivered_at"`
	CreatedAt      time.Time       `grove:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at"`
}

func toBatchModel(b *export.Batch) (*batchModel, error) {
	ids, err := json.Marshal(b.InvoiceIDs)
	if err != nil {
		return nil, err
	}
	return &batchModel{
		ID:             b.ID.String(),
		FilterFrom:     optionalTime(b.Filter.From),
		FilterTo:       optionalTime(b.Filter.To),
		FilterBranchID: b.Filter.BranchID.String(),
		InvoiceIDs:     ids,
		InvoiceCount:   b.InvoiceCount,
		TotalAmount:    b.Total.Amount,
		TotalCurrency:  b.Total.Currency,
		Format:         b.Format,
		Artifact:       b.Artifact,
		DeliveredAt:    b.DeliveredAt,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}, nil
}

func fromBatchModel(m *batchModel) (*export.Batch, error) {
	batchID, err := id.ParseExportBatchID(m.ID)
	if err != nil {
		return nil, err
	}
	branchID, err := id.ParseOptional(m.FilterBranchID, id.PrefixBranch)
	if err != nil {
		return nil, err
	}

	b := &export.Batch{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           batchID,
		Filter:       export.Filter{BranchID: branchID},
		InvoiceCount: m.InvoiceCount,
		Total:        types.New(m.TotalAmount, m.TotalCurrency),
		Format:       m.Format,
		Artifact:     m.Artifact,
		DeliveredAt:  m.DeliveredAt,
	}
	if m.FilterFrom != nil {
		b.Filter.From = *m.FilterFrom
	}
	if m.FilterTo != nil {
		b.Filter.To = *m.FilterTo
	}
	if len(m.InvoiceIDs) > 0 {
		if err := json.Unmarshal(m.InvoiceIDs, &b.InvoiceIDs); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func encodeMeta(m map[string]string) json.RawMessage {
	if len(m) == 0 {
		return json.RawMessage("{}")
	}
	raw, _ := json.Marshal(m) //nolint:errcheck // map[string]string always marshals
	return raw
}

func decodeMeta(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]string
	_ = json.Unmarshal(raw, &m) //nolint:errcheck // best-effort
	if len(m) == 0 {
		return nil
	}
	return m
}
