package mongo

import (
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

	ID        string            `grove:"id,pk"      bson:"_id"`
	Name      string            `grove:"name"       bson:"name"`
	Code      string            `grove:"code"       bson:"code"`
	Address   string            `grove:"address"    bson:"address"`
	Phone     string            `grove:"phone"      bson:"phone"`
	Email     string            `grove:"email"      bson:"email"`
	Active    bool              `grove:"active"     bson:"active"`
	Metadata  map[string]string `grove:"metadata"   bson:"metadata,omitempty"`
	CreatedAt time.Time         `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time         `grove:"updated_at" bson:"updated_at"`
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
		Metadata:  b.Meta,
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
		Meta:    m.Metadata,
	}, nil
}

// sequenceModel is one (branch, period) counter. The _id is
// "<branch_id>/<period>" so the upsert targets a single document.
type sequenceModel struct {
	ID        string    `bson:"_id"`
	BranchID  string    `bson:"branch_id"`
	Period    string    `bson:"period"`
	LastValue int64     `bson:"last_value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// ==================== Invoice models ====================

type customerModel struct {
	Name    string `bson:"name"`
	Phone   string `bson:"phone,omitempty"`
	Email   string `bson:"email,omitempty"`
	Address string `bson:"address,omitempty"`
}

type lineItemModel struct {
	ID        string `bson:"id"`
	ProductID string `bson:"product_id,omitempty"`
	Name      string `bson:"name"`
	Quantity  int64  `bson:"quantity"`
	UnitPrice int64  `bson:"unit_price"`
	Discount  int64  `bson:"discount"`
	Amount    int64  `bson:"amount"`
}

// invoiceModel keeps payment and export fields at the top level so that
// conditional updates can filter on them directly.
type invoiceModel struct {
	grove.BaseModel `grove:"table:billbook_invoices"`

	ID             string            `grove:"id,pk"             bson:"_id"`
	Number         string            `grove:"number"            bson:"number"`
	BranchID       string            `grove:"branch_id"         bson:"branch_id"`
	BranchCode     string            `grove:"branch_code"       bson:"branch_code"`
	Customer       customerModel     `grove:"customer"          bson:"customer"`
	Items          []lineItemModel   `grove:"items"             bson:"items"`
	Currency       string            `grove:"currency"          bson:"currency"`
	SubtotalAmount int64             `grove:"subtotal_amount"   bson:"subtotal_amount"`
	TaxAmount      int64             `grove:"tax_amount"        bson:"tax_amount"`
	TotalAmount    int64             `grove:"total_amount"      bson:"total_amount"`
	PaymentMode    string            `grove:"payment_mode"      bson:"payment_mode"`
	PaymentStatus  string            `grove:"payment_status"    bson:"payment_status"`
	CashAmount     int64             `grove:"cash_amount"       bson:"cash_amount"`
	UPIAmount      int64             `grove:"upi_amount"        bson:"upi_amount"`
	CreditAmount   int64             `grove:"credit_amount"     bson:"credit_amount"`
	UPIReference   string            `grove:"upi_reference"     bson:"upi_reference,omitempty"`
	EvidenceRef    string            `grove:"evidence_ref"      bson:"evidence_ref"`
	EvidenceSource string            `grove:"evidence_source"   bson:"evidence_source"`
	SettledAt      *time.Time        `grove:"settled_at"        bson:"settled_at,omitempty"`
	CreatedBy      string            `grove:"created_by"        bson:"created_by"`
	CreatedByName  string            `grove:"created_by_name"   bson:"created_by_name"`
	Printed        bool              `grove:"printed"           bson:"printed"`
	Exported       bool              `grove:"exported"          bson:"exported"`
	ExportBatchID  string            `grove:"export_batch_id"   bson:"export_batch_id"`
	ExportedAt     *time.Time        `grove:"exported_at"       bson:"exported_at,omitempty"`
	ExportClaim    string            `grove:"export_claim"      bson:"export_claim"`
	ExportClaimAt  *time.Time        `grove:"export_claimed_at" bson:"export_claimed_at,omitempty"`
	Metadata       map[string]string `grove:"metadata"          bson:"metadata,omitempty"`
	CreatedAt      time.Time         `grove:"created_at"        bson:"created_at"`
	UpdatedAt      time.Time         `grove:"updated_at"        bson:"updated_at"`
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	items := make([]lineItemModel, len(inv.Items))
	for i, it := range inv.Items {
		items[i] = lineItemModel{
			ID:        it.ID.String(),
			ProductID: it.ProductID.String(),
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.Amount,
			Discount:  it.Discount.Amount,
			Amount:    it.Amount.Amount,
		}
	}

	return &invoiceModel{
		ID:             inv.ID.String(),
		Number:         inv.Number,
		BranchID:       inv.BranchID.String(),
		BranchCode:     inv.BranchCode,
		Customer:       customerModel(inv.Customer),
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
		Metadata:       inv.Metadata,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}
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

	items := make([]invoice.LineItem, len(m.Items))
	for i, it := range m.Items {
		itemID, err := id.ParseOptional(it.ID, id.PrefixLineItem)
		if err != nil {
			return nil, err
		}
		productID, err := id.ParseOptional(it.ProductID, id.PrefixProduct)
		if err != nil {
			return nil, err
		}
		items[i] = invoice.LineItem{
			ID:        itemID,
			ProductID: productID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: types.New(it.UnitPrice, m.Currency),
			Discount:  types.New(it.Discount, m.Currency),
			Amount:    types.New(it.Amount, m.Currency),
		}
	}

	return &invoice.Invoice{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         invID,
		Number:     m.Number,
		Customer:   invoice.Customer(m.Customer),
		Items:      items,
		Subtotal:   types.New(m.SubtotalAmount, m.Currency),
		Tax:        types.New(m.TaxAmount, m.Currency),
		Total:      types.New(m.TotalAmount, m.Currency),
		BranchID:   branchID,
		BranchCode: m.BranchCode,
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
		Metadata:      m.Metadata,
	}, nil
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

	ID             string     `grove:"id,pk"            bson:"_id"`
	FilterFrom     *time.Time `grove:"filter_from"      bson:"filter_from,omitempty"`
	FilterTo       *time.Time `grove:"filter_to"        bson:"filter_to,omitempty"`
	FilterBranchID string     `grove:"filter_branch_id" bson:"filter_branch_id,omitempty"`
	InvoiceIDs     []string   `grove:"invoice_ids"      bson:"invoice_ids"`
	InvoiceCount   int        `grove:"invoice_count"    bson:"invoice_count"`
	TotalAmount    int64      `grove:"total_amount"     bson:"total_amount"`
	TotalCurrency  string     `grove:"total_currency"   bson:"total_currency"`
	Format         string     `grove:"format"           bson:"format"`
	Artifact       string     `grove:"artifact"         bson:"artifact"`
	DeliveredAt    time.Time  `grove:"delivered_at"     bson:"delivered_at"`
	CreatedAt      time.Time  `grove:"created_at"       bson:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"       bson:"updated_at"`
}

func toBatchModel(b *export.Batch) *batchModel {
	ids := make([]string, len(b.InvoiceIDs))
	for i, invID := range b.InvoiceIDs {
		ids[i] = invID.String()
	}
	m := &batchModel{
		ID:             b.ID.String(),
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
	}
	if !b.Filter.From.IsZero() {
		from := b.Filter.From.UTC()
		m.FilterFrom = &from
	}
	if !b.Filter.To.IsZero() {
		to := b.Filter.To.UTC()
		m.FilterTo = &to
	}
	return m
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

	ids := make([]id.InvoiceID, len(m.InvoiceIDs))
	for i, s := range m.InvoiceIDs {
		if ids[i], err = id.ParseInvoiceID(s); err != nil {
			return nil, err
		}
	}

	b := &export.Batch{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           batchID,
		Filter:       export.Filter{BranchID: branchID},
		InvoiceIDs:   ids,
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
	return b, nil
}
