package payment

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/billbook/id"
)

// Evidence sources.
const (
	SourceCounter  = "counter"  // cash taken at the till
	SourceManual   = "manual"   // operator marked the payment
	SourceVerifier = "verifier" // gateway status poll
	SourceCallback = "callback" // gateway push notification
)

// Evidence is the proof attached to a terminal status. It is written in the
// same statement as the status itself.
type Evidence struct {
	Reference string    `json:"reference"`
	Source    string    `json:"source"`
	At        time.Time `json:"at"`
}

// NewReference returns a fresh UPI transaction reference, e.g.
// "TXN_4F1C0E2A9B7D4C3E8A6F5B1D2C3E4F50".
func NewReference() string {
	return "TXN_" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// Reconciliation reports what a verification or callback did to one invoice.
type Reconciliation struct {
	InvoiceID id.InvoiceID `json:"invoice_id"`
	Reference string       `json:"reference"`
	// Reported is the gateway answer mapped onto Status.
	Reported Status `json:"reported"`
	// Previous and Current are the stored status before and after.
	Previous Status `json:"previous"`
	Current  Status `json:"current"`
	// Applied is true when this call moved the status.
	Applied bool `json:"applied"`
	// AlreadySettled is true when the invoice was terminal and the gateway
	// agrees with it.
	AlreadySettled bool `json:"already_settled"`
}
