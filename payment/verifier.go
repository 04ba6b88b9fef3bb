package payment

import (
	"context"
	"strings"

	"golang.org/x/time/rate"
)

// Outcome is a gateway's answer about one transaction reference.
type Outcome struct {
	Reference string `json:"reference"`
	// State is the gateway's own vocabulary, e.g. "COMPLETED" or "PAYMENT_PENDING".
	State string `json:"state"`
	// GatewayRef is the gateway-side transaction id, kept as evidence.
	GatewayRef string `json:"gateway_ref,omitempty"`
}

// Status maps the gateway state onto the three-state vocabulary. Anything
// not recognised as success or failure stays pending: an unknown answer is
// not a failure.
func (o Outcome) Status() Status {
	switch strings.ToUpper(strings.TrimSpace(o.State)) {
	case "COMPLETED", "SUCCESS", "PAYMENT_SUCCESS", "PAID":
		return StatusCompleted
	case "FAILED", "FAILURE", "PAYMENT_ERROR", "DECLINED", "CANCELLED", "EXPIRED", "REJECTED":
		return StatusFailed
	default:
		return StatusPending
	}
}

// EvidenceRef returns the gateway reference, falling back to ours.
func (o Outcome) EvidenceRef() string {
	if o.GatewayRef != "" {
		return o.GatewayRef
	}
	return o.Reference
}

// Verifier asks the payment gateway about a transaction reference. It is
// opaque to the ledger; signature schemes live behind it.
type Verifier interface {
	Verify(ctx context.Context, reference string) (Outcome, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, reference string) (Outcome, error)

// Verify implements Verifier.
func (f VerifierFunc) Verify(ctx context.Context, reference string) (Outcome, error) {
	return f(ctx, reference)
}

// RateLimitedVerifier throttles outbound status polls so a reconciliation
// sweep cannot exceed the gateway's request quota.
type RateLimitedVerifier struct {
	next    Verifier
	limiter *rate.Limiter
}

// NewRateLimitedVerifier allows r requests per second with the given burst.
func NewRateLimitedVerifier(v Verifier, r rate.Limit, burst int) *RateLimitedVerifier {
	return &RateLimitedVerifier{
		next:    v,
		limiter: rate.NewLimiter(r, burst),
	}
}

// Verify waits for a token, then delegates. A cancelled wait returns the
// context error without calling the gateway.
func (v *RateLimitedVerifier) Verify(ctx context.Context, reference string) (Outcome, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return Outcome{}, err
	}
	return v.next.Verify(ctx, reference)
}
