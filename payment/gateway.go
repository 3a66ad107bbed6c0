package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// OutcomeStatus is the normalized verdict of a gateway.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "SUCCESS"
	OutcomeFailure OutcomeStatus = "FAILURE"
	OutcomeError   OutcomeStatus = "ERROR"
)

// GatewayOutcome is what a gateway reports for a forwarded token.
// Message must not contain token material.
type GatewayOutcome struct {
	Status           OutcomeStatus
	GatewayReference string
	Message          string
}

// ForwardRequest carries everything a gateway needs to charge a wallet token.
type ForwardRequest struct {
	Token          string
	TokenType      string
	CardNetwork    string
	GatewayName    string
	Environment    Environment
	MerchantID     string
	Amount         decimal.Decimal
	CurrencyCode   string
	CountryCode    string
	PayerEmail     string
	IdempotencyKey string
}

// String omits the token.
func (r ForwardRequest) String() string {
	return fmt.Sprintf("ForwardRequest{gateway=%s env=%s merchant=%s amount=%s %s fingerprint=%s}",
		r.GatewayName, r.Environment, r.MerchantID, r.Amount.StringFixed(2), r.CurrencyCode, TokenFingerprint(r.Token))
}

func (r ForwardRequest) GoString() string {
	return r.String()
}

// GatewayClient forwards a token to a payment gateway. Transport failures and
// timeouts are reported as *GatewayUnavailableError.
type GatewayClient interface {
	Forward(ctx context.Context, req ForwardRequest) (*GatewayOutcome, error)
}

// GatewayFunc adapts a function to the GatewayClient interface.
type GatewayFunc func(ctx context.Context, req ForwardRequest) (*GatewayOutcome, error)

func (f GatewayFunc) Forward(ctx context.Context, req ForwardRequest) (*GatewayOutcome, error) {
	return f(ctx, req)
}
