// Package example is a gateway that approves every payment without calling
// anyone. It stands in for a real gateway in TEST setups and demos.
package example

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mstgnz/walletpay/infra/logger"
	"github.com/mstgnz/walletpay/payment"
	"github.com/mstgnz/walletpay/provider"
)

const GatewayName = "example"

// ExampleProvider logs the forward and approves it
type ExampleProvider struct {
	production bool
	newID      func() string
}

// NewProvider creates a new example gateway
func NewProvider() provider.GatewayProvider {
	return &ExampleProvider{newID: uuid.NewString}
}

func (p *ExampleProvider) Initialize(conf map[string]string) error {
	p.production = provider.IsProduction(conf)
	if p.production {
		logger.Warn("Example gateway approves every payment and must not be used in production",
			logger.LogContext{Gateway: GatewayName})
	}
	return nil
}

func (p *ExampleProvider) GetRequiredConfig(environment string) []provider.ConfigField {
	return []provider.ConfigField{provider.EnvironmentField}
}

func (p *ExampleProvider) ValidateConfig(conf map[string]string) error {
	return provider.ValidateConfigFields(GatewayName, conf, p.GetRequiredConfig(conf["environment"]))
}

// Forward never fails unless the context is already done
func (p *ExampleProvider) Forward(ctx context.Context, req payment.ForwardRequest) (*payment.GatewayOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, provider.Unavailable(GatewayName, err)
	}

	ref := p.newID()
	logger.Info("Forwarding token to gateway", logger.LogContext{
		RequestID: payment.RequestIDFromContext(ctx),
		Gateway:   GatewayName,
		Fields: map[string]any{
			"token_fingerprint": payment.TokenFingerprint(req.Token),
			"token_type":        req.TokenType,
			"merchant_id":       req.MerchantID,
			"amount":            fmt.Sprintf("%s %s", req.Amount.StringFixed(2), req.CurrencyCode),
			"reference":         ref,
		},
	})

	return provider.Approved(ref), nil
}
