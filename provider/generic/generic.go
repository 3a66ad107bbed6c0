// Package generic forwards wallet tokens to any gateway that accepts a plain
// JSON charge request over HTTPS.
package generic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mstgnz/walletpay/payment"
	"github.com/mstgnz/walletpay/provider"
)

const (
	GatewayName = "generic"

	endpointPayments = "/payments"
	defaultTimeout   = 30 * time.Second
)

type chargeRequest struct {
	Token          string `json:"token"`
	TokenType      string `json:"tokenType"`
	MerchantID     string `json:"merchantId"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Country        string `json:"country"`
	PayerEmail     string `json:"payerEmail,omitempty"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

type chargeResponse struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Message   string `json:"message"`
}

// GenericProvider posts charges to <baseUrl>/payments
type GenericProvider struct {
	apiKey string
	client *provider.ProviderHTTPClient
}

// NewProvider creates a new generic gateway
func NewProvider() provider.GatewayProvider {
	return &GenericProvider{}
}

func (p *GenericProvider) Initialize(conf map[string]string) error {
	p.apiKey = conf["apiKey"]
	if p.apiKey == "" {
		return errors.New("generic: apiKey is required")
	}
	baseURL := strings.TrimRight(conf["baseUrl"], "/")
	if baseURL == "" {
		return errors.New("generic: baseUrl is required")
	}

	timeout := defaultTimeout
	if raw := conf["timeout"]; raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("generic: invalid timeout %q: %w", raw, err)
		}
		timeout = d
	}

	p.client = provider.NewProviderHTTPClient(provider.CreateHTTPClientConfig(baseURL, timeout))
	return nil
}

func (p *GenericProvider) GetRequiredConfig(environment string) []provider.ConfigField {
	return []provider.ConfigField{
		{
			Key:         "baseUrl",
			Required:    true,
			Type:        "url",
			Description: "Gateway API base URL",
			Example:     "https://gateway.example.com/v1",
		},
		{
			Key:         "apiKey",
			Required:    true,
			Type:        "string",
			Description: "Bearer key for the gateway API",
			Example:     "gw_test_abc123",
			MinLength:   8,
		},
		{
			Key:         "timeout",
			Required:    false,
			Type:        "string",
			Description: "HTTP timeout as a Go duration",
			Example:     "15s",
		},
		provider.EnvironmentField,
	}
}

func (p *GenericProvider) ValidateConfig(conf map[string]string) error {
	return provider.ValidateConfigFields(GatewayName, conf, p.GetRequiredConfig(conf["environment"]))
}

// Forward charges the token. 4xx answers are declines; 5xx, 429 and
// transport failures make the gateway unavailable.
func (p *GenericProvider) Forward(ctx context.Context, req payment.ForwardRequest) (*payment.GatewayOutcome, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + p.apiKey,
	}
	if req.IdempotencyKey != "" {
		headers["Idempotency-Key"] = req.IdempotencyKey
	}

	resp, err := p.client.SendJSON(ctx, &provider.HTTPRequest{
		Method:   http.MethodPost,
		Endpoint: endpointPayments,
		Headers:  headers,
		Body: chargeRequest{
			Token:          req.Token,
			TokenType:      req.TokenType,
			MerchantID:     req.MerchantID,
			Amount:         req.Amount.StringFixed(2),
			Currency:       req.CurrencyCode,
			Country:        req.CountryCode,
			PayerEmail:     req.PayerEmail,
			IdempotencyKey: req.IdempotencyKey,
		},
	})

	var statusErr *provider.HTTPStatusError
	switch {
	case errors.As(err, &statusErr):
		return p.mapErrorStatus(statusErr)
	case err != nil:
		return nil, provider.Unavailable(GatewayName, err)
	}

	var body chargeResponse
	if err := p.client.ParseJSONResponse(resp, &body); err != nil {
		return nil, provider.Unavailable(GatewayName, fmt.Errorf("invalid response body: %w", err))
	}

	switch strings.ToLower(body.Status) {
	case "success", "succeeded", "approved", "authorized":
		return provider.Approved(body.Reference), nil
	case "failure", "failed", "declined", "rejected":
		return provider.Declined(body.Reference, body.Message), nil
	default:
		return &payment.GatewayOutcome{
			Status:           payment.OutcomeError,
			GatewayReference: body.Reference,
			Message:          fmt.Sprintf("status %q: %s", body.Status, body.Message),
		}, nil
	}
}

func (p *GenericProvider) mapErrorStatus(statusErr *provider.HTTPStatusError) (*payment.GatewayOutcome, error) {
	if statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests {
		return nil, provider.Unavailable(GatewayName, statusErr)
	}

	var body chargeResponse
	_ = p.client.ParseJSONResponse(statusErr.Response, &body)
	return provider.Declined(body.Reference, body.Message), nil
}
