package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mstgnz/walletpay/infra/logger"
	"github.com/mstgnz/walletpay/payment"
	"github.com/mstgnz/walletpay/provider"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/paymentmethod"
)

const (
	GatewayName = "stripe"

	defaultTimeout = 30 * time.Second

	messageAuthenticationRequired = "additional authentication required"
	messageInvalidToken           = "invalid payment token"
)

// StripeProvider charges Google Pay card tokens through PaymentIntents
type StripeProvider struct {
	secretKey     string
	production    bool
	paymentMethod paymentmethod.Client
	paymentIntent paymentintent.Client
}

// NewProvider creates a new Stripe gateway
func NewProvider() provider.GatewayProvider {
	return &StripeProvider{}
}

// Initialize sets up the Stripe backend. "baseUrl" overrides the API host.
func (p *StripeProvider) Initialize(conf map[string]string) error {
	p.secretKey = conf["secretKey"]
	if p.secretKey == "" {
		return errors.New("stripe: secretKey is required")
	}
	p.production = provider.IsProduction(conf)

	backendConfig := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: defaultTimeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if baseURL := strings.TrimRight(conf["baseUrl"], "/"); baseURL != "" {
		backendConfig.URL = stripe.String(baseURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig)

	p.paymentMethod = paymentmethod.Client{B: backend, Key: p.secretKey}
	p.paymentIntent = paymentintent.Client{B: backend, Key: p.secretKey}
	return nil
}

func (p *StripeProvider) GetRequiredConfig(environment string) []provider.ConfigField {
	keyPattern := "^(sk|rk)_test_[A-Za-z0-9]+$"
	if strings.EqualFold(environment, "production") {
		keyPattern = "^(sk|rk)_live_[A-Za-z0-9]+$"
	}

	return []provider.ConfigField{
		{
			Key:         "secretKey",
			Required:    true,
			Type:        "string",
			Description: "Stripe secret key, test or live to match the environment",
			Example:     "sk_test_4eC39HqLyjWDarjtT1zdp7dc",
			Pattern:     keyPattern,
			MinLength:   20,
		},
		{
			Key:         "baseUrl",
			Required:    false,
			Type:        "url",
			Description: "Stripe API base URL",
			Example:     "https://api.stripe.com",
		},
		provider.EnvironmentField,
	}
}

func (p *StripeProvider) ValidateConfig(conf map[string]string) error {
	return provider.ValidateConfigFields(GatewayName, conf, p.GetRequiredConfig(conf["environment"]))
}

// Forward turns the card token into a PaymentMethod and confirms a
// PaymentIntent for the transaction amount.
func (p *StripeProvider) Forward(ctx context.Context, req payment.ForwardRequest) (*payment.GatewayOutcome, error) {
	log := logger.WithGateway(GatewayName).SetRequestID(payment.RequestIDFromContext(ctx))

	tokenID, ok := parseToken(req.Token)
	if !ok {
		log.AddField("token_fingerprint", payment.TokenFingerprint(req.Token)).Warn("Token is not a Stripe card token")
		return provider.Declined("", messageInvalidToken), nil
	}

	amount, err := payment.MinorUnits(req.Amount, req.CurrencyCode)
	if err != nil {
		return nil, fmt.Errorf("stripe: %w", err)
	}

	pmParams := &stripe.PaymentMethodParams{
		Type: stripe.String(string(stripe.PaymentMethodTypeCard)),
		Card: &stripe.PaymentMethodCardParams{Token: stripe.String(tokenID)},
	}
	pmParams.Context = ctx
	if req.IdempotencyKey != "" {
		pmParams.SetIdempotencyKey(req.IdempotencyKey + "-pm")
	}

	pm, err := p.paymentMethod.New(pmParams)
	if err != nil {
		return mapError(err)
	}

	piParams := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amount),
		Currency:           stripe.String(strings.ToLower(req.CurrencyCode)),
		PaymentMethod:      stripe.String(pm.ID),
		PaymentMethodTypes: []*string{stripe.String("card")},
		Confirm:            stripe.Bool(true),
		Description:        stripe.String("Google Pay payment for " + req.MerchantID),
	}
	if req.PayerEmail != "" {
		piParams.ReceiptEmail = stripe.String(req.PayerEmail)
	}
	piParams.AddMetadata("merchant_id", req.MerchantID)
	piParams.AddMetadata("token_fingerprint", payment.TokenFingerprint(req.Token))
	piParams.Context = ctx
	if req.IdempotencyKey != "" {
		piParams.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := p.paymentIntent.New(piParams)
	if err != nil {
		return mapError(err)
	}

	log.AddField("payment_intent", pi.ID).AddField("status", string(pi.Status)).Debug("Payment intent confirmed")
	return mapPaymentIntent(pi), nil
}

// parseToken accepts the Stripe token object Google Pay returns, or a bare id
func parseToken(token string) (string, bool) {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(token, "{") {
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal([]byte(token), &obj); err != nil {
			return "", false
		}
		token = obj.ID
	}
	return token, strings.HasPrefix(token, "tok_")
}

func mapPaymentIntent(pi *stripe.PaymentIntent) *payment.GatewayOutcome {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded,
		stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresCapture:
		return provider.Approved(pi.ID)
	case stripe.PaymentIntentStatusRequiresAction:
		return provider.Declined(pi.ID, messageAuthenticationRequired)
	case stripe.PaymentIntentStatusRequiresPaymentMethod, stripe.PaymentIntentStatusCanceled:
		message := ""
		if pi.LastPaymentError != nil {
			message = declineMessage(pi.LastPaymentError)
		}
		return provider.Declined(pi.ID, message)
	default:
		return &payment.GatewayOutcome{
			Status:           payment.OutcomeError,
			GatewayReference: pi.ID,
			Message:          fmt.Sprintf("unexpected payment intent status %q", pi.Status),
		}
	}
}

// mapError splits Stripe errors into declines and unavailability. Stripe
// messages can echo request parameters, so only codes leave this function
// for anything but card errors.
func mapError(err error) (*payment.GatewayOutcome, error) {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return nil, provider.Unavailable(GatewayName, err)
	}

	switch {
	case stripeErr.Type == stripe.ErrorTypeCard || stripeErr.HTTPStatusCode == http.StatusPaymentRequired:
		return provider.Declined("", declineMessage(stripeErr)), nil
	case stripeErr.HTTPStatusCode >= 500,
		stripeErr.HTTPStatusCode == http.StatusTooManyRequests,
		stripeErr.HTTPStatusCode == http.StatusUnauthorized,
		stripeErr.HTTPStatusCode == http.StatusForbidden,
		stripeErr.Type == stripe.ErrorTypeAPI:
		return nil, provider.Unavailable(GatewayName, fmt.Errorf("stripe error %d %s", stripeErr.HTTPStatusCode, stripeErr.Code))
	default:
		message := "payment rejected"
		if stripeErr.Code != "" {
			message += ": " + string(stripeErr.Code)
		}
		return provider.Declined("", message), nil
	}
}

func declineMessage(stripeErr *stripe.Error) string {
	switch {
	case stripeErr.DeclineCode != "":
		return "card declined: " + string(stripeErr.DeclineCode)
	case stripeErr.Type == stripe.ErrorTypeCard && stripeErr.Msg != "":
		return stripeErr.Msg
	case stripeErr.Code != "":
		return "card declined: " + string(stripeErr.Code)
	default:
		return ""
	}
}
