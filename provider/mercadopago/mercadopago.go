// Package mercadopago charges Google Pay card tokens through the Mercado Pago
// payments API using the official SDK.
package mercadopago

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	mpconfig "github.com/mercadopago/sdk-go/pkg/config"
	mppayment "github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mstgnz/walletpay/infra/logger"
	"github.com/mstgnz/walletpay/payment"
	"github.com/mstgnz/walletpay/provider"
	"github.com/shopspring/decimal"
)

const (
	GatewayName = "mercadopago"

	defaultTimeout = 30 * time.Second

	statusApproved   = "approved"
	statusAuthorized = "authorized"
	statusInProcess  = "in_process"
	statusRejected   = "rejected"
	statusCancelled  = "cancelled"
)

var paymentMethodIDs = map[string]string{
	"VISA":       "visa",
	"MASTERCARD": "master",
	"AMEX":       "amex",
	"ELO":        "elo",
	"DISCOVER":   "discover",
}

// MercadoPagoProvider creates payments with a card token
type MercadoPagoProvider struct {
	descriptor  string
	payerEmail  string
	payments    mppayment.Client
	initialized bool
}

// NewProvider creates a new Mercado Pago gateway
func NewProvider() provider.GatewayProvider {
	return &MercadoPagoProvider{}
}

// Initialize builds the SDK client. "baseUrl" redirects the SDK to another host.
func (p *MercadoPagoProvider) Initialize(conf map[string]string) error {
	accessToken := conf["accessToken"]
	if accessToken == "" {
		return errors.New("mercadopago: accessToken is required")
	}
	p.descriptor = conf["statementDescriptor"]
	p.payerEmail = conf["payerEmail"]

	transport := &statusTransport{base: http.DefaultTransport}
	if raw := conf["baseUrl"]; raw != "" {
		target, err := url.Parse(raw)
		if err != nil || target.Host == "" {
			return fmt.Errorf("mercadopago: invalid baseUrl %q", raw)
		}
		transport.target = target
	}

	cfg, err := mpconfig.New(accessToken, mpconfig.WithHTTPClient(&http.Client{
		Timeout:   defaultTimeout,
		Transport: transport,
	}))
	if err != nil {
		return fmt.Errorf("mercadopago: failed to create config: %w", err)
	}

	p.payments = mppayment.NewClient(cfg)
	p.initialized = true
	return nil
}

func (p *MercadoPagoProvider) GetRequiredConfig(environment string) []provider.ConfigField {
	tokenPattern := "^TEST-"
	if strings.EqualFold(environment, "production") {
		tokenPattern = "^APP_USR-"
	}

	return []provider.ConfigField{
		{
			Key:         "accessToken",
			Required:    true,
			Type:        "string",
			Description: "Mercado Pago access token, TEST- or APP_USR- to match the environment",
			Example:     "TEST-1234567890123456-010203-abcdef",
			Pattern:     tokenPattern,
			MinLength:   20,
		},
		{
			Key:         "payerEmail",
			Required:    false,
			Type:        "email",
			Description: "Payer email used when the wallet did not share one",
			Example:     "payer@example.com",
		},
		{
			Key:         "statementDescriptor",
			Required:    false,
			Type:        "string",
			Description: "Text shown on the card statement",
			Example:     "WALLETPAY",
			MaxLength:   22,
		},
		{
			Key:         "baseUrl",
			Required:    false,
			Type:        "url",
			Description: "Mercado Pago API base URL",
			Example:     "https://api.mercadopago.com",
		},
		provider.EnvironmentField,
	}
}

func (p *MercadoPagoProvider) ValidateConfig(conf map[string]string) error {
	return provider.ValidateConfigFields(GatewayName, conf, p.GetRequiredConfig(conf["environment"]))
}

// Forward creates a single-installment payment for the token
func (p *MercadoPagoProvider) Forward(ctx context.Context, req payment.ForwardRequest) (*payment.GatewayOutcome, error) {
	if !p.initialized {
		return nil, provider.Unavailable(GatewayName, errors.New("gateway not initialized"))
	}

	amount, err := transactionAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	request := mppayment.Request{
		TransactionAmount:   amount,
		Token:               req.Token,
		Description:         "Google Pay payment for " + req.MerchantID,
		Installments:        1,
		PaymentMethodID:     paymentMethodIDs[strings.ToUpper(req.CardNetwork)],
		ExternalReference:   req.IdempotencyKey,
		StatementDescriptor: p.descriptor,
	}
	if email := firstNonEmpty(req.PayerEmail, p.payerEmail); email != "" {
		request.Payer = &mppayment.PayerRequest{Email: email}
	}

	log := logger.WithGateway(GatewayName).SetRequestID(payment.RequestIDFromContext(ctx))

	status := new(int)
	resp, err := p.payments.Create(context.WithValue(ctx, statusKey{}, status), request)
	if err != nil {
		log.AddField("http_status", *status).Warn("Payment creation failed")
		return mapError(*status, err)
	}

	log.AddField("payment_id", resp.ID).AddField("status", resp.Status).Debug("Payment created")
	return mapPayment(resp), nil
}

func mapPayment(resp *mppayment.Response) *payment.GatewayOutcome {
	reference := ""
	if resp.ID != 0 {
		reference = strconv.Itoa(resp.ID)
	}

	switch resp.Status {
	case statusApproved, statusAuthorized, statusInProcess:
		return provider.Approved(reference)
	case statusRejected, statusCancelled:
		message := "payment " + resp.Status
		if resp.StatusDetail != "" {
			message += ": " + resp.StatusDetail
		}
		return provider.Declined(reference, message)
	default:
		return &payment.GatewayOutcome{
			Status:           payment.OutcomeError,
			GatewayReference: reference,
			Message:          fmt.Sprintf("unexpected payment status %q", resp.Status),
		}
	}
}

// mapError treats client errors as declines. The SDK error text is not
// passed on because it may echo the request.
func mapError(status int, err error) (*payment.GatewayOutcome, error) {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden, status == http.StatusTooManyRequests:
		return nil, provider.Unavailable(GatewayName, fmt.Errorf("mercadopago answered %d", status))
	case status >= 400 && status < 500:
		return provider.Declined("", fmt.Sprintf("payment rejected: http %d", status)), nil
	case status >= 500:
		return nil, provider.Unavailable(GatewayName, fmt.Errorf("mercadopago answered %d", status))
	default:
		return nil, provider.Unavailable(GatewayName, err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

type statusKey struct{}

// statusTransport records the HTTP status of the SDK call in the request
// context and optionally redirects it to another host.
type statusTransport struct {
	base   http.RoundTripper
	target *url.URL
}

func (t *statusTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if t.target != nil {
		r = r.Clone(r.Context())
		r.URL.Scheme = t.target.Scheme
		r.URL.Host = t.target.Host
		r.Host = t.target.Host
	}

	resp, err := t.base.RoundTrip(r)
	if err == nil {
		if status, ok := r.Context().Value(statusKey{}).(*int); ok {
			*status = resp.StatusCode
		}
	}
	return resp, err
}

// transactionAmount converts amount to the float the API expects, refusing
// values that would not read back as the same decimal.
func transactionAmount(amount decimal.Decimal) (float64, error) {
	f := amount.InexactFloat64()
	if !decimal.NewFromFloat(f).Equal(amount) {
		return 0, fmt.Errorf("mercadopago: amount %s cannot be sent without rounding", amount.String())
	}
	return f, nil
}
