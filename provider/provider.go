package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/mstgnz/walletpay/payment"
)

// ConfigField represents a required configuration field for a gateway
type ConfigField struct {
	Key         string `json:"key"`
	Required    bool   `json:"required"`
	Type        string `json:"type"` // "string", "number", "url", "email", "boolean"
	Description string `json:"description"`
	Example     string `json:"example"`
	Pattern     string `json:"pattern,omitempty"`
	MinLength   int    `json:"minLength,omitempty"`
	MaxLength   int    `json:"maxLength,omitempty"`
}

// GatewayProvider is a payment.GatewayClient built from a credential map
type GatewayProvider interface {
	payment.GatewayClient

	// Initialize sets up the gateway with its credentials. The map always
	// carries "environment" ("test" or "production").
	Initialize(conf map[string]string) error

	// GetRequiredConfig describes the credentials the gateway needs
	GetRequiredConfig(environment string) []ConfigField

	// ValidateConfig checks credentials before Initialize
	ValidateConfig(conf map[string]string) error
}

// NewGateway creates, validates and initializes a registered gateway from
// the default registry
func NewGateway(name string, env payment.Environment, conf map[string]string) (GatewayProvider, error) {
	return DefaultRegistry.NewGateway(name, env, conf)
}

// NewGateway creates, validates and initializes a registered gateway
func (r *ProviderRegistry) NewGateway(name string, env payment.Environment, conf map[string]string) (GatewayProvider, error) {
	p, err := r.CreateProvider(name)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]string, len(conf)+1)
	for k, v := range conf {
		merged[k] = v
	}
	merged["environment"] = strings.ToLower(string(env))

	if err := p.ValidateConfig(merged); err != nil {
		return nil, fmt.Errorf("invalid %s configuration: %w", name, err)
	}
	if err := p.Initialize(merged); err != nil {
		return nil, fmt.Errorf("failed to initialize %s: %w", name, err)
	}

	return p, nil
}

// IsProduction reports whether a credential map targets the live environment
func IsProduction(conf map[string]string) bool {
	return strings.EqualFold(conf["environment"], string(payment.EnvironmentProduction))
}

// Unavailable wraps a transport failure for the processor
func Unavailable(gateway string, err error) error {
	return &payment.GatewayUnavailableError{Gateway: gateway, Err: err}
}

// IsTransportError reports whether err means the gateway never answered
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// Declined builds a FAILURE outcome with a safe message
func Declined(reference, message string) *payment.GatewayOutcome {
	return &payment.GatewayOutcome{
		Status:           payment.OutcomeFailure,
		GatewayReference: reference,
		Message:          message,
	}
}

// Approved builds a SUCCESS outcome
func Approved(reference string) *payment.GatewayOutcome {
	return &payment.GatewayOutcome{
		Status:           payment.OutcomeSuccess,
		GatewayReference: reference,
	}
}
