package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrPaymentInFlight is returned when an identical payment is still being processed.
var ErrPaymentInFlight = errors.New("payment already in progress")

// ConfigurationError reports an invalid merchant or transaction setting.
// It is a setup fault and is never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Kind() string { return "configuration" }

// PaymentValidationError reports a malformed or incomplete payment payload.
type PaymentValidationError struct {
	Reason string
}

func (e *PaymentValidationError) Error() string {
	return "invalid payment payload: " + e.Reason
}

func (e *PaymentValidationError) Kind() string { return "validation" }

// GatewayUnavailableError reports that the gateway could not be reached or
// did not answer in time. Err never carries token material.
type GatewayUnavailableError struct {
	Gateway string
	Err     error
}

func (e *GatewayUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("gateway %s unavailable", e.Gateway)
	}
	return fmt.Sprintf("gateway %s unavailable: %v", e.Gateway, e.Err)
}

func (e *GatewayUnavailableError) Unwrap() error { return e.Err }

func (e *GatewayUnavailableError) Kind() string { return "gateway_unavailable" }

type kinder interface {
	Kind() string
}

func configErr(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func validationErr(format string, args ...any) error {
	return &PaymentValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Kind classifies err into a short, stable label for logs and records.
func Kind(err error) string {
	var k kinder
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPaymentInFlight):
		return "in_flight"
	case errors.As(err, &k):
		return k.Kind()
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}

// HTTPStatus maps err to the status code used at the HTTP boundary.
// Configuration and gateway faults are server side and map to 500.
func HTTPStatus(err error) int {
	var valErr *PaymentValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &valErr):
		return http.StatusBadRequest
	case errors.Is(err, ErrPaymentInFlight):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
