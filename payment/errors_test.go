package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"configuration", &ConfigurationError{Field: "x", Reason: "y"}, "configuration"},
		{"validation", &PaymentValidationError{Reason: "y"}, "validation"},
		{"wrapped_validation", fmt.Errorf("handler: %w", &PaymentValidationError{Reason: "y"}), "validation"},
		{"unavailable", &GatewayUnavailableError{Gateway: "g", Err: context.DeadlineExceeded}, "gateway_unavailable"},
		{"in_flight", fmt.Errorf("dedup: %w", ErrPaymentInFlight), "in_flight"},
		{"bare_deadline", context.DeadlineExceeded, "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"other", errors.New("boom"), "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", &PaymentValidationError{Reason: "x"}, http.StatusBadRequest},
		{"in_flight", ErrPaymentInFlight, http.StatusConflict},
		{"configuration", &ConfigurationError{Reason: "x"}, http.StatusInternalServerError},
		{"unavailable", &GatewayUnavailableError{Gateway: "g"}, http.StatusInternalServerError},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "configuration error: totalPrice: must not be negative",
		(&ConfigurationError{Field: "totalPrice", Reason: "must not be negative"}).Error())
	assert.Equal(t, "configuration error: bad", (&ConfigurationError{Reason: "bad"}).Error())
	assert.Equal(t, "invalid payment payload: empty payload", (&PaymentValidationError{Reason: "empty payload"}).Error())
	assert.Equal(t, "gateway stripe unavailable", (&GatewayUnavailableError{Gateway: "stripe"}).Error())

	unavailable := &GatewayUnavailableError{Gateway: "stripe", Err: context.DeadlineExceeded}
	assert.Equal(t, "gateway stripe unavailable: context deadline exceeded", unavailable.Error())
	assert.ErrorIs(t, unavailable, context.DeadlineExceeded)
}
