package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mstgnz/walletpay/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePayload = `{"apiVersion":2,"apiVersionMinor":0,"paymentMethodData":{"tokenizationData":{"token":"abc","type":"PAYMENT_GATEWAY"}}}`

const expectedDocument = `{"apiVersion":2,"apiVersionMinor":0,` +
	`"allowedPaymentMethods":[{"type":"CARD",` +
	`"parameters":{"allowedAuthMethods":["PAN_ONLY","CRYPTOGRAM_3DS"],"allowedCardNetworks":["VISA","MASTERCARD","ELO","AMEX"]},` +
	`"tokenizationSpecification":{"type":"PAYMENT_GATEWAY","parameters":{"gateway":"example","gatewayMerchantId":"BCR2DN4T"}}}],` +
	`"merchantInfo":{"merchantId":"BCR2DN4T","merchantName":"Example Merchant"},` +
	`"transactionInfo":{"totalPriceStatus":"FINAL","totalPrice":"12.50","currencyCode":"BRL","countryCode":"BR"}}`

// Mock processor for testing
type mockProcessor struct {
	processFunc func(ctx context.Context, req payment.ProcessRequest) payment.Result
	calls       int
	last        payment.ProcessRequest
}

func (m *mockProcessor) Process(ctx context.Context, req payment.ProcessRequest) payment.Result {
	m.calls++
	m.last = req
	if m.processFunc != nil {
		return m.processFunc(ctx, req)
	}
	return payment.Result{State: payment.StateSucceeded, Success: true, GatewayReference: "ref-1"}
}

func newTestTransactionConfig(t *testing.T) *payment.TransactionConfig {
	t.Helper()
	c, err := payment.NewTransactionConfig("BCR2DN4T", "Example Merchant", payment.Options{TotalPrice: "12.50"})
	require.NoError(t, err)
	return c
}

func TestPaymentHandler_GetPaymentConfig(t *testing.T) {
	h := NewPaymentHandler(newTestTransactionConfig(t), &mockProcessor{}, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/payment-config", nil)
	rr := httptest.NewRecorder()
	h.GetPaymentConfig(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, expectedDocument, rr.Body.String())
}

func TestPaymentHandler_GetPaymentConfig_Stable(t *testing.T) {
	h := NewPaymentHandler(newTestTransactionConfig(t), &mockProcessor{}, 0)

	var bodies []string
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		h.GetPaymentConfig(rr, httptest.NewRequest(http.MethodGet, "/api/payment-config", nil))
		bodies = append(bodies, rr.Body.String())
	}

	assert.Equal(t, bodies[0], bodies[1])
}

func TestPaymentHandler_GetPaymentConfig_ConfigurationError(t *testing.T) {
	c := newTestTransactionConfig(t)
	for _, n := range []string{"VISA", "MASTERCARD", "ELO", "AMEX"} {
		c.RemoveCardNetwork(n)
	}
	h := NewPaymentHandler(c, &mockProcessor{}, 0)

	rr := httptest.NewRecorder()
	h.GetPaymentConfig(rr, httptest.NewRequest(http.MethodGet, "/api/payment-config", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"configuration error: allowedCardNetworks: at least one card network is required"}`, rr.Body.String())
}

func TestPaymentHandler_GetReadiness(t *testing.T) {
	h := NewPaymentHandler(newTestTransactionConfig(t), &mockProcessor{}, 0)

	rr := httptest.NewRecorder()
	h.GetReadiness(rr, httptest.NewRequest(http.MethodGet, "/api/is-ready-to-pay", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"allowedPaymentMethods"`)
	assert.NotContains(t, rr.Body.String(), `"transactionInfo"`)
}

func TestPaymentHandler_ProcessPayment(t *testing.T) {
	tests := []struct {
		name           string
		result         payment.Result
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "succeeded",
			result:         payment.Result{State: payment.StateSucceeded, Success: true},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"success":true}`,
		},
		{
			name:           "declined",
			result:         payment.Result{State: payment.StateFailed, Reason: "card declined"},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"success":false,"error":"card declined"}`,
		},
		{
			name: "validation_error",
			result: payment.Result{
				State:  payment.StateFailed,
				Reason: "invalid payment payload: paymentMethodData is required",
				Err:    &payment.PaymentValidationError{Reason: "paymentMethodData is required"},
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"success":false,"error":"invalid payment payload: paymentMethodData is required"}`,
		},
		{
			name: "gateway_unavailable",
			result: payment.Result{
				State:  payment.StateErrored,
				Reason: payment.MessageGatewayUnavailable,
				Err:    &payment.GatewayUnavailableError{Gateway: "example", Err: context.DeadlineExceeded},
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"success":false,"error":"payment gateway unavailable"}`,
		},
		{
			name: "in_flight",
			result: payment.Result{
				State:  payment.StateFailed,
				Reason: payment.ErrPaymentInFlight.Error(),
				Err:    payment.ErrPaymentInFlight,
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `{"success":false,"error":"payment already in progress"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &mockProcessor{processFunc: func(context.Context, payment.ProcessRequest) payment.Result {
				return tt.result
			}}
			h := NewPaymentHandler(newTestTransactionConfig(t), proc, 0)

			req := httptest.NewRequest(http.MethodPost, "/api/process-payment", strings.NewReader(samplePayload))
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()
			h.ProcessPayment(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.JSONEq(t, tt.expectedBody, rr.Body.String())
			assert.Equal(t, 1, proc.calls)
			assert.Equal(t, samplePayload, string(proc.last.Body))
			assert.Empty(t, rr.Header().Get("Idempotent-Replayed"))
		})
	}
}

func TestPaymentHandler_ProcessPayment_IdempotencyKey(t *testing.T) {
	proc := &mockProcessor{processFunc: func(context.Context, payment.ProcessRequest) payment.Result {
		return payment.Result{State: payment.StateSucceeded, Success: true, Replayed: true}
	}}
	h := NewPaymentHandler(newTestTransactionConfig(t), proc, 0)

	req := httptest.NewRequest(http.MethodPost, "/api/process-payment", strings.NewReader(samplePayload))
	req.Header.Set("Idempotency-Key", "  order-42 ")
	rr := httptest.NewRecorder()
	h.ProcessPayment(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "order-42", proc.last.IdempotencyKey)
	assert.Equal(t, "true", rr.Header().Get("Idempotent-Replayed"))
}

func TestPaymentHandler_ProcessPayment_KeyTooLong(t *testing.T) {
	proc := &mockProcessor{}
	h := NewPaymentHandler(newTestTransactionConfig(t), proc, 0)

	req := httptest.NewRequest(http.MethodPost, "/api/process-payment", strings.NewReader(samplePayload))
	req.Header.Set("Idempotency-Key", strings.Repeat("k", 256))
	rr := httptest.NewRecorder()
	h.ProcessPayment(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, 0, proc.calls)
}

func TestPaymentHandler_ProcessPayment_BodyTooLarge(t *testing.T) {
	proc := &mockProcessor{}
	h := NewPaymentHandler(newTestTransactionConfig(t), proc, 16)

	req := httptest.NewRequest(http.MethodPost, "/api/process-payment", strings.NewReader(samplePayload))
	rr := httptest.NewRecorder()
	h.ProcessPayment(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"success":false,"error":"request body too large"}`, rr.Body.String())
	assert.Equal(t, 0, proc.calls)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestPaymentHandler_ProcessPayment_ReadError(t *testing.T) {
	proc := &mockProcessor{}
	h := NewPaymentHandler(newTestTransactionConfig(t), proc, 0)

	req := httptest.NewRequest(http.MethodPost, "/api/process-payment", io.NopCloser(failingReader{}))
	rr := httptest.NewRecorder()
	h.ProcessPayment(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"success":false,"error":"failed to read request body"}`, rr.Body.String())
	assert.Equal(t, 0, proc.calls)
}

func TestPaymentHandler_ProcessPayment_RealProcessor(t *testing.T) {
	c := newTestTransactionConfig(t)
	calls := 0
	proc, err := payment.NewProcessor(c, payment.GatewayFunc(func(ctx context.Context, req payment.ForwardRequest) (*payment.GatewayOutcome, error) {
		calls++
		return &payment.GatewayOutcome{Status: payment.OutcomeSuccess, GatewayReference: "gw-1"}, nil
	}), payment.ProcessorConfig{})
	require.NoError(t, err)
	h := NewPaymentHandler(c, proc, 0)

	rr := httptest.NewRecorder()
	h.ProcessPayment(rr, httptest.NewRequest(http.MethodPost, "/api/process-payment", strings.NewReader(`{"apiVersion":2,"apiVersionMinor":0}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, 0, calls)

	rr = httptest.NewRecorder()
	h.ProcessPayment(rr, httptest.NewRequest(http.MethodPost, "/api/process-payment", strings.NewReader(samplePayload)))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true}`, rr.Body.String())
	assert.Equal(t, 1, calls)
}
