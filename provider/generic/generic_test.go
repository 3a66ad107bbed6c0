package generic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mstgnz/walletpay/payment"
	"github.com/mstgnz/walletpay/provider"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) (*GenericProvider, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	gw, err := provider.NewGateway(GatewayName, payment.EnvironmentTest, map[string]string{
		"baseUrl": server.URL + "/v1",
		"apiKey":  "gw_test_key_123",
		"timeout": "2s",
	})
	require.NoError(t, err)
	return gw.(*GenericProvider), server
}

func sampleForward() payment.ForwardRequest {
	return payment.ForwardRequest{
		Token:          `{"signature":"sig","signedMessage":"msg"}`,
		TokenType:      "PAYMENT_GATEWAY",
		GatewayName:    GatewayName,
		Environment:    payment.EnvironmentTest,
		MerchantID:     "BCR2DN4T",
		Amount:         decimal.RequireFromString("12.5"),
		CurrencyCode:   "BRL",
		CountryCode:    "BR",
		IdempotencyKey: "order-1",
	}
}

func TestGenericProvider_Forward_Request(t *testing.T) {
	var got chargeRequest
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payments", r.URL.Path)
		assert.Equal(t, "Bearer gw_test_key_123", r.Header.Get("Authorization"))
		assert.Equal(t, "order-1", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"status":"approved","reference":"gw-1"}`))
	})

	outcome, err := gw.Forward(context.Background(), sampleForward())

	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeSuccess, outcome.Status)
	assert.Equal(t, "gw-1", outcome.GatewayReference)
	assert.Equal(t, "12.50", got.Amount)
	assert.Equal(t, "BRL", got.Currency)
	assert.Equal(t, "BR", got.Country)
	assert.Equal(t, "BCR2DN4T", got.MerchantID)
	assert.Equal(t, `{"signature":"sig","signedMessage":"msg"}`, got.Token)
}

func TestGenericProvider_Forward_Outcomes(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantStatus  payment.OutcomeStatus
		wantMessage string
		unavailable bool
	}{
		{"declined_2xx", http.StatusOK, `{"status":"declined","reference":"gw-2","message":"insufficient funds"}`, payment.OutcomeFailure, "insufficient funds", false},
		{"declined_402", http.StatusPaymentRequired, `{"message":"card expired"}`, payment.OutcomeFailure, "card expired", false},
		{"declined_400_no_body", http.StatusBadRequest, ``, payment.OutcomeFailure, "", false},
		{"unknown_status", http.StatusOK, `{"status":"pending_review"}`, payment.OutcomeError, `status "pending_review": `, false},
		{"server_error", http.StatusBadGateway, `{"message":"upstream"}`, "", "", true},
		{"rate_limited", http.StatusTooManyRequests, ``, "", "", true},
		{"invalid_json", http.StatusOK, `not json`, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			outcome, err := gw.Forward(context.Background(), sampleForward())

			if tt.unavailable {
				var unavailable *payment.GatewayUnavailableError
				require.ErrorAs(t, err, &unavailable)
				assert.Equal(t, GatewayName, unavailable.Gateway)
				assert.NotContains(t, err.Error(), "signedMessage")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, outcome.Status)
			assert.Equal(t, tt.wantMessage, outcome.Message)
		})
	}
}

func TestGenericProvider_Forward_Transport(t *testing.T) {
	t.Run("connection_refused", func(t *testing.T) {
		gw, server := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {})
		server.Close()

		_, err := gw.Forward(context.Background(), sampleForward())

		var unavailable *payment.GatewayUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.True(t, provider.IsTransportError(err))
	})

	t.Run("deadline", func(t *testing.T) {
		release := make(chan struct{})
		gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		})
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := gw.Forward(ctx, sampleForward())

		var unavailable *payment.GatewayUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestGenericProvider_Config(t *testing.T) {
	tests := []struct {
		name    string
		conf    map[string]string
		wantErr string
	}{
		{"missing_key", map[string]string{"baseUrl": "https://gw.example.com"}, "apiKey"},
		{"short_key", map[string]string{"baseUrl": "https://gw.example.com", "apiKey": "abc"}, "at least 8"},
		{"bad_url", map[string]string{"baseUrl": "gw.example.com", "apiKey": "gw_test_key_123"}, "baseUrl"},
		{"bad_timeout", map[string]string{"baseUrl": "https://gw.example.com", "apiKey": "gw_test_key_123", "timeout": "soon"}, "invalid timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := provider.NewGateway(GatewayName, payment.EnvironmentTest, tt.conf)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
