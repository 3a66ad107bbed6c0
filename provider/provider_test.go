package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mstgnz/walletpay/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConfigFields(t *testing.T) {
	fields := []ConfigField{
		{Key: "apiKey", Required: true, Type: "string", MinLength: 4, MaxLength: 10},
		{Key: "baseUrl", Required: true, Type: "url"},
		{Key: "retries", Required: false, Type: "number"},
		{Key: "email", Required: false, Type: "email"},
		{Key: "sandbox", Required: false, Type: "boolean"},
		{Key: "prefix", Required: false, Type: "string", Pattern: "^gw_"},
	}
	valid := func() map[string]string {
		return map[string]string{"apiKey": "abcd1234", "baseUrl": "https://gw.example.com"}
	}

	tests := []struct {
		name    string
		mutate  func(map[string]string)
		wantErr string
	}{
		{"valid", func(map[string]string) {}, ""},
		{"missing", func(c map[string]string) { delete(c, "apiKey") }, "required field 'apiKey' is missing"},
		{"blank", func(c map[string]string) { c["apiKey"] = "   " }, "cannot be empty"},
		{"too_short", func(c map[string]string) { c["apiKey"] = "ab" }, "at least 4"},
		{"too_long", func(c map[string]string) { c["apiKey"] = "abcdefghijk" }, "must not exceed 10"},
		{"bad_url", func(c map[string]string) { c["baseUrl"] = "ftp://gw.example.com" }, "must be an http(s) URL"},
		{"bad_number", func(c map[string]string) { c["retries"] = "three" }, "must be a number"},
		{"bad_email", func(c map[string]string) { c["email"] = "nobody" }, "must be an email"},
		{"bad_boolean", func(c map[string]string) { c["sandbox"] = "yes" }, "must be 'true' or 'false'"},
		{"bad_pattern", func(c map[string]string) { c["prefix"] = "sk_x" }, "does not match"},
		{"optional_empty", func(c map[string]string) { c["retries"] = "" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := valid()
			tt.mutate(conf)

			err := ValidateConfigFields("gw", conf, fields)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateConfigFields_ReportsEveryField(t *testing.T) {
	fields := []ConfigField{
		{Key: "secretKey", Required: true, Type: "string", MinLength: 8},
		{Key: "baseUrl", Required: true, Type: "url"},
	}

	err := ValidateConfigFields("gw", map[string]string{"secretKey": "sk_1"}, fields)

	require.Error(t, err)
	assert.ErrorContains(t, err, "'secretKey' must be at least 8")
	assert.ErrorContains(t, err, "'baseUrl' is missing")
	assert.NotContains(t, err.Error(), "sk_1")

	var fieldErr *FieldError
	require.True(t, errors.As(err, &fieldErr))
	assert.Equal(t, "gw", fieldErr.Gateway)
	assert.Equal(t, "secretKey", fieldErr.Key)
}

func TestProviderHTTPClient_SendJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "/api/v1/charges", r.URL.Path)
		assert.Equal(t, "yes", r.URL.Query().Get("expand"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.JSONEq(t, `{"amount":"1.00"}`, string(body))
		w.Write([]byte(`{"id":"c1"}`))
	}))
	defer server.Close()

	client := NewProviderHTTPClient(CreateHTTPClientConfig(server.URL+"/api/", 0))
	resp, err := client.SendJSON(context.Background(), &HTTPRequest{
		Method:      http.MethodPost,
		Endpoint:    "/v1/charges",
		Headers:     map[string]string{"Authorization": "Bearer k"},
		Body:        map[string]string{"amount": "1.00"},
		QueryParams: map[string]string{"expand": "yes"},
	})

	require.NoError(t, err)
	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, client.ParseJSONResponse(resp, &out))
	assert.Equal(t, "c1", out.ID)
}

func TestProviderHTTPClient_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"message":"declined"}`))
	}))
	defer server.Close()

	client := NewProviderHTTPClient(CreateHTTPClientConfig(server.URL, time.Second))
	resp, err := client.SendJSON(context.Background(), &HTTPRequest{Method: http.MethodGet, Endpoint: "status"})

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusPaymentRequired, statusErr.StatusCode)
	assert.Equal(t, "HTTP error 402", err.Error())
	assert.Equal(t, `{"message":"declined"}`, string(resp.Body))
	assert.False(t, IsTransportError(err))
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "https://a/b/c", joinURL("https://a/b/", "/c"))
	assert.Equal(t, "https://a/b/c", joinURL("https://a/b", "c"))
	assert.Equal(t, "https://a/b/c", joinURL("https://a/b", "/c"))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransportError(t *testing.T) {
	assert.False(t, IsTransportError(nil))
	assert.False(t, IsTransportError(errors.New("bad request")))
	assert.True(t, IsTransportError(context.DeadlineExceeded))
	assert.True(t, IsTransportError(fmt.Errorf("call: %w", context.Canceled)))
	assert.True(t, IsTransportError(fmt.Errorf("dial: %w", timeoutErr{})))
}

func TestUnavailable(t *testing.T) {
	err := Unavailable("stripe", context.DeadlineExceeded)

	var unavailable *payment.GatewayUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "stripe", unavailable.Gateway)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, http.StatusInternalServerError, payment.HTTPStatus(err))
}

func TestOutcomeHelpers(t *testing.T) {
	assert.Equal(t, &payment.GatewayOutcome{Status: payment.OutcomeSuccess, GatewayReference: "r"}, Approved("r"))
	assert.Equal(t, &payment.GatewayOutcome{Status: payment.OutcomeFailure, GatewayReference: "r", Message: "m"}, Declined("r", "m"))
	assert.True(t, IsProduction(map[string]string{"environment": "production"}))
	assert.False(t, IsProduction(map[string]string{"environment": "test"}))
}
