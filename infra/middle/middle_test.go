package middle

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mstgnz/walletpay/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("success"))
	})
}

func TestAuthMiddleware(t *testing.T) {
	handler := AuthMiddleware("test-api-key")(okHandler())

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
	}{
		{"Valid API key", "Bearer test-api-key", http.StatusOK},
		{"Invalid API key", "Bearer wrong-key", http.StatusUnauthorized},
		{"Missing Authorization header", "", http.StatusUnauthorized},
		{"Invalid format", "Basic test-api-key", http.StatusUnauthorized},
		{"Empty Bearer token", "Bearer ", http.StatusUnauthorized},
		{"Prefix of key", "Bearer test-api", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/transaction", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, rr.Code)
			}
		})
	}
}

func TestAuthMiddleware_NotConfigured(t *testing.T) {
	handler := AuthMiddleware("")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/admin/transaction", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := &RateLimiter{
		clients: make(map[string]*clientWindow),
		rate:    2,
		window:  time.Second,
		now:     func() time.Time { return now },
	}

	clientIP := "192.168.1.1"

	assert.True(t, rl.Allow(clientIP), "first request should be allowed")
	assert.True(t, rl.Allow(clientIP), "second request should be allowed")
	assert.False(t, rl.Allow(clientIP), "third request should be blocked")
	assert.True(t, rl.Allow("10.0.0.1"), "other clients are counted separately")

	now = now.Add(time.Second + 100*time.Millisecond)
	assert.True(t, rl.Allow(clientIP), "request after window should be allowed")

	now = now.Add(3 * time.Second)
	rl.evict()
	assert.Empty(t, rl.clients)
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	defer rl.Stop()

	assert.Equal(t, 100, rl.rate)
	assert.Equal(t, time.Minute, rl.window)
	rl.Stop()
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()

	handler := RateLimitMiddleware(rl)(okHandler())

	req1 := httptest.NewRequest(http.MethodGet, "/api/payment-config", nil)
	req1.RemoteAddr = "192.168.1.1:12345"
	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, req1)
	assert.Equal(t, http.StatusOK, rr1.Code)
	assert.Equal(t, "1", rr1.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rr1.Header().Get("X-RateLimit-Remaining"))

	req2 := httptest.NewRequest(http.MethodGet, "/api/payment-config", nil)
	req2.RemoteAddr = "192.168.1.1:12346"
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req2)
	assert.Equal(t, http.StatusTooManyRequests, rr2.Code)
	assert.Equal(t, "60", rr2.Header().Get("Retry-After"))
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expected   string
	}{
		{"forwarded_for_first_hop", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.2:1", "203.0.113.7"},
		{"forwarded_for_single", map[string]string{"X-Forwarded-For": " 203.0.113.8 "}, "10.0.0.2:1", "203.0.113.8"},
		{"real_ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "10.0.0.2:1", "198.51.100.2"},
		{"remote_addr", nil, "192.0.2.1:5555", "192.0.2.1"},
		{"ipv6_loopback", nil, "[::1]:5555", "127.0.0.1"},
		{"ipv6", nil, "[2001:db8::1]:443", "2001:db8::1"},
		{"no_port", nil, "192.0.2.9", "192.0.2.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, GetClientIP(req))
		})
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	handler := SecurityHeadersMiddleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/payment-config", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	expectedHeaders := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"X-XSS-Protection":        "1; mode=block",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Referrer-Policy":         "strict-origin-when-cross-origin",
		"Cache-Control":           "no-store",
	}

	for header, expectedValue := range expectedHeaders {
		if rr.Header().Get(header) != expectedValue {
			t.Errorf("Expected %s: %s, got: %s", header, expectedValue, rr.Header().Get(header))
		}
	}
}

func TestIPWhitelistMiddleware(t *testing.T) {
	handler := IPWhitelistMiddleware([]string{"127.0.0.1", " 192.168.1.100 ", "10.20.0.0/16", "not-an-ip"})(okHandler())

	tests := []struct {
		name           string
		clientIP       string
		expectedStatus int
	}{
		{"Whitelisted IP", "127.0.0.1", http.StatusOK},
		{"Another whitelisted IP", "192.168.1.100", http.StatusOK},
		{"Non-whitelisted IP", "192.168.1.99", http.StatusForbidden},
		{"Inside CIDR range", "10.20.3.4", http.StatusOK},
		{"Outside CIDR range", "10.21.0.1", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/transaction", nil)
			req.RemoteAddr = tt.clientIP + ":12345"

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
		})
	}

	t.Run("Empty list allows all", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/transaction", nil)
		req.RemoteAddr = "203.0.113.50:1"
		rr := httptest.NewRecorder()
		IPWhitelistMiddleware(nil)(okHandler()).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestRequestValidationMiddleware(t *testing.T) {
	handler := RequestValidationMiddleware(1024)(okHandler())

	tests := []struct {
		name           string
		method         string
		contentType    string
		contentLength  int64
		expectedStatus int
	}{
		{"Valid JSON POST", http.MethodPost, "application/json", 9, http.StatusOK},
		{"JSON with charset", http.MethodPut, "application/json; charset=utf-8", 9, http.StatusOK},
		{"GET request without content type", http.MethodGet, "", 0, http.StatusOK},
		{"Bodiless POST without content type", http.MethodPost, "", 0, http.StatusOK},
		{"POST body without content type", http.MethodPost, "", 9, http.StatusBadRequest},
		{"POST with form content type", http.MethodPost, "application/x-www-form-urlencoded", 9, http.StatusUnsupportedMediaType},
		{"POST with unsupported content type", http.MethodPost, "text/plain", 9, http.StatusUnsupportedMediaType},
		{"Request too large", http.MethodPost, "application/json", 2048, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/process-payment", strings.NewReader("test body"))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			req.ContentLength = tt.contentLength

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, rr.Code)
			}
		})
	}
}

func TestRequestValidationMiddleware_CapsChunkedBody(t *testing.T) {
	var readErr error
	handler := RequestValidationMiddleware(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/process-payment", strings.NewReader(`{"apiVersion":2}`))
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = -1

	handler.ServeHTTP(httptest.NewRecorder(), req)

	var maxErr *http.MaxBytesError
	assert.ErrorAs(t, readErr, &maxErr)
}

func TestRequestLoggingMiddleware(t *testing.T) {
	var seenID string
	handler := RequestLoggingMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = payment.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	t.Run("generates_id", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/payment-config", nil))

		require.NotEmpty(t, seenID)
		assert.Equal(t, seenID, rr.Header().Get("X-Request-ID"))
		assert.Equal(t, http.StatusCreated, rr.Code)
	})

	t.Run("keeps_client_id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/payment-config", nil)
		req.Header.Set("X-Request-ID", "client-req-1")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, "client-req-1", seenID)
		assert.Equal(t, "client-req-1", rr.Header().Get("X-Request-ID"))
	})

	t.Run("replaces_oversized_id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/payment-config", nil)
		req.Header.Set("X-Request-ID", strings.Repeat("x", 200))
		handler.ServeHTTP(httptest.NewRecorder(), req)

		assert.Len(t, seenID, 36)
	})
}

func TestResponseWriter_CapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	rw.Write([]byte("hello"))
	rw.WriteHeader(http.StatusTeapot)

	assert.Equal(t, http.StatusOK, rw.statusCode, "status is fixed by the first write")
	assert.Equal(t, 5, rw.bytes)
	assert.Same(t, rec, rw.Unwrap())
}
