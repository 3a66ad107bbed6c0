package middle

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/mstgnz/walletpay/infra/logger"
	"github.com/mstgnz/walletpay/infra/response"
	"github.com/mstgnz/walletpay/payment"
)

const bearerPrefix = "Bearer "

// AuthMiddleware guards the admin surface with a static bearer key.
// With no key configured the routes answer 503 instead of opening up.
func AuthMiddleware(apiKey string) func(http.Handler) http.Handler {
	want := []byte(apiKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(want) == 0 {
				response.Error(w, http.StatusServiceUnavailable, "API key not configured", nil)
				return
			}

			given, problem := bearerKey(r.Header.Get("Authorization"))
			if problem == "" && subtle.ConstantTimeCompare([]byte(given), want) != 1 {
				problem = "Invalid API key"
			}
			if problem != "" {
				logger.Warn("Admin request rejected", logger.LogContext{
					RequestID: payment.RequestIDFromContext(r.Context()),
					Fields: map[string]any{
						"path":      r.URL.Path,
						"reason":    problem,
						"client_ip": GetClientIP(r),
					},
				})
				response.Error(w, http.StatusUnauthorized, problem, nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerKey extracts the key from an Authorization header, or says what is
// wrong with it.
func bearerKey(header string) (string, string) {
	switch {
	case header == "":
		return "", "Authorization header required"
	case !strings.HasPrefix(header, bearerPrefix):
		return "", "Invalid authorization format. Use: Bearer <api_key>"
	}

	key := strings.TrimSpace(header[len(bearerPrefix):])
	if key == "" {
		return "", "API key required"
	}
	return key, ""
}
