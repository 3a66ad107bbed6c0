package middle

import (
	"net/http"
	"net/netip"
	"slices"
	"strings"

	"github.com/mstgnz/walletpay/infra/response"
)

// SecurityHeadersMiddleware adds security headers to responses
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("X-XSS-Protection", "1; mode=block")
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Cache-Control", "no-store")

			next.ServeHTTP(w, r)
		})
	}
}

// IPWhitelistMiddleware restricts access to the given addresses or CIDR
// ranges. Entries that parse as neither are ignored. An empty list allows all.
func IPWhitelistMiddleware(allowed []string) func(http.Handler) http.Handler {
	var prefixes []netip.Prefix
	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if p, err := netip.ParsePrefix(entry); err == nil {
			prefixes = append(prefixes, p.Masked())
		} else if addr, err := netip.ParseAddr(entry); err == nil {
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
		}
	}

	permitted := func(ip string) bool {
		addr, err := netip.ParseAddr(ip)
		if err != nil {
			return false
		}
		addr = addr.Unmap()
		return slices.ContainsFunc(prefixes, func(p netip.Prefix) bool { return p.Contains(addr) })
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(prefixes) > 0 && !permitted(GetClientIP(r)) {
				response.Error(w, http.StatusForbidden, "IP not whitelisted", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestValidationMiddleware requires JSON bodies on writes and caps their size
func RequestValidationMiddleware(maxBodyBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
				contentType := r.Header.Get("Content-Type")

				// bodiless writes, e.g. POST /admin/card-networks/VISA, need no content type
				if r.ContentLength != 0 {
					if contentType == "" {
						response.Error(w, http.StatusBadRequest, "Content-Type header is required", nil)
						return
					}
					if !strings.Contains(contentType, "application/json") {
						response.Error(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
						return
					}
				}
			}

			if maxBodyBytes > 0 {
				if r.ContentLength > maxBodyBytes {
					response.Error(w, http.StatusRequestEntityTooLarge, "Request body too large", nil)
					return
				}
				if r.Body != nil {
					r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
