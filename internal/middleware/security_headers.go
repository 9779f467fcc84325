package middleware

import (
	"net/http"

	pkghttp "github.com/BradenHooton/authgate/pkg/http"
)

// SecurityHeadersConfig holds security headers configuration
type SecurityHeadersConfig struct {
	Env      string
	IPConfig *pkghttp.IPConfig
}

// SecurityHeaders sets browser hardening headers on every response. The API
// only serves JSON and redirects, so the CSP denies everything.
func SecurityHeaders(config SecurityHeadersConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'")
			h.Set("Cross-Origin-Opener-Policy", "same-origin")
			h.Set("Permissions-Policy", "camera=(), geolocation=(), microphone=(), payment=(), usb=()")
			h.Set("Cache-Control", "no-store")

			if config.Env == "production" && pkghttp.IsSecureRequest(r, config.IPConfig) {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// HTTPSRedirect sends plain-HTTP requests to the https URL with a 301.
// It is only installed in production.
func HTTPSRedirect(ipConfig *pkghttp.IPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if pkghttp.IsSecureRequest(r, ipConfig) {
				next.ServeHTTP(w, r)
				return
			}
			target := "https://" + r.Host + r.URL.RequestURI()
			http.Redirect(w, r, target, http.StatusMovedPermanently)
		})
	}
}
