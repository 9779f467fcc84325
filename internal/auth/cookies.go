package auth

import (
	"net/http"
	"time"
)

const (
	CSRFSecretCookieName = "csrfSecret"
	CSRFHeaderName       = "X-CSRF-Token"
	CSRFSecretMaxAge     = 24 * time.Hour
)

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	Domain   string // Empty string = current host only
	Secure   bool   // HTTPS only; set in production
	SameSite string // "strict", "lax", or "none"
}

// SetCSRFSecretCookie stores the CSRF secret where scripts cannot read it.
func SetCSRFSecretCookie(w http.ResponseWriter, secret string, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFSecretCookieName,
		Value:    secret,
		Path:     "/",
		Domain:   config.Domain,
		Expires:  time.Now().Add(CSRFSecretMaxAge),
		MaxAge:   int(CSRFSecretMaxAge / time.Second),
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	})
}

// GetCSRFSecretCookie returns the caller's CSRF secret, or "" when absent.
func GetCSRFSecretCookie(r *http.Request) string {
	cookie, err := r.Cookie(CSRFSecretCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func parseSameSite(sameSite string) http.SameSite {
	switch sameSite {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}
