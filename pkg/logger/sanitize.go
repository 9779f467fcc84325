package logger

import (
	"log/slog"
	"net/url"
	"strings"
)

// SanitizedEmail masks an email address for logging (e.g., "u***@*******.com")
func SanitizedEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "[invalid-email]"
	}

	local, domain := parts[0], parts[1]
	if len(local) > 1 {
		local = local[:1] + strings.Repeat("*", len(local)-1)
	}

	// keep the TLD
	labels := strings.Split(domain, ".")
	if len(labels) > 1 {
		for i := 0; i < len(labels)-1; i++ {
			labels[i] = strings.Repeat("*", len(labels[i]))
		}
		domain = strings.Join(labels, ".")
	}

	return local + "@" + domain
}

// RedactedAttr hides the value in production.
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

var sensitiveParams = map[string]struct{}{
	"password": {},
	"token":    {},
	"secret":   {},
	"email":    {},
	"code":     {},
	"state":    {},
	"user":     {},
	"csrf":     {},
}

// SanitizeQueryString returns the query with values of sensitive parameters
// replaced. The OAuth callback and its redirect carry codes and tokens here.
func SanitizeQueryString(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "[REDACTED]"
	}
	for key := range values {
		if _, ok := sensitiveParams[strings.ToLower(key)]; ok {
			values.Set(key, "[REDACTED]")
		}
	}
	return values.Encode()
}
