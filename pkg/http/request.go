package http

import (
	"net"
	"net/http"
	"strings"
)

// IPConfig holds configuration for IP extraction and validation
type IPConfig struct {
	TrustedProxies []string // CIDR ranges or single addresses of trusted proxies
}

// ExtractClientIP returns the caller's address. Forwarding headers are honored
// only when the direct peer is a trusted proxy. X-Forwarded-For is read right
// to left, skipping trusted hops, so the result is the address the outermost
// trusted proxy saw and not whatever the client wrote at the front of the list.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)

	if config == nil || !isTrustedProxy(remoteIP, config.TrustedProxies) {
		return remoteIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		candidate := ""
		for i := len(hops) - 1; i >= 0; i-- {
			ip := strings.TrimSpace(hops[i])
			if !isValidIP(ip) {
				break
			}
			if !isTrustedProxy(ip, config.TrustedProxies) {
				return ip
			}
			candidate = ip
		}
		if candidate != "" {
			return candidate
		}
	}

	if xri := r.Header.Get("X-Real-IP"); isValidIP(xri) {
		return xri
	}

	return remoteIP
}

// ClientIPKey adapts ExtractClientIP to the key-func shape used by rate limiters.
func ClientIPKey(config *IPConfig) func(r *http.Request) (string, error) {
	return func(r *http.Request) (string, error) {
		return ExtractClientIP(r, config), nil
	}
}

// IsSecureRequest reports whether the request arrived over TLS, either directly
// or at a trusted proxy that says so in X-Forwarded-Proto.
func IsSecureRequest(r *http.Request, config *IPConfig) bool {
	if r.TLS != nil {
		return true
	}
	if config == nil || !isTrustedProxy(getRemoteAddr(r), config.TrustedProxies) {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}

func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

func isTrustedProxy(ip string, trustedProxies []string) bool {
	clientIP := net.ParseIP(ip)
	if clientIP == nil {
		return false
	}

	for _, entry := range trustedProxies {
		if proxyIP := net.ParseIP(entry); proxyIP != nil {
			if proxyIP.Equal(clientIP) {
				return true
			}
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			continue
		}
		if ipNet.Contains(clientIP) {
			return true
		}
	}
	return false
}

func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}
