package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	csrfSecretBytes = 18
	csrfSaltLength  = 8
	saltAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// CSRFGuard implements the double-submit scheme: a secret lives in an HttpOnly
// cookie and each state-changing request echoes a salted token derived from it.
// Any number of tokens may be derived from one secret.
type CSRFGuard struct{}

func NewCSRFGuard() *CSRFGuard {
	return &CSRFGuard{}
}

// IssueSecret returns a new random secret for a caller that has none.
func (g *CSRFGuard) IssueSecret() (string, error) {
	buf := make([]byte, csrfSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate csrf secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// DeriveToken returns salt + "-" + hash(salt, secret) with a fresh salt.
func (g *CSRFGuard) DeriveToken(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("csrf secret is empty")
	}
	salt, err := randomSalt(csrfSaltLength)
	if err != nil {
		return "", err
	}
	return salt + "-" + hashSalted(salt, secret), nil
}

// Verify fails closed on any missing or malformed input.
func (g *CSRFGuard) Verify(secret, token string) bool {
	if secret == "" || token == "" {
		return false
	}
	salt, _, ok := strings.Cut(token, "-")
	if !ok || salt == "" {
		return false
	}
	expected := salt + "-" + hashSalted(salt, secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(token)) == 1
}

func hashSalted(salt, secret string) string {
	sum := sha256.Sum256([]byte(salt + "-" + secret))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func randomSalt(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate csrf salt: %w", err)
	}
	for i, b := range buf {
		buf[i] = saltAlphabet[int(b)%len(saltAlphabet)]
	}
	return string(buf), nil
}
