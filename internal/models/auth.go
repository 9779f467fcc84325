package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the payload of an issued bearer token. Subject carries the account id.
type SessionClaims struct {
	Email       string      `json:"email"`
	Username    string      `json:"username,omitempty"`
	LoginMethod LoginMethod `json:"login_method"`
	jwt.RegisteredClaims
}

// SessionClaimNames is the closed set of keys a token may carry.
var SessionClaimNames = map[string]struct{}{
	"sub":          {},
	"email":        {},
	"username":     {},
	"login_method": {},
	"iat":          {},
	"exp":          {},
	"jti":          {},
}

// Validate is called by the jwt parser after the registered claims pass.
func (c *SessionClaims) Validate() error {
	if c.Subject == "" || c.Email == "" {
		return ErrInvalidToken
	}
	if !c.LoginMethod.Valid() {
		return ErrInvalidToken
	}
	if c.IssuedAt == nil || c.ExpiresAt == nil {
		return ErrInvalidToken
	}
	return nil
}

// IsAdmin reports whether the token was issued to the reserved account.
func (c *SessionClaims) IsAdmin() bool {
	return IsReservedUsername(c.Username)
}

// ClaimsForAccount builds the claim set for a freshly authenticated account.
func ClaimsForAccount(u *UserAccount, now time.Time, ttl time.Duration) SessionClaims {
	return SessionClaims{
		Email:       u.Email,
		Username:    u.Username,
		LoginMethod: u.LoginMethod,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

// CodeKind selects which one-time code slot on an account is addressed.
type CodeKind string

const (
	CodeKindVerification CodeKind = "verification"
	CodeKindReset        CodeKind = "reset"
)

// OneTimeCode is a freshly issued code and its expiry.
type OneTimeCode struct {
	Kind      CodeKind
	Code      string
	ExpiresAt time.Time
}
