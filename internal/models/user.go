package models

import (
	"strings"
	"time"
)

// LoginMethod records how an account authenticates.
type LoginMethod string

const (
	LoginMethodUsername LoginMethod = "username"
	LoginMethodGoogle   LoginMethod = "google"
)

// ReservedUsername is held by exactly one administrative account.
const ReservedUsername = "admin"

// Valid reports whether m is a known login method.
func (m LoginMethod) Valid() bool {
	return m == LoginMethodUsername || m == LoginMethodGoogle
}

// UserAccount is the full stored record, including secrets. It never leaves the service layer.
type UserAccount struct {
	ID            string
	Username      string
	Email         string
	PasswordHash  *string // nil for Google-only accounts
	LoginMethod   LoginMethod
	EmailVerified bool
	GoogleID      *string
	Picture       *string

	VerificationCode        *string
	VerificationCodeExpires *time.Time
	ResetCode               *string
	ResetCodeExpires        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsReserved reports whether the account holds the administrative username.
func (u *UserAccount) IsReserved() bool {
	return IsReservedUsername(u.Username)
}

// PendingCode returns the stored code and expiry of the given kind.
func (u *UserAccount) PendingCode(kind CodeKind) (*string, *time.Time) {
	switch kind {
	case CodeKindVerification:
		return u.VerificationCode, u.VerificationCodeExpires
	case CodeKindReset:
		return u.ResetCode, u.ResetCodeExpires
	}
	return nil, nil
}

// Profile returns the public view of the account.
func (u *UserAccount) Profile() *UserProfile {
	p := &UserProfile{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		LoginMethod:   u.LoginMethod,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
	if u.Picture != nil {
		p.Picture = *u.Picture
	}
	return p
}

// IsReservedUsername compares case-insensitively against ReservedUsername.
func IsReservedUsername(username string) bool {
	return strings.EqualFold(strings.TrimSpace(username), ReservedUsername)
}

// NormalizeEmail is applied before every store lookup or write.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserProfile is the account shape returned to clients after login or lookup.
type UserProfile struct {
	ID            string      `json:"id"`
	Username      string      `json:"username"`
	Email         string      `json:"email"`
	LoginMethod   LoginMethod `json:"loginMethod"`
	EmailVerified bool        `json:"emailVerified"`
	Picture       string      `json:"picture,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// UserSummary is the redacted row returned by admin search. It has no
// password or one-time-code fields.
type UserSummary struct {
	ID            string      `json:"id"`
	Username      string      `json:"username"`
	Email         string      `json:"email"`
	LoginMethod   LoginMethod `json:"loginMethod"`
	EmailVerified bool        `json:"emailVerified"`
	GoogleID      string      `json:"googleId,omitempty"`
	Picture       string      `json:"picture,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// UserUpdate is a partial update; nil fields are left unchanged.
type UserUpdate struct {
	Username      *string
	Email         *string
	PasswordHash  *string
	LoginMethod   *LoginMethod
	EmailVerified *bool
	GoogleID      *string
	Picture       *string

	// ClearPasswordHash nulls the stored hash. It wins over PasswordHash.
	ClearPasswordHash bool
	// ClearVerificationCode drops any pending verification code.
	ClearVerificationCode bool
}

// IsEmpty reports whether the update would change nothing.
func (u UserUpdate) IsEmpty() bool {
	return u.Username == nil && u.Email == nil && u.PasswordHash == nil &&
		u.LoginMethod == nil && u.EmailVerified == nil && u.GoogleID == nil && u.Picture == nil &&
		!u.ClearPasswordHash && !u.ClearVerificationCode
}

// UserFilter narrows admin search. Search matches username or email, case-insensitively.
type UserFilter struct {
	Search string
}
