package auth

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultBcryptCost = 12
	MinPasswordLen    = 8
	// bcrypt ignores input past 72 bytes
	MaxPasswordBytes = 72
)

// Policy violation messages, in the order ValidatePassword reports them.
const (
	MsgTooShort       = "Must be at least 8 characters"
	MsgMissingLower   = "Must include a lowercase letter"
	MsgMissingUpper   = "Must include an uppercase letter"
	MsgMissingDigit   = "Must include a number"
	MsgMissingSpecial = "Must include a special character"
)

var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// ValidatePassword returns every violated strength rule. An empty result means
// the password is acceptable. Rules are checked independently.
func ValidatePassword(password string) []string {
	violations := make([]string, 0, 5)

	if utf8.RuneCountInString(password) < MinPasswordLen {
		violations = append(violations, MsgTooShort)
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= '0' && r <= '9':
			hasDigit = true
		default:
			// underscore and any non-ASCII-alphanumeric rune count as special
			hasSpecial = true
		}
	}

	if !hasLower {
		violations = append(violations, MsgMissingLower)
	}
	if !hasUpper {
		violations = append(violations, MsgMissingUpper)
	}
	if !hasDigit {
		violations = append(violations, MsgMissingDigit)
	}
	if !hasSpecial {
		violations = append(violations, MsgMissingSpecial)
	}

	return violations
}

// HashPassword hashes with the given bcrypt cost. Cost is validated at config load.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// ValidateCost rejects bcrypt costs outside the range the library accepts
// or below the floor we allow in deployment.
func ValidateCost(cost int) error {
	if cost < 10 || cost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be between 10 and %d (got %d)", bcrypt.MaxCost, cost)
	}
	return nil
}
