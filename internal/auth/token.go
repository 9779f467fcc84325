package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/authgate/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const DefaultTokenExpiry = 24 * time.Hour

// TokenManager handles JWT token generation and validation
type TokenManager struct {
	secret []byte
	expiry time.Duration
	parser *jwt.Parser
	now    func() time.Time
}

// NewTokenManager fails when no signing secret is configured; there is no fallback key.
func NewTokenManager(secret string, expiry time.Duration) (*TokenManager, error) {
	if secret == "" {
		return nil, fmt.Errorf("token signing secret: %w", models.ErrServerMisconfigured)
	}
	if expiry <= 0 {
		expiry = DefaultTokenExpiry
	}
	return &TokenManager{
		secret: []byte(secret),
		expiry: expiry,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
		),
		now: time.Now,
	}, nil
}

// Expiry is the lifetime stamped on issued tokens.
func (tm *TokenManager) Expiry() time.Duration {
	return tm.expiry
}

// Issue signs a token for the account. IssuedAt and ExpiresAt are always set here.
func (tm *TokenManager) Issue(account *models.UserAccount) (string, error) {
	claims := models.ClaimsForAccount(account, tm.now(), tm.expiry)
	claims.ID = uuid.New().String()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and claim shape. Returned errors are
// models.ErrTokenExpired or models.ErrInvalidToken; callers must not surface
// which one occurred.
func (tm *TokenManager) Verify(tokenString string) (*models.SessionClaims, error) {
	if err := rejectUnknownClaims(tokenString); err != nil {
		return nil, err
	}

	claims := &models.SessionClaims{}
	token, err := tm.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return tm.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.ErrTokenExpired
		}
		return nil, models.ErrInvalidToken
	}
	if !token.Valid {
		return nil, models.ErrInvalidToken
	}
	return claims, nil
}

// rejectUnknownClaims decodes the payload without verifying it, only to check
// key names. Signature checks happen afterwards in Verify.
func rejectUnknownClaims(tokenString string) error {
	raw := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, raw); err != nil {
		return models.ErrInvalidToken
	}
	for name := range raw {
		if _, ok := models.SessionClaimNames[name]; !ok {
			return models.ErrInvalidToken
		}
	}
	return nil
}
