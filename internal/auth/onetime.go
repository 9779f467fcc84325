package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/BradenHooton/authgate/internal/models"
)

const (
	CodeBytes    = 4
	CodeLifetime = 15 * time.Minute
)

// OneTimeCodeManager issues and checks the short-lived codes stored on an account.
// It does not persist anything; consumption is an atomic store update.
type OneTimeCodeManager struct {
	lifetime time.Duration
	now      func() time.Time
}

func NewOneTimeCodeManager() *OneTimeCodeManager {
	return &OneTimeCodeManager{lifetime: CodeLifetime, now: time.Now}
}

// Issue generates a fresh hex code expiring CodeLifetime from now.
func (m *OneTimeCodeManager) Issue(kind models.CodeKind) (*models.OneTimeCode, error) {
	buf := make([]byte, CodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate one-time code: %w", err)
	}
	return &models.OneTimeCode{
		Kind:      kind,
		Code:      hex.EncodeToString(buf),
		ExpiresAt: m.now().Add(m.lifetime),
	}, nil
}

// Validate checks supplied against the account's pending code of the given kind.
func (m *OneTimeCodeManager) Validate(account *models.UserAccount, kind models.CodeKind, supplied string, now time.Time) error {
	code, expires := account.PendingCode(kind)
	if code == nil || expires == nil || *code == "" {
		return models.ErrNoPendingCode
	}
	if subtle.ConstantTimeCompare([]byte(*code), []byte(supplied)) != 1 {
		return models.ErrCodeMismatch
	}
	if now.After(*expires) {
		return models.ErrCodeExpired
	}
	return nil
}
