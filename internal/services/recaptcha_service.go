package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BradenHooton/authgate/internal/models"
)

const recaptchaVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

// BotChecker verifies a client-side bot-check token.
type BotChecker interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

type recaptchaResponse struct {
	Success    bool     `json:"success"`
	Score      float64  `json:"score"`
	Action     string   `json:"action"`
	ErrorCodes []string `json:"error-codes"`
}

// RecaptchaVerifier checks reCAPTCHA v3 tokens. Scores below minScore fail.
type RecaptchaVerifier struct {
	secret   string
	minScore float64
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

func NewRecaptchaVerifier(secret string, minScore float64, logger *slog.Logger) *RecaptchaVerifier {
	return &RecaptchaVerifier{
		secret:   secret,
		minScore: minScore,
		endpoint: recaptchaVerifyURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// Verify returns models.ErrBotCheckFailed for a rejected token and
// models.ErrUpstream when the verification service cannot be reached.
func (v *RecaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) error {
	if strings.TrimSpace(token) == "" {
		return models.ErrBotCheckFailed
	}
	if v.secret == "" {
		return fmt.Errorf("recaptcha secret: %w", models.ErrServerMisconfigured)
	}

	form := url.Values{"secret": {v.secret}, "response": {token}}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build recaptcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: recaptcha: %v", models.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: recaptcha status %d", models.ErrUpstream, resp.StatusCode)
	}

	var result recaptchaResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&result); err != nil {
		return fmt.Errorf("%w: decode recaptcha response: %v", models.ErrUpstream, err)
	}

	if !result.Success || result.Score < v.minScore {
		v.logger.Info("bot check rejected",
			slog.Bool("success", result.Success),
			slog.Float64("score", result.Score),
			slog.Any("error_codes", result.ErrorCodes))
		return models.ErrBotCheckFailed
	}
	return nil
}
