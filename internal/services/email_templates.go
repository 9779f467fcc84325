package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	texttemplate "text/template"
	"time"

	pkglogger "github.com/BradenHooton/authgate/pkg/logger"
)

// renderedEmail is one message ready for an EmailSender.
type renderedEmail struct {
	Subject string
	Text    string
	HTML    string
}

type codeEmailData struct {
	AppName string
	Heading string
	Intro   string
	Code    string
	Minutes int
	Ignore  string
}

const codeEmailHTML = `<div style="font-family: Arial, sans-serif; max-width: 400px; margin: 0 auto; padding: 20px; border: 1px solid #eee; border-radius: 8px; background: #fafafa;">
  <h2 style="color: #ff9800;">{{.Heading}}</h2>
  <p>{{.Intro}}</p>
  <div style="font-size: 2em; font-weight: bold; color: #333; letter-spacing: 2px; margin: 20px 0;">{{.Code}}</div>
  <p style="color: #888;">This code will expire in {{.Minutes}} minutes.</p>
  <p>{{.Ignore}}</p>
</div>`

const codeEmailText = `{{.Intro}}

{{.Code}}

This code will expire in {{.Minutes}} minutes.
{{.Ignore}}
`

const passwordChangedHTML = `<div style="font-family: Arial, sans-serif; max-width: 400px; margin: 0 auto; padding: 20px; border: 1px solid #eee; border-radius: 8px; background: #fafafa;">
  <h2 style="color: #4caf50;">Password Changed</h2>
  <p>Your {{.AppName}} password has been changed successfully.</p>
  <p>If you did not do this, please contact support immediately.</p>
</div>`

const passwordChangedText = `Your {{.AppName}} password has been changed successfully. If you did not do this, please contact support immediately.
`

var (
	codeHTMLTmpl            = template.Must(template.New("code_html").Parse(codeEmailHTML))
	codeTextTmpl            = texttemplate.Must(texttemplate.New("code_text").Parse(codeEmailText))
	passwordChangedHTMLTmpl = template.Must(template.New("changed_html").Parse(passwordChangedHTML))
	passwordChangedTextTmpl = texttemplate.Must(texttemplate.New("changed_text").Parse(passwordChangedText))
)

func render(htmlT *template.Template, textT *texttemplate.Template, subject string, data any) (*renderedEmail, error) {
	var htmlBuf, textBuf bytes.Buffer
	if err := htmlT.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("render html body: %w", err)
	}
	if err := textT.Execute(&textBuf, data); err != nil {
		return nil, fmt.Errorf("render text body: %w", err)
	}
	return &renderedEmail{Subject: subject, Text: textBuf.String(), HTML: htmlBuf.String()}, nil
}

func minutesUntil(expiresAt, now time.Time) int {
	m := int(expiresAt.Sub(now).Round(time.Minute) / time.Minute)
	if m < 1 {
		return 1
	}
	return m
}

// AccountMailer renders and sends the account lifecycle emails.
type AccountMailer struct {
	sender  EmailSender
	appName string
	logger  *slog.Logger
	now     func() time.Time
}

func NewAccountMailer(sender EmailSender, appName string, logger *slog.Logger) *AccountMailer {
	if strings.TrimSpace(appName) == "" {
		appName = "our app"
	}
	return &AccountMailer{sender: sender, appName: appName, logger: logger, now: time.Now}
}

func (m *AccountMailer) SendVerificationCode(ctx context.Context, to, code string, expiresAt time.Time) error {
	email, err := render(codeHTMLTmpl, codeTextTmpl, "Verify your email", codeEmailData{
		AppName: m.appName,
		Heading: "Welcome to " + m.appName + "!",
		Intro:   "Thank you for registering. Please use the code below to verify your email address:",
		Code:    code,
		Minutes: minutesUntil(expiresAt, m.now()),
		Ignore:  "If you did not request this, please ignore this email.",
	})
	if err != nil {
		return err
	}
	return m.deliver(ctx, to, email)
}

func (m *AccountMailer) SendResetCode(ctx context.Context, to, code string, expiresAt time.Time) error {
	email, err := render(codeHTMLTmpl, codeTextTmpl, "Password Reset Request", codeEmailData{
		AppName: m.appName,
		Heading: "Password Reset Request",
		Intro:   "We received a request to reset your password. Use the code below:",
		Code:    code,
		Minutes: minutesUntil(expiresAt, m.now()),
		Ignore:  "If you did not request this, you can ignore this email.",
	})
	if err != nil {
		return err
	}
	return m.deliver(ctx, to, email)
}

func (m *AccountMailer) SendPasswordChanged(ctx context.Context, to string) error {
	email, err := render(passwordChangedHTMLTmpl, passwordChangedTextTmpl, "Password Changed Successfully",
		struct{ AppName string }{m.appName})
	if err != nil {
		return err
	}
	return m.deliver(ctx, to, email)
}

func (m *AccountMailer) deliver(ctx context.Context, to string, email *renderedEmail) error {
	if err := m.sender.Send(ctx, to, email.Subject, email.Text, email.HTML); err != nil {
		m.logger.Warn("account email not delivered",
			slog.String("email", pkglogger.SanitizedEmail(to)),
			slog.String("subject", email.Subject),
			slog.Any("error", err))
		return err
	}
	return nil
}
