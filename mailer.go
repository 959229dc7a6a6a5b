package auth

import (
	"context"
	"fmt"
	"net/url"
)

// Mailer is the outbound delivery boundary. Implementations own transport,
// templating, and retries; the flows here only hand over the address and the
// raw token.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, email, token string) error
	SendPasswordResetEmail(ctx context.Context, email, token string) error
}

// LogMailer writes the delivery to the logger instead of sending anything.
// Default for development and tests.
type LogMailer struct {
	Logger  Logger
	BaseURL string
}

var _ Mailer = (*LogMailer)(nil)

func NewLogMailer(baseURL string) *LogMailer {
	return &LogMailer{
		Logger:  defLogger{},
		BaseURL: baseURL,
	}
}

func (m *LogMailer) SendVerificationEmail(_ context.Context, email, token string) error {
	m.getLogger().Info(
		"verification email",
		"to", email,
		"link", fmt.Sprintf("%s/auth/verify-email?token=%s", m.BaseURL, url.QueryEscape(token)),
	)
	return nil
}

func (m *LogMailer) SendPasswordResetEmail(_ context.Context, email, token string) error {
	m.getLogger().Info(
		"password reset email",
		"to", email,
		"link", fmt.Sprintf("%s/reset-password?token=%s", m.BaseURL, url.QueryEscape(token)),
	)
	return nil
}

func (m *LogMailer) getLogger() Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return defLogger{}
}
