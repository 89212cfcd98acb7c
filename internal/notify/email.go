package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
	"github.com/pkg/errors"
)

// EmailConfig holds the SMTP settings of the email sender
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// Email sends messages over SMTP
type Email struct {
	config EmailConfig
}

// NewEmail creates an email sender
func NewEmail(config EmailConfig) *Email {
	return &Email{config: config}
}

func (m *Email) Name() string {
	return "email"
}

func (m *Email) Send(ctx context.Context, subject string, text string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "email not sent")
	}

	e := email.NewEmail()
	e.From = m.config.From
	e.To = m.config.To
	e.Subject = subject
	e.Text = []byte(text)

	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}

	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)
	if err := e.Send(addr, auth); err != nil {
		return errors.Wrapf(err, "failed to send email via %s", addr)
	}

	return nil
}
