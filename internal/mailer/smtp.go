package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPConfig holds the connection details for SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends mail over a plain SMTP connection with AUTH PLAIN,
// mirroring the way a minimal ops tool talks to an internal relay (no TLS
// negotiation beyond what net/smtp.SendMail already does via STARTTLS on
// submission ports).
type SMTPMailer struct {
	cfg  SMTPConfig
	auth smtp.Auth
}

// NewSMTPMailer builds a mailer from cfg.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPMailer{cfg: cfg, auth: auth}
}

func (m *SMTPMailer) Send(ctx context.Context, subject string, recipients []string, body string) error {
	if len(recipients) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	msg := buildMessage(m.cfg.From, recipients, subject, body)

	if err := smtp.SendMail(addr, m.auth, m.cfg.From, recipients, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func buildMessage(from string, to []string, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.String()
}
