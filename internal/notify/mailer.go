// Package notify delivers operational messages: transactional email over
// SMTP and JSON webhooks for chat-style integrations.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPConfig holds the outbound mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// SMTPMailer sends mail through a plain SMTP relay.
type SMTPMailer struct {
	cfg SMTPConfig
}

// NewSMTPMailer constructs a mailer.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send delivers one message. The context bounds the whole exchange only
// coarsely: smtp.SendMail has no context support, so cancellation is
// checked before dialing.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	payload := buildMessage(m.cfg.From, msg)
	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{msg.To}, payload); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func buildMessage(from string, msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// PasswordResetMessage renders the reset email. The link carries the raw
// token; only its hash is ever persisted.
func PasswordResetMessage(to, resetURL string) Message {
	return Message{
		To:      to,
		Subject: "Reset your password",
		Body: "A password reset was requested for your account.\n\n" +
			"Open the link below to choose a new password. The link expires in one hour.\n\n" +
			resetURL + "\n\n" +
			"If you did not request this, you can ignore this message.",
	}
}

// InvitationMessage renders the invite email.
func InvitationMessage(to, acceptURL string) Message {
	return Message{
		To:      to,
		Subject: "You have been invited",
		Body: "You have been invited to join the workspace.\n\n" +
			"Open the link below to accept the invitation and set up your account. The link expires in seven days.\n\n" +
			acceptURL + "\n",
	}
}
