package notifier

import (
	"fmt"
	"net/mail"
	"net/smtp"
	"strings"

	"github.com/triptrack/triptrack-api/internal/config"
)

// SMTPNotifier sends mail through a plain SMTP relay.
type SMTPNotifier struct {
	host     string
	port     string
	username string
	password string
	from     string
}

func NewSMTPNotifier(cfg *config.Config) (*SMTPNotifier, error) {
	if cfg.SMTPHost == "" {
		return nil, fmt.Errorf("SMTP_HOST is not configured")
	}
	return &SMTPNotifier{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		from:     cfg.EmailFrom,
	}, nil
}

func (n *SMTPNotifier) Send(subject string, to []string, textBody, htmlBody string) error {
	if len(to) == 0 {
		return fmt.Errorf("no recipients")
	}

	envelopeFrom := n.from
	if addr, err := mail.ParseAddress(n.from); err == nil {
		envelopeFrom = addr.Address
	}

	msg := buildMessage(n.from, to, subject, textBody, htmlBody)

	var auth smtp.Auth
	if n.username != "" {
		auth = smtp.PlainAuth("", n.username, n.password, n.host)
	}
	return smtp.SendMail(n.host+":"+n.port, auth, envelopeFrom, to, msg)
}

func buildMessage(from string, to []string, subject, textBody, htmlBody string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")

	if htmlBody == "" {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(textBody)
		return []byte(b.String())
	}

	const boundary = "triptrack-alt"
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, textBody)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, htmlBody)
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}
