// Package mailer provides the outbound mail adapter.
package mailer

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SMTPMailer delivers HTML mail through an SMTP submission endpoint with
// PLAIN auth. STARTTLS is negotiated when the server offers it.
type SMTPMailer struct {
	address  string
	username string
	password string
	from     string
	logger   *zap.Logger
	now      func() time.Time
	send     func(addr string, auth sasl.Client, from string, to []string, body *strings.Reader) error
}

// NewSMTPMailer creates an SMTP mailer. from is the envelope and header
// sender address.
func NewSMTPMailer(address, username, password, from string, logger *zap.Logger) *SMTPMailer {
	return &SMTPMailer{
		address:  address,
		username: username,
		password: password,
		from:     from,
		logger:   logger,
		now:      time.Now,
		send: func(addr string, auth sasl.Client, from string, to []string, body *strings.Reader) error {
			return smtp.SendMail(addr, auth, from, to, body)
		},
	}
}

// Deliver sends one HTML message.
func (m *SMTPMailer) Deliver(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw := m.buildMessage(to, subject, htmlBody)
	auth := sasl.NewPlainClient("", m.username, m.password)

	if err := m.send(m.address, auth, m.from, []string{to}, strings.NewReader(raw)); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}

	m.logger.Debug("Mail delivered",
		zap.String("to", to), zap.String("subject", subject))
	return nil
}

// buildMessage assembles the RFC 5322 message with CRLF line endings.
func (m *SMTPMailer) buildMessage(to, subject, htmlBody string) string {
	var b strings.Builder
	write := func(format string, args ...any) {
		b.WriteString(fmt.Sprintf(format, args...))
		b.WriteString("\r\n")
	}

	write("From: %s", m.from)
	write("To: %s", to)
	write("Subject: %s", mime.QEncoding.Encode("utf-8", subject))
	write("Date: %s", m.now().Format(time.RFC1123Z))
	write("Message-ID: <%s@%s>", uuid.NewString(), messageIDDomain(m.from))
	write("MIME-Version: 1.0")
	write("Content-Type: text/html; charset=UTF-8")
	write("")
	b.WriteString(htmlBody)
	b.WriteString("\r\n")
	return b.String()
}

func messageIDDomain(from string) string {
	if _, domain, ok := strings.Cut(from, "@"); ok && domain != "" {
		return strings.Trim(domain, "<> ")
	}
	return "localhost"
}
