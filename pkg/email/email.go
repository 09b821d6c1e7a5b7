// Package email sends HTML mail over SMTP.
package email

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer holds SMTP transport settings.
type Mailer struct {
	server   string
	port     int
	username string
	password string
	from     string
	fromName string
}

// New constructs a Mailer. from falls back to username when empty.
func New(server string, port int, username, password, from, fromName string) *Mailer {
	if from == "" {
		from = username
	}
	return &Mailer{
		server:   server,
		port:     port,
		username: username,
		password: password,
		from:     from,
		fromName: fromName,
	}
}

// Send delivers an HTML message to a single recipient.
func (m *Mailer) Send(to, subject, htmlBody string) error {
	if !strings.Contains(to, "@") {
		return fmt.Errorf("invalid email address: %s", to)
	}
	if m.server == "" || m.port == 0 || m.username == "" {
		return fmt.Errorf("missing SMTP configuration: server, port, or username is empty")
	}

	headers := []string{
		fmt.Sprintf("From: %s <%s>", m.fromName, m.from),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
	}
	msg := []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + htmlBody + "\r\n")

	auth := smtp.PlainAuth("", m.username, m.password, m.server)
	addr := fmt.Sprintf("%s:%d", m.server, m.port)
	if err := smtp.SendMail(addr, auth, m.from, []string{to}, msg); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}
