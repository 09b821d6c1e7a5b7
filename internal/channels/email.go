package channels

import (
	"context"
	"fmt"

	"notification-service/internal/models"
)

// Mailer is the mail transport collaborator.
type Mailer interface {
	Send(to, subject, htmlBody string) error
}

// EmailSender delivers notifications over SMTP.
type EmailSender struct {
	mailer Mailer
}

func NewEmailSender(mailer Mailer) *EmailSender {
	return &EmailSender{mailer: mailer}
}

func (s *EmailSender) Name() models.Channel { return models.ChannelEmail }

func (s *EmailSender) Send(_ context.Context, n models.Notification) error {
	if n.RecipientEmail == "" {
		return ErrNoRecipientAddress
	}
	if err := s.mailer.Send(n.RecipientEmail, n.Subject, n.Content); err != nil {
		return fmt.Errorf("email dispatch: %w", err)
	}
	return nil
}
