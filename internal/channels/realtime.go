package channels

import (
	"context"

	"notification-service/internal/models"
)

// Unicaster pushes payloads to a user's live connections.
type Unicaster interface {
	SendToUser(userID int, event string, payload any) bool
}

// RealtimeSender delivers notifications over the push connection registry.
// Delivery succeeds iff at least one live connection accepted the payload;
// there is no queuing for disconnected users.
type RealtimeSender struct {
	hub Unicaster
}

func NewRealtimeSender(hub Unicaster) *RealtimeSender {
	return &RealtimeSender{hub: hub}
}

func (s *RealtimeSender) Name() models.Channel { return models.ChannelRealtime }

func (s *RealtimeSender) Send(_ context.Context, n models.Notification) error {
	payload := map[string]any{
		"id":      n.ID,
		"type":    n.Type,
		"subject": n.Subject,
		"content": n.Content,
	}
	if !s.hub.SendToUser(n.RecipientID, n.Type, payload) {
		return ErrUserNotConnected
	}
	return nil
}
