package channels

import (
	"context"
	"fmt"

	"notification-service/internal/models"
)

// PushSender is the mobile push channel. No provider is wired yet, so every
// send fails explicitly rather than silently succeeding.
type PushSender struct{}

func NewPushSender() *PushSender { return &PushSender{} }

func (s *PushSender) Name() models.Channel { return models.ChannelPush }

func (s *PushSender) Send(_ context.Context, _ models.Notification) error {
	return fmt.Errorf("push channel: %w", ErrNotImplemented)
}
