// Package channels implements the delivery capability for each notification
// channel. Adding a channel means adding a Sender variant and registering it;
// the orchestrator never switches on channel kinds itself.
package channels

import (
	"context"
	"errors"

	"notification-service/internal/models"
)

var (
	// ErrNotImplemented marks a channel that is declared but has no
	// working transport yet.
	ErrNotImplemented = errors.New("channel not implemented")

	// ErrNoRecipientAddress is returned when an email dispatch has no
	// destination address on the record.
	ErrNoRecipientAddress = errors.New("recipient email is empty")

	// ErrUserNotConnected is returned when no live realtime connection
	// accepted the payload.
	ErrUserNotConnected = errors.New("user not connected")
)

// Sender delivers one notification over one channel. A nil error means the
// transport accepted the message.
type Sender interface {
	Name() models.Channel
	Send(ctx context.Context, n models.Notification) error
}

// Registry maps channels to their senders.
type Registry map[models.Channel]Sender

// NewRegistry builds a Registry from the given senders.
func NewRegistry(senders ...Sender) Registry {
	r := make(Registry, len(senders))
	for _, s := range senders {
		r[s.Name()] = s
	}
	return r
}

// For returns the sender for a channel, or false when none is registered.
func (r Registry) For(ch models.Channel) (Sender, bool) {
	s, ok := r[ch]
	return s, ok
}
