package models

// Channel is a delivery mechanism for a notification.
type Channel string

const (
	ChannelEmail    Channel = "EMAIL"
	ChannelRealtime Channel = "SSE"
	ChannelPush     Channel = "PUSH"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelRealtime, ChannelPush:
		return true
	}
	return false
}

// Status is the lifecycle state of a delivery record.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSent      Status = "SENT"
	StatusFailed    Status = "FAILED"
	StatusDelivered Status = "DELIVERED"
)
