package models

import "time"

// Notification is the persisted record of one attempt to deliver one event
// to one recipient over one channel. Status transitions are monotonic:
// PENDING -> SENT or PENDING -> FAILED, never reverse.
type Notification struct {
	ID             int        `json:"id"`
	RecipientID    int        `json:"recipient_id"`
	RecipientEmail string     `json:"recipient_email,omitempty"`
	Type           string     `json:"type"`
	Channel        Channel    `json:"channel"`
	Subject        string     `json:"subject,omitempty"`
	Content        string     `json:"content"`
	TemplateID     *int       `json:"template_id,omitempty"`
	Status         Status     `json:"status"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	RetryCount     int        `json:"retry_count"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
