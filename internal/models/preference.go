package models

import "time"

// EmailFrequency controls how often email notifications are delivered.
type EmailFrequency string

const (
	FrequencyImmediate EmailFrequency = "IMMEDIATE"
	FrequencyDaily     EmailFrequency = "DAILY"
	FrequencyWeekly    EmailFrequency = "WEEKLY"
)

// Preference holds a user's per-channel enablement flags. A user without a
// preference row gets every channel enabled (default-allow).
type Preference struct {
	ID             int             `json:"id"`
	UserID         int             `json:"user_id"`
	EmailEnabled   bool            `json:"email_enabled"`
	SSEEnabled     bool            `json:"sse_enabled"`
	PushEnabled    bool            `json:"push_enabled"`
	EmailFrequency EmailFrequency  `json:"email_frequency"`
	Categories     map[string]bool `json:"categories,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// EnabledFor reports whether the given channel is enabled by this preference.
func (p *Preference) EnabledFor(ch Channel) bool {
	if p == nil {
		return true
	}
	switch ch {
	case ChannelEmail:
		return p.EmailEnabled
	case ChannelRealtime:
		return p.SSEEnabled
	case ChannelPush:
		return p.PushEnabled
	}
	return false
}

// DefaultPreference returns the default-allow preference for a user.
func DefaultPreference(userID int) Preference {
	return Preference{
		UserID:         userID,
		EmailEnabled:   true,
		SSEEnabled:     true,
		PushEnabled:    true,
		EmailFrequency: FrequencyImmediate,
	}
}
