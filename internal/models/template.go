package models

import "time"

// Template is a named message template. Name uniquely identifies a template;
// the delivery path treats templates as read-only.
type Template struct {
	ID        int            `json:"id"`
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	Subject   string         `json:"subject,omitempty"`
	Body      string         `json:"body"`
	Variables map[string]any `json:"variables,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
