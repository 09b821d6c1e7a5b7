package stream

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"notification-service/internal/models"
)

// Payload is a decoded flat event payload. Upstream producers write every
// field base64-encoded into the stream entry; bookkeeping keys ("init" and
// anything underscore-prefixed) are not part of the payload.
type Payload map[string]string

// DecodePayload converts raw stream entry values into a Payload. It fails on
// the first field that is not valid base64; callers treat that as a malformed
// message and drop it.
func DecodePayload(values map[string]any) (Payload, error) {
	p := make(Payload, len(values))
	for key, raw := range values {
		if key == "init" || strings.HasPrefix(key, "_") {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("field %q is not a string", key)
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("field %q is not valid base64: %w", key, err)
		}
		p[key] = string(decoded)
	}
	return p, nil
}

// Has reports whether the payload carries the key.
func (p Payload) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Get returns the raw string value for key, empty when absent.
func (p Payload) Get(key string) string { return p[key] }

// Int parses the field as an integer.
func (p Payload) Int(key string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(p[key]))
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", key, err)
	}
	return v, nil
}

// Float parses the field as a float.
func (p Payload) Float(key string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(p[key]), 64)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", key, err)
	}
	return v, nil
}

// IntSlice parses the field as a JSON array of integers.
func (p Payload) IntSlice(key string) ([]int, error) {
	var out []int
	if err := json.Unmarshal([]byte(p[key]), &out); err != nil {
		return nil, fmt.Errorf("field %q: %w", key, err)
	}
	return out, nil
}

// AssignedUsers parses the field as a JSON array of assigned users.
func (p Payload) AssignedUsers(key string) ([]models.AssignedUser, error) {
	var out []models.AssignedUser
	if err := json.Unmarshal([]byte(p[key]), &out); err != nil {
		return nil, fmt.Errorf("field %q: %w", key, err)
	}
	return out, nil
}
