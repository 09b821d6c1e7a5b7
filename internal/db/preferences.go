package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"notification-service/internal/models"
)

// ErrPreferenceNotFound is returned when a user has no preference row.
// The delivery path treats that as default-allow, not as a failure.
var ErrPreferenceNotFound = errors.New("preference not found")

// GetPreferenceByUserID looks up a user's channel preference.
func (d *DB) GetPreferenceByUserID(ctx context.Context, userID int) (models.Preference, error) {
	query := `
        SELECT id, user_id, email_enabled, sse_enabled, push_enabled,
               email_frequency, categories, created_at, updated_at
        FROM notification_preferences
        WHERE user_id = $1`
	var p models.Preference
	var categories []byte
	err := d.Pool.QueryRow(ctx, query, userID).Scan(
		&p.ID, &p.UserID, &p.EmailEnabled, &p.SSEEnabled, &p.PushEnabled,
		&p.EmailFrequency, &categories, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Preference{}, ErrPreferenceNotFound
		}
		return models.Preference{}, fmt.Errorf("failed to get preference for user %d: %w", userID, err)
	}
	if len(categories) > 0 {
		if err := json.Unmarshal(categories, &p.Categories); err != nil {
			return models.Preference{}, fmt.Errorf("failed to decode categories for user %d: %w", userID, err)
		}
	}
	return p, nil
}

// UpsertPreference creates or replaces a user's preference row.
func (d *DB) UpsertPreference(ctx context.Context, p *models.Preference) error {
	categories, err := json.Marshal(p.Categories)
	if err != nil {
		return fmt.Errorf("failed to encode categories: %w", err)
	}
	query := `
        INSERT INTO notification_preferences (
            user_id, email_enabled, sse_enabled, push_enabled, email_frequency, categories
        )
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (user_id) DO UPDATE
        SET email_enabled = EXCLUDED.email_enabled,
            sse_enabled = EXCLUDED.sse_enabled,
            push_enabled = EXCLUDED.push_enabled,
            email_frequency = EXCLUDED.email_frequency,
            categories = EXCLUDED.categories,
            updated_at = now()
        RETURNING id, created_at, updated_at`
	err = d.Pool.QueryRow(ctx, query,
		p.UserID, p.EmailEnabled, p.SSEEnabled, p.PushEnabled, p.EmailFrequency, categories,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert preference for user %d: %w", p.UserID, err)
	}
	return nil
}
