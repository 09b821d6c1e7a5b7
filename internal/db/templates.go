package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"notification-service/internal/models"
)

// ErrTemplateNotFound is returned when no template exists for a name.
var ErrTemplateNotFound = errors.New("template not found")

// GetTemplateByName looks up a template by its unique name.
func (d *DB) GetTemplateByName(ctx context.Context, name string) (models.Template, error) {
	query := `
        SELECT id, name, type, subject, body, variables, created_at, updated_at
        FROM notification_templates
        WHERE name = $1`
	var t models.Template
	var variables []byte
	err := d.Pool.QueryRow(ctx, query, name).Scan(
		&t.ID, &t.Name, &t.Type, &t.Subject, &t.Body, &variables, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Template{}, ErrTemplateNotFound
		}
		return models.Template{}, fmt.Errorf("failed to get template %q: %w", name, err)
	}
	if len(variables) > 0 {
		if err := json.Unmarshal(variables, &t.Variables); err != nil {
			return models.Template{}, fmt.Errorf("failed to decode variables for template %q: %w", name, err)
		}
	}
	return t, nil
}

// CreateTemplate inserts a new template. Names are unique.
func (d *DB) CreateTemplate(ctx context.Context, t *models.Template) error {
	variables, err := json.Marshal(t.Variables)
	if err != nil {
		return fmt.Errorf("failed to encode variables: %w", err)
	}
	query := `
        INSERT INTO notification_templates (name, type, subject, body, variables)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at, updated_at`
	err = d.Pool.QueryRow(ctx, query, t.Name, t.Type, t.Subject, t.Body, variables).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create template %q: %w", t.Name, err)
	}
	return nil
}

// UpdateTemplate replaces the mutable fields of a template identified by name.
func (d *DB) UpdateTemplate(ctx context.Context, t *models.Template) error {
	variables, err := json.Marshal(t.Variables)
	if err != nil {
		return fmt.Errorf("failed to encode variables: %w", err)
	}
	query := `
        UPDATE notification_templates
        SET type = $1, subject = $2, body = $3, variables = $4, updated_at = now()
        WHERE name = $5`
	result, err := d.Pool.Exec(ctx, query, t.Type, t.Subject, t.Body, variables, t.Name)
	if err != nil {
		return fmt.Errorf("failed to update template %q: %w", t.Name, err)
	}
	if result.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

// DeleteTemplate removes a template by name.
func (d *DB) DeleteTemplate(ctx context.Context, name string) error {
	result, err := d.Pool.Exec(ctx, `DELETE FROM notification_templates WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete template %q: %w", name, err)
	}
	if result.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

// ListTemplates returns all templates ordered by name.
func (d *DB) ListTemplates(ctx context.Context, limit, offset int) ([]models.Template, error) {
	query := `
        SELECT id, name, type, subject, body, variables, created_at, updated_at
        FROM notification_templates
        ORDER BY name
        LIMIT $1 OFFSET $2`
	rows, err := d.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []models.Template
	for rows.Next() {
		var t models.Template
		var variables []byte
		if err := rows.Scan(&t.ID, &t.Name, &t.Type, &t.Subject, &t.Body, &variables, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		if len(variables) > 0 {
			if err := json.Unmarshal(variables, &t.Variables); err != nil {
				return nil, fmt.Errorf("failed to decode variables for template %q: %w", t.Name, err)
			}
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}
