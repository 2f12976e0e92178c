package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/models"
)

// SaveTemplate inserts or updates a template definition keyed by its
// template key. The vendor template id is managed separately so a
// definition update never clears a prior sync.
func (d *Database) SaveTemplate(ctx context.Context, tmpl *models.MessageTemplate) error {
	variables, err := json.Marshal(tmpl.RequiredVariables)
	if err != nil {
		return fmt.Errorf("failed to encode required variables: %w", err)
	}

	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, upsertTemplateQuery,
			tmpl.Key,
			tmpl.DisplayName,
			tmpl.Category,
			tmpl.Applicability,
			tmpl.Body,
			string(variables),
			tmpl.ComplianceScore,
			tmpl.Approved,
			tmpl.Active,
		)
		if err != nil {
			return fmt.Errorf("failed to save template: %w", err)
		}
		return nil
	}, "save template")
}

// GetTemplate returns the template with the given key, or nil.
func (d *Database) GetTemplate(ctx context.Context, key string) (*models.MessageTemplate, error) {
	row := d.db.QueryRowContext(ctx, selectTemplateByKeyQuery, key)

	tmpl, err := scanTemplate(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tmpl, nil
}

// ListTemplates returns all templates, optionally restricted to active ones.
func (d *Database) ListTemplates(ctx context.Context, activeOnly bool) ([]models.MessageTemplate, error) {
	query := selectAllTemplatesQuery
	if activeOnly {
		query = selectActiveTemplatesQuery
	}

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var templates []models.MessageTemplate
	for rows.Next() {
		tmpl, err := scanTemplate(rows.Scan)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *tmpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate templates: %w", err)
	}

	return templates, nil
}

// SetVendorTemplateID records the vendor-side id after a template sync.
func (d *Database) SetVendorTemplateID(ctx context.Context, key, vendorTemplateID string) error {
	result, err := d.db.ExecContext(ctx, updateVendorTemplateIDQuery, vendorTemplateID, key)
	if err != nil {
		return fmt.Errorf("failed to set vendor template id: %w", err)
	}
	return requireRowAffected(result, "template", key)
}

func scanTemplate(scan func(dest ...interface{}) error) (*models.MessageTemplate, error) {
	var tmpl models.MessageTemplate
	var variables string

	err := scan(
		&tmpl.ID,
		&tmpl.Key,
		&tmpl.DisplayName,
		&tmpl.Category,
		&tmpl.Applicability,
		&tmpl.Body,
		&variables,
		&tmpl.ComplianceScore,
		&tmpl.Approved,
		&tmpl.Active,
		&tmpl.VendorTemplateID,
		&tmpl.CreatedAt,
		&tmpl.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	if variables != "" {
		if err := json.Unmarshal([]byte(variables), &tmpl.RequiredVariables); err != nil {
			return nil, fmt.Errorf("failed to decode required variables: %w", err)
		}
	}

	return &tmpl, nil
}
