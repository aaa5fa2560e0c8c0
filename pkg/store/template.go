package store

import (
	"context"
	"database/sql"
	"regexp"

	"github.com/google/uuid"

	"github.com/stagehand-run/stagehand/pkg/apierr"
	"github.com/stagehand-run/stagehand/pkg/models"
)

// variableRefPattern matches both {name} and {{name}} placeholder forms,
// mirroring pkg/template's discovery regex so usage rows stay consistent
// with what the engine actually resolves.
var variableRefPattern = regexp.MustCompile(`\{\{?\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}?\}`)

func discoverVariableNames(texts ...string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, t := range texts {
		for _, m := range variableRefPattern.FindAllStringSubmatch(t, -1) {
			name := m[1]
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}

// CreateTemplate inserts a template and rebuilds its variable-usage index.
func (s *Store) CreateTemplate(ctx context.Context, t models.Template) (models.Template, error) {
	t.ID = uuid.NewString()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		const q = `
			INSERT INTO templates
				(template_id, business_id, template_name, template_type, content, system_prompt)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at, updated_at`
		if err := tx.QueryRowContext(ctx, q,
			t.ID, t.BusinessID, t.TemplateName, t.TemplateType, t.Content, t.SystemPrompt,
		).Scan(&t.CreatedAt, &t.UpdatedAt); err != nil {
			if isCheckViolation(err) {
				return apierr.Field("template_type", "invalid template type")
			}
			if isForeignKeyViolation(err) {
				return apierr.New(apierr.InvalidRequest, "unknown business_id")
			}
			return apierr.Wrap(apierr.StoreFailure, err)
		}
		return rescanVariableUsage(ctx, tx, t.ID, t.Content, t.SystemPrompt)
	})
	if err != nil {
		return models.Template{}, err
	}
	return t, nil
}

// UpdateTemplate updates a template's body and rebuilds its variable-usage
// index in the same transaction, so usage tracking can never go stale.
func (s *Store) UpdateTemplate(ctx context.Context, t models.Template) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		const q = `
			UPDATE templates SET
				template_name = $2, content = $3, system_prompt = $4, updated_at = now()
			WHERE template_id = $1`
		res, err := tx.ExecContext(ctx, q, t.ID, t.TemplateName, t.Content, t.SystemPrompt)
		if err != nil {
			return apierr.Wrap(apierr.StoreFailure, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return apierr.Wrap(apierr.StoreFailure, err)
		}
		if n == 0 {
			return apierr.New(apierr.NotFound, "template not found")
		}
		return rescanVariableUsage(ctx, tx, t.ID, t.Content, t.SystemPrompt)
	})
}

// rescanVariableUsage discovers variable references in content/systemPrompt,
// ensures each has a template_variables row (creating unknown-category
// placeholders on first sight), and replaces template_variable_usage rows
// for templateID to match exactly.
func rescanVariableUsage(ctx context.Context, tx *sql.Tx, templateID, content, systemPrompt string) error {
	names := discoverVariableNames(content, systemPrompt)

	if _, err := tx.ExecContext(ctx, `DELETE FROM template_variable_usage WHERE template_id = $1`, templateID); err != nil {
		return apierr.Wrap(apierr.StoreFailure, err)
	}

	for _, name := range names {
		var varID string
		err := tx.QueryRowContext(ctx, `SELECT variable_id FROM template_variables WHERE variable_name = $1`, name).Scan(&varID)
		switch {
		case err == sql.ErrNoRows:
			varID = uuid.NewString()
			_, err = tx.ExecContext(ctx, `
				INSERT INTO template_variables (variable_id, variable_name, category)
				VALUES ($1, $2, $3)`, varID, name, models.CategoryUnknown)
			if err != nil {
				return apierr.Wrap(apierr.StoreFailure, err)
			}
		case err != nil:
			return apierr.Wrap(apierr.StoreFailure, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO template_variable_usage (template_id, variable_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, templateID, varID); err != nil {
			return apierr.Wrap(apierr.StoreFailure, err)
		}
	}
	return nil
}

// GetTemplate fetches a template by ID.
func (s *Store) GetTemplate(ctx context.Context, id string) (models.Template, error) {
	const q = `
		SELECT template_id, business_id, template_name, template_type, content,
		       system_prompt, created_at, updated_at
		FROM templates WHERE template_id = $1`

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	var t models.Template
	err := s.db.QueryRowContext(opCtx, q, id).Scan(
		&t.ID, &t.BusinessID, &t.TemplateName, &t.TemplateType, &t.Content,
		&t.SystemPrompt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return models.Template{}, apierr.New(apierr.NotFound, "template not found")
	}
	if err != nil {
		return models.Template{}, apierr.Wrap(apierr.StoreFailure, err)
	}
	return t, nil
}

// ListTemplates returns every template owned by a business, optionally
// filtered by type.
func (s *Store) ListTemplates(ctx context.Context, businessID string, templateType models.TemplateType) ([]models.Template, error) {
	q := `
		SELECT template_id, business_id, template_name, template_type, content,
		       system_prompt, created_at, updated_at
		FROM templates WHERE business_id = $1`
	args := []any{businessID}
	if templateType != "" {
		q += ` AND template_type = $2`
		args = append(args, templateType)
	}
	q += ` ORDER BY created_at`

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(opCtx, q, args...)
	if err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, err)
	}
	defer rows.Close()

	var out []models.Template
	for rows.Next() {
		var t models.Template
		if err := rows.Scan(
			&t.ID, &t.BusinessID, &t.TemplateName, &t.TemplateType, &t.Content,
			&t.SystemPrompt, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, apierr.Wrap(apierr.StoreFailure, err)
		}
		out = append(out, t)
	}
	return out, apierr.Wrap(apierr.StoreFailure, rows.Err())
}

// DeleteTemplate removes a template, refusing when a stage still references
// it (foreign key without cascade).
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(opCtx, `DELETE FROM templates WHERE template_id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apierr.New(apierr.Conflict, "template is referenced by a stage")
		}
		return apierr.Wrap(apierr.StoreFailure, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierr.Wrap(apierr.StoreFailure, err)
	}
	if n == 0 {
		return apierr.New(apierr.NotFound, "template not found")
	}
	return nil
}

// ListVariables returns the full variable registry, for admin display.
func (s *Store) ListVariables(ctx context.Context) ([]models.TemplateVariable, error) {
	const q = `
		SELECT variable_id, variable_name, description, default_value, example, category, is_dynamic
		FROM template_variables ORDER BY variable_name`

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(opCtx, q)
	if err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, err)
	}
	defer rows.Close()

	var out []models.TemplateVariable
	for rows.Next() {
		var v models.TemplateVariable
		if err := rows.Scan(&v.ID, &v.Name, &v.Description, &v.DefaultValue, &v.Example, &v.Category, &v.IsDynamic); err != nil {
			return nil, apierr.Wrap(apierr.StoreFailure, err)
		}
		out = append(out, v)
	}
	return out, apierr.Wrap(apierr.StoreFailure, rows.Err())
}
