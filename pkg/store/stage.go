package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/stagehand-run/stagehand/pkg/apierr"
	"github.com/stagehand-run/stagehand/pkg/models"
)

// validTemplateIDs rejects legacy/foreign template identifiers up front:
// every referenced template_id must be a well-formed UUID owned by
// businessID, so a stage can never silently point at another tenant's
// template or at an identifier left over from a pre-UUID scheme.
func validTemplateIDs(ctx context.Context, tx queryRower, businessID string, templateIDs ...string) error {
	for _, id := range templateIDs {
		if _, err := uuid.Parse(id); err != nil {
			return apierr.Field("template_id", "template_id must be a valid identifier")
		}
		var owner string
		err := tx.QueryRowContext(ctx, `SELECT business_id FROM templates WHERE template_id = $1`, id).Scan(&owner)
		if err == sql.ErrNoRows {
			return apierr.New(apierr.InvalidRequest, "unknown template reference")
		}
		if err != nil {
			return apierr.Wrap(apierr.StoreFailure, err)
		}
		if owner != businessID {
			return apierr.New(apierr.InvalidRequest, "template belongs to a different business")
		}
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateStage inserts a new stage referencing three existing templates
// belonging to the same business.
func (s *Store) CreateStage(ctx context.Context, st models.Stage) (models.Stage, error) {
	if err := validTemplateIDs(ctx, s.db, st.BusinessID,
		st.StageSelectionTemplateID, st.DataExtractionTemplateID, st.ResponseGenerationTmplID); err != nil {
		return models.Stage{}, err
	}

	st.ID = uuid.NewString()
	const q = `
		INSERT INTO stages
			(stage_id, business_id, agent_id, stage_name, stage_description, stage_type,
			 stage_selection_template_id, data_extraction_template_id, response_generation_template_id)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	err := s.db.QueryRowContext(opCtx, q,
		st.ID, st.BusinessID, st.AgentID, st.StageName, st.StageDescription, st.StageType,
		st.StageSelectionTemplateID, st.DataExtractionTemplateID, st.ResponseGenerationTmplID,
	).Scan(&st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return models.Stage{}, apierr.New(apierr.InvalidRequest, "unknown business_id, agent_id, or template reference")
		}
		return models.Stage{}, apierr.Wrap(apierr.StoreFailure, err)
	}
	return st, nil
}

// UpdateStage updates a stage's fields. st.BusinessID must be the stage's
// existing owner; callers load it via GetStage before mutating.
func (s *Store) UpdateStage(ctx context.Context, st models.Stage) error {
	if err := validTemplateIDs(ctx, s.db, st.BusinessID,
		st.StageSelectionTemplateID, st.DataExtractionTemplateID, st.ResponseGenerationTmplID); err != nil {
		return err
	}

	const q = `
		UPDATE stages SET
			agent_id = NULLIF($2, ''), stage_name = $3, stage_description = $4, stage_type = $5,
			stage_selection_template_id = $6, data_extraction_template_id = $7,
			response_generation_template_id = $8, updated_at = now()
		WHERE stage_id = $1`

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(opCtx, q,
		st.ID, st.AgentID, st.StageName, st.StageDescription, st.StageType,
		st.StageSelectionTemplateID, st.DataExtractionTemplateID, st.ResponseGenerationTmplID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apierr.New(apierr.InvalidRequest, "unknown agent_id or template reference")
		}
		return apierr.Wrap(apierr.StoreFailure, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierr.Wrap(apierr.StoreFailure, err)
	}
	if n == 0 {
		return apierr.New(apierr.NotFound, "stage not found")
	}
	return nil
}

// GetStage fetches a stage by ID.
func (s *Store) GetStage(ctx context.Context, id string) (models.Stage, error) {
	const q = `
		SELECT stage_id, business_id, COALESCE(agent_id::text, ''), stage_name, stage_description,
		       stage_type, stage_selection_template_id, data_extraction_template_id,
		       response_generation_template_id, created_at, updated_at
		FROM stages WHERE stage_id = $1`

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	var st models.Stage
	err := s.db.QueryRowContext(opCtx, q, id).Scan(
		&st.ID, &st.BusinessID, &st.AgentID, &st.StageName, &st.StageDescription,
		&st.StageType, &st.StageSelectionTemplateID, &st.DataExtractionTemplateID,
		&st.ResponseGenerationTmplID, &st.CreatedAt, &st.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return models.Stage{}, apierr.New(apierr.NotFound, "stage not found")
	}
	if err != nil {
		return models.Stage{}, apierr.Wrap(apierr.StoreFailure, err)
	}
	return st, nil
}

// ListStages returns every stage owned by a business.
func (s *Store) ListStages(ctx context.Context, businessID string) ([]models.Stage, error) {
	const q = `
		SELECT stage_id, business_id, COALESCE(agent_id::text, ''), stage_name, stage_description,
		       stage_type, stage_selection_template_id, data_extraction_template_id,
		       response_generation_template_id, created_at, updated_at
		FROM stages WHERE business_id = $1 ORDER BY created_at`

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(opCtx, q, businessID)
	if err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, err)
	}
	defer rows.Close()

	var out []models.Stage
	for rows.Next() {
		var st models.Stage
		if err := rows.Scan(
			&st.ID, &st.BusinessID, &st.AgentID, &st.StageName, &st.StageDescription,
			&st.StageType, &st.StageSelectionTemplateID, &st.DataExtractionTemplateID,
			&st.ResponseGenerationTmplID, &st.CreatedAt, &st.UpdatedAt,
		); err != nil {
			return nil, apierr.Wrap(apierr.StoreFailure, err)
		}
		out = append(out, st)
	}
	return out, apierr.Wrap(apierr.StoreFailure, rows.Err())
}

// DeleteStage removes a stage. conversations.current_stage_id has no
// ON DELETE action, so deleting a stage that a conversation still points
// at fails with a foreign-key violation, surfaced as Conflict.
func (s *Store) DeleteStage(ctx context.Context, id string) error {
	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(opCtx, `DELETE FROM stages WHERE stage_id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apierr.New(apierr.Conflict, "stage is referenced by a conversation or transition")
		}
		return apierr.Wrap(apierr.StoreFailure, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierr.Wrap(apierr.StoreFailure, err)
	}
	if n == 0 {
		return apierr.New(apierr.NotFound, "stage not found")
	}
	return nil
}

// PutStageTransition upserts an explicit allowed transition between two
// stages of the same business (spec.md section 9, Open Question 4).
func (s *Store) PutStageTransition(ctx context.Context, t models.StageTransition) error {
	const q = `
		INSERT INTO stage_transitions (business_id, from_stage_id, to_stage_id, condition)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (from_stage_id, to_stage_id) DO UPDATE SET condition = EXCLUDED.condition`

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(opCtx, q, t.BusinessID, t.FromStageID, t.ToStageID, t.Condition)
	if err != nil {
		if isCheckViolation(err) {
			return apierr.New(apierr.InvalidRequest, "a stage cannot transition to itself")
		}
		if isForeignKeyViolation(err) {
			return apierr.New(apierr.InvalidRequest, "unknown stage reference")
		}
		return apierr.Wrap(apierr.StoreFailure, err)
	}
	return nil
}

// ListStageTransitions returns the allowed destination stages configured
// for fromStageID. An empty result means the business has not restricted
// transitions out of that stage (spec.md section 9, Open Question 4): the
// stage machine then permits any stage in the business as the next one.
func (s *Store) ListStageTransitions(ctx context.Context, fromStageID string) ([]models.StageTransition, error) {
	const q = `SELECT business_id, from_stage_id, to_stage_id, condition FROM stage_transitions WHERE from_stage_id = $1`

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(opCtx, q, fromStageID)
	if err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, err)
	}
	defer rows.Close()

	var out []models.StageTransition
	for rows.Next() {
		var t models.StageTransition
		if err := rows.Scan(&t.BusinessID, &t.FromStageID, &t.ToStageID, &t.Condition); err != nil {
			return nil, apierr.Wrap(apierr.StoreFailure, err)
		}
		out = append(out, t)
	}
	return out, apierr.Wrap(apierr.StoreFailure, rows.Err())
}
