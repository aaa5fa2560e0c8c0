package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/stagehand-run/stagehand/pkg/apierr"
	"github.com/stagehand-run/stagehand/pkg/models"
)

// RecordLLMCall persists an audit row for one call to the language model.
// pkg/orchestrator's call helper calls this unconditionally — on success
// and on failure — so every prompt sent to a provider is traceable
// (spec.md section 4.6).
func (s *Store) RecordLLMCall(ctx context.Context, c models.LLMCall) (models.LLMCall, error) {
	c.ID = uuid.NewString()
	const q = `
		INSERT INTO llm_calls
			(call_id, business_id, input_text, response, system_prompt, call_type, error_class)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING "timestamp"`

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	err := s.db.QueryRowContext(opCtx, q,
		c.ID, c.BusinessID, c.InputText, c.Response, c.SystemPrompt, c.CallType, c.ErrorClass,
	).Scan(&c.Timestamp)
	if err != nil {
		return models.LLMCall{}, apierr.Wrap(apierr.StoreFailure, err)
	}
	return c, nil
}

// GetLLMCall fetches one recorded call, used by admin/debug surfaces.
func (s *Store) GetLLMCall(ctx context.Context, id string) (models.LLMCall, error) {
	const q = `
		SELECT call_id, business_id, input_text, response, system_prompt, call_type, error_class, "timestamp"
		FROM llm_calls WHERE call_id = $1`

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	var c models.LLMCall
	err := s.db.QueryRowContext(opCtx, q, id).Scan(
		&c.ID, &c.BusinessID, &c.InputText, &c.Response, &c.SystemPrompt, &c.CallType, &c.ErrorClass, &c.Timestamp,
	)
	if IsNotFound(err) {
		return models.LLMCall{}, apierr.New(apierr.NotFound, "llm call not found")
	}
	if err != nil {
		return models.LLMCall{}, apierr.Wrap(apierr.StoreFailure, err)
	}
	return c, nil
}
