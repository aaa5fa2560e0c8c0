package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/stagehand-run/stagehand/pkg/apierr"
	"github.com/stagehand-run/stagehand/pkg/models"
)

// SetAIControl inserts an AI control setting at the given scope. Staff
// toggle these to pause/resume automated replies for one conversation, one
// user across all conversations, or an entire business (spec.md section 9,
// Open Question 3).
func (s *Store) SetAIControl(ctx context.Context, setting models.AIControlSetting) (models.AIControlSetting, error) {
	setting.ID = uuid.NewString()
	const q = `
		INSERT INTO ai_control_settings
			(setting_id, business_id, scope, conversation_id, user_id, paused, expires_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)
		RETURNING created_at`

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	err := s.db.QueryRowContext(opCtx, q,
		setting.ID, setting.BusinessID, setting.Scope, setting.ConversationID, setting.UserID,
		setting.Paused, setting.ExpiresAt,
	).Scan(&setting.CreatedAt)
	if err != nil {
		if isCheckViolation(err) {
			return models.AIControlSetting{}, apierr.New(apierr.InvalidRequest, "invalid ai control scope")
		}
		if isForeignKeyViolation(err) {
			return models.AIControlSetting{}, apierr.New(apierr.InvalidRequest, "unknown conversation_id")
		}
		return models.AIControlSetting{}, apierr.Wrap(apierr.StoreFailure, err)
	}
	return setting, nil
}

// ResolveAIControl finds the most specific applicable AI control setting for
// a conversation: conversation-scoped first, then user-scoped (matched
// against the business), then business-wide, each filtered to unexpired
// rows and taking the most recently created. Returns ErrNoControl when no
// setting applies at any scope, meaning the AI is not paused.
func (s *Store) ResolveAIControl(ctx context.Context, businessID, userID, conversationID string) (models.AIControlSetting, error) {
	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	queries := []struct {
		q    string
		args []any
	}{
		{
			q: `SELECT setting_id, business_id, scope, COALESCE(conversation_id::text, ''),
			           COALESCE(user_id::text, ''), paused, expires_at, created_at
			    FROM ai_control_settings
			    WHERE business_id = $1 AND scope = 'conversation' AND conversation_id = $2
			      AND (expires_at IS NULL OR expires_at > now())
			    ORDER BY created_at DESC LIMIT 1`,
			args: []any{businessID, conversationID},
		},
		{
			q: `SELECT setting_id, business_id, scope, COALESCE(conversation_id::text, ''),
			           COALESCE(user_id::text, ''), paused, expires_at, created_at
			    FROM ai_control_settings
			    WHERE business_id = $1 AND scope = 'user' AND user_id = $2
			      AND (expires_at IS NULL OR expires_at > now())
			    ORDER BY created_at DESC LIMIT 1`,
			args: []any{businessID, userID},
		},
		{
			q: `SELECT setting_id, business_id, scope, COALESCE(conversation_id::text, ''),
			           COALESCE(user_id::text, ''), paused, expires_at, created_at
			    FROM ai_control_settings
			    WHERE business_id = $1 AND scope = 'business'
			      AND (expires_at IS NULL OR expires_at > now())
			    ORDER BY created_at DESC LIMIT 1`,
			args: []any{businessID},
		},
	}

	for _, qry := range queries {
		var st models.AIControlSetting
		err := s.db.QueryRowContext(opCtx, qry.q, qry.args...).Scan(
			&st.ID, &st.BusinessID, &st.Scope, &st.ConversationID, &st.UserID,
			&st.Paused, &st.ExpiresAt, &st.CreatedAt,
		)
		if err == nil {
			return st, nil
		}
		if err != sql.ErrNoRows {
			return models.AIControlSetting{}, apierr.Wrap(apierr.StoreFailure, err)
		}
	}
	return models.AIControlSetting{}, ErrNoControl
}

// ErrNoControl indicates no AI control setting applies: the AI is not
// paused for this conversation/user/business.
var ErrNoControl = apierr.New(apierr.NotFound, "no ai control setting applies")
