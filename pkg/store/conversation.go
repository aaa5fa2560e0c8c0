package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/stagehand-run/stagehand/pkg/apierr"
	"github.com/stagehand-run/stagehand/pkg/models"
)

// OpenOrResumeConversation returns the active conversation for
// (businessID, userID, sessionID), creating one if none exists. This is the
// entry point of the orchestrator's prepare phase (spec.md section 4.4).
func (s *Store) OpenOrResumeConversation(ctx context.Context, businessID, userID, agentID, sessionID string) (models.Conversation, error) {
	var out models.Conversation
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		const find = `
			SELECT conversation_id, business_id, user_id, COALESCE(agent_id::text, ''),
			       COALESCE(current_stage_id::text, ''), session_id, start_time, last_updated,
			       status, conversation_summary, COALESCE(llm_call_id::text, '')
			FROM conversations
			WHERE business_id = $1 AND user_id = $2 AND session_id = $3 AND status IN ('active', 'paused')
			ORDER BY start_time DESC LIMIT 1 FOR UPDATE`

		c, err := scanConversationRow(tx.QueryRowContext(ctx, find, businessID, userID, sessionID))
		if err == nil {
			out = c
			return nil
		}
		if err != sql.ErrNoRows {
			return apierr.Wrap(apierr.StoreFailure, err)
		}

		const create = `
			INSERT INTO conversations (conversation_id, business_id, user_id, agent_id, session_id)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5)
			RETURNING conversation_id, business_id, user_id, COALESCE(agent_id::text, ''),
			          COALESCE(current_stage_id::text, ''), session_id, start_time, last_updated,
			          status, conversation_summary, COALESCE(llm_call_id::text, '')`
		id := uuid.NewString()
		c, err = scanConversationRow(tx.QueryRowContext(ctx, create, id, businessID, userID, agentID, sessionID))
		if err != nil {
			if isForeignKeyViolation(err) {
				return apierr.New(apierr.InvalidRequest, "unknown business_id, user_id, or agent_id")
			}
			return apierr.Wrap(apierr.StoreFailure, err)
		}
		out = c
		return nil
	})
	return out, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversationRow(row rowScanner) (models.Conversation, error) {
	var c models.Conversation
	var summary sql.NullString
	err := row.Scan(
		&c.ID, &c.BusinessID, &c.UserID, &c.AgentID, &c.CurrentStageID, &c.SessionID,
		&c.StartTime, &c.LastUpdated, &c.Status, &summary, &c.LastLLMCallID,
	)
	if err != nil {
		return models.Conversation{}, err
	}
	if summary.Valid && summary.String != "" {
		var sm models.ConversationSummary
		if jerr := json.Unmarshal([]byte(summary.String), &sm); jerr == nil {
			c.Summary = &sm
		}
	}
	return c, nil
}

// GetConversation fetches a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id string) (models.Conversation, error) {
	const q = `
		SELECT conversation_id, business_id, user_id, COALESCE(agent_id::text, ''),
		       COALESCE(current_stage_id::text, ''), session_id, start_time, last_updated,
		       status, conversation_summary, COALESCE(llm_call_id::text, '')
		FROM conversations WHERE conversation_id = $1`

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	c, err := scanConversationRow(s.db.QueryRowContext(opCtx, q, id))
	if err == sql.ErrNoRows {
		return models.Conversation{}, apierr.New(apierr.NotFound, "conversation not found")
	}
	if err != nil {
		return models.Conversation{}, apierr.Wrap(apierr.StoreFailure, err)
	}
	return c, nil
}

// ListConversationsForUser returns every conversation a user has had with a
// business, newest first (spec.md section 6.1, GET /conversations/{user_id}).
func (s *Store) ListConversationsForUser(ctx context.Context, businessID, userID string) ([]models.Conversation, error) {
	const q = `
		SELECT conversation_id, business_id, user_id, COALESCE(agent_id::text, ''),
		       COALESCE(current_stage_id::text, ''), session_id, start_time, last_updated,
		       status, conversation_summary, COALESCE(llm_call_id::text, '')
		FROM conversations WHERE business_id = $1 AND user_id = $2 ORDER BY start_time DESC`

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(opCtx, q, businessID, userID)
	if err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, err)
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		c, err := scanConversationRow(rows)
		if err != nil {
			return nil, apierr.Wrap(apierr.StoreFailure, err)
		}
		out = append(out, c)
	}
	return out, apierr.Wrap(apierr.StoreFailure, rows.Err())
}

// AppendMessage records one transcript turn. created_at uses the schema's
// clock_timestamp() default so consecutive assistant messages within one
// transaction still get strictly increasing timestamps.
func (s *Store) AppendMessage(ctx context.Context, m models.Message) (models.Message, error) {
	m.ID = uuid.NewString()
	const q = `
		INSERT INTO messages (message_id, conversation_id, message_content, sender_type)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	err := s.db.QueryRowContext(opCtx, q, m.ID, m.ConversationID, m.Content, m.SenderType).Scan(&m.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return models.Message{}, apierr.New(apierr.NotFound, "conversation not found")
		}
		return models.Message{}, apierr.Wrap(apierr.StoreFailure, err)
	}

	if _, err := s.db.ExecContext(opCtx, `UPDATE conversations SET last_updated = now() WHERE conversation_id = $1`, m.ConversationID); err != nil {
		return models.Message{}, apierr.Wrap(apierr.StoreFailure, err)
	}
	return m, nil
}

// ListMessages returns a conversation's transcript, oldest first, optionally
// limited to the most recent n (n <= 0 means unlimited) — backs the
// "last_10_messages"/"last_N_messages" template variables.
func (s *Store) ListMessages(ctx context.Context, conversationID string, n int) ([]models.Message, error) {
	q := `SELECT message_id, conversation_id, message_content, sender_type, created_at
	      FROM messages WHERE conversation_id = $1 ORDER BY created_at DESC`
	args := []any{conversationID}
	if n > 0 {
		q += ` LIMIT $2`
		args = append(args, n)
	}

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(opCtx, q, args...)
	if err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Content, &m.SenderType, &m.CreatedAt); err != nil {
			return nil, apierr.Wrap(apierr.StoreFailure, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, err)
	}
	// reverse into chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// SetConversationStage advances current_stage_id and records the LLM call
// that produced the decision.
func (s *Store) SetConversationStage(ctx context.Context, conversationID, stageID, llmCallID string) error {
	const q = `
		UPDATE conversations SET current_stage_id = $2, llm_call_id = NULLIF($3, ''), last_updated = now()
		WHERE conversation_id = $1`

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(opCtx, q, conversationID, stageID, llmCallID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apierr.New(apierr.InvalidRequest, "unknown stage_id")
		}
		return apierr.Wrap(apierr.StoreFailure, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierr.Wrap(apierr.StoreFailure, err)
	}
	if n == 0 {
		return apierr.New(apierr.NotFound, "conversation not found")
	}
	return nil
}

// SetConversationStatus updates lifecycle status (active/paused/completed/error).
func (s *Store) SetConversationStatus(ctx context.Context, conversationID string, status models.ConversationStatus) error {
	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(opCtx,
		`UPDATE conversations SET status = $2, last_updated = now() WHERE conversation_id = $1`,
		conversationID, status)
	if err != nil {
		return apierr.Wrap(apierr.StoreFailure, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierr.Wrap(apierr.StoreFailure, err)
	}
	if n == 0 {
		return apierr.New(apierr.NotFound, "conversation not found")
	}
	return nil
}

// SetConversationSummary stores the structured wrap-up produced when a
// conversation completes.
func (s *Store) SetConversationSummary(ctx context.Context, conversationID string, summary models.ConversationSummary) error {
	buf, err := json.Marshal(summary)
	if err != nil {
		return apierr.Wrap(apierr.Internal, err)
	}

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(opCtx,
		`UPDATE conversations SET conversation_summary = $2, last_updated = now() WHERE conversation_id = $1`,
		conversationID, buf)
	if err != nil {
		return apierr.Wrap(apierr.StoreFailure, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierr.Wrap(apierr.StoreFailure, err)
	}
	if n == 0 {
		return apierr.New(apierr.NotFound, "conversation not found")
	}
	return nil
}

// RecordExtractedData stores the output of a successful extraction phase.
func (s *Store) RecordExtractedData(ctx context.Context, e models.ExtractedData) (models.ExtractedData, error) {
	e.ID = uuid.NewString()
	buf, err := json.Marshal(e.Data)
	if err != nil {
		return models.ExtractedData{}, apierr.Wrap(apierr.Internal, err)
	}

	const q = `
		INSERT INTO extracted_data (extraction_id, conversation_id, stage_id, data_type, extracted_data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	err = s.db.QueryRowContext(opCtx, q, e.ID, e.ConversationID, e.StageID, e.DataType, buf).Scan(&e.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return models.ExtractedData{}, apierr.New(apierr.InvalidRequest, "unknown conversation_id or stage_id")
		}
		return models.ExtractedData{}, apierr.Wrap(apierr.StoreFailure, err)
	}
	return e, nil
}

// ListExtractedData returns every extraction recorded for a conversation,
// oldest first, backing the "fields" template variable.
func (s *Store) ListExtractedData(ctx context.Context, conversationID string) ([]models.ExtractedData, error) {
	const q = `
		SELECT extraction_id, conversation_id, stage_id, data_type, extracted_data, created_at
		FROM extracted_data WHERE conversation_id = $1 ORDER BY created_at`

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(opCtx, q, conversationID)
	if err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, err)
	}
	defer rows.Close()

	var out []models.ExtractedData
	for rows.Next() {
		var e models.ExtractedData
		var raw []byte
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.StageID, &e.DataType, &raw, &e.CreatedAt); err != nil {
			return nil, apierr.Wrap(apierr.StoreFailure, err)
		}
		if err := json.Unmarshal(raw, &e.Data); err != nil {
			return nil, apierr.Wrap(apierr.Internal, err)
		}
		out = append(out, e)
	}
	return out, apierr.Wrap(apierr.StoreFailure, rows.Err())
}
