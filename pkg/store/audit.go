package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/stagehand-run/stagehand/pkg/apierr"
	"github.com/stagehand-run/stagehand/pkg/models"
)

// RecordAuditLog appends a write-only audit trail entry. Its only caller
// is stage.Machine.Transition, which records permitted stage transitions
// (spec.md section 9, Open Question 4).
func (s *Store) RecordAuditLog(ctx context.Context, a models.AuditLog) error {
	buf, err := json.Marshal(a.ActionData)
	if err != nil {
		return apierr.Wrap(apierr.Internal, err)
	}

	const q = `
		INSERT INTO audit_logs (log_id, business_id, user_id, action_type, action_data)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)`

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	_, err = s.db.ExecContext(opCtx, q, uuid.NewString(), a.BusinessID, a.UserID, a.ActionType, buf)
	if err != nil {
		return apierr.Wrap(apierr.StoreFailure, err)
	}
	return nil
}

// ListAuditLogs returns a business's audit trail, newest first.
func (s *Store) ListAuditLogs(ctx context.Context, businessID string) ([]models.AuditLog, error) {
	const q = `
		SELECT log_id, business_id, COALESCE(user_id::text, ''), action_type, action_data, created_at
		FROM audit_logs WHERE business_id = $1 ORDER BY created_at DESC`

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(opCtx, q, businessID)
	if err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, err)
	}
	defer rows.Close()

	var out []models.AuditLog
	for rows.Next() {
		var a models.AuditLog
		var raw []byte
		if err := rows.Scan(&a.ID, &a.BusinessID, &a.UserID, &a.ActionType, &raw, &a.CreatedAt); err != nil {
			return nil, apierr.Wrap(apierr.StoreFailure, err)
		}
		if err := json.Unmarshal(raw, &a.ActionData); err != nil {
			return nil, apierr.Wrap(apierr.Internal, err)
		}
		out = append(out, a)
	}
	return out, apierr.Wrap(apierr.StoreFailure, rows.Err())
}
