package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/stagehand-run/stagehand/pkg/apierr"
)

// TryAcquireLease attempts to claim the write lease for a conversation,
// following the teacher's pkg/queue/worker.go#claimNextSession pattern:
// SELECT ... FOR UPDATE SKIP LOCKED so concurrent holders never block each
// other, only one wins. Returns apierr.Busy when the lease is currently
// held by someone else and not yet expired (spec.md section 5).
func (s *Store) TryAcquireLease(ctx context.Context, conversationID, holderID string, ttl time.Duration) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := timeNow()
		var existingHolder string
		var expiresAt time.Time
		err := tx.QueryRowContext(ctx, `
			SELECT holder_id, expires_at FROM conversation_leases
			WHERE conversation_id = $1 FOR UPDATE SKIP LOCKED`, conversationID,
		).Scan(&existingHolder, &expiresAt)

		switch {
		case err == sql.ErrNoRows:
			// Either no lease row exists yet, or another transaction holds the
			// row lock (SKIP LOCKED hid it from us) — in the latter case the
			// holder is actively working the conversation right now.
			var count int
			if cerr := tx.QueryRowContext(ctx, `SELECT count(*) FROM conversation_leases WHERE conversation_id = $1`, conversationID).Scan(&count); cerr != nil {
				return apierr.Wrap(apierr.StoreFailure, cerr)
			}
			if count > 0 {
				return apierr.New(apierr.Busy, "conversation is currently being processed")
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO conversation_leases (conversation_id, holder_id, acquired_at, expires_at)
				VALUES ($1, $2, $3, $4)`, conversationID, holderID, now, now.Add(ttl))
			if err != nil {
				if isUniqueViolation(err) {
					// A concurrent caller inserted the lease row first.
					return apierr.New(apierr.Busy, "conversation is currently being processed")
				}
				return apierr.Wrap(apierr.StoreFailure, err)
			}
			return nil

		case err != nil:
			return apierr.Wrap(apierr.StoreFailure, err)

		case expiresAt.After(now):
			return apierr.New(apierr.Busy, "conversation is currently being processed")

		default:
			// Expired lease: reclaim it for the new holder.
			_, err = tx.ExecContext(ctx, `
				UPDATE conversation_leases SET holder_id = $2, acquired_at = $3, expires_at = $4
				WHERE conversation_id = $1`, conversationID, holderID, now, now.Add(ttl))
			if err != nil {
				return apierr.Wrap(apierr.StoreFailure, err)
			}
			return nil
		}
	})
}

// ReleaseLease drops the lease row for a conversation, but only if holderID
// still owns it — guards against a straggling goroutine releasing a lease
// that timed out and was already reclaimed by someone else.
func (s *Store) ReleaseLease(ctx context.Context, conversationID, holderID string) error {
	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(opCtx,
		`DELETE FROM conversation_leases WHERE conversation_id = $1 AND holder_id = $2`,
		conversationID, holderID)
	if err != nil {
		return apierr.Wrap(apierr.StoreFailure, err)
	}
	return nil
}

// ReclaimOrphanedLeases deletes lease rows whose expiry has lapsed, so a
// crashed worker never permanently wedges a conversation. Grounded on the
// teacher's pkg/queue/orphan.go sweep; intended to run on a ticker from
// cmd/stagehand/main.go. Returns the number of leases reclaimed.
func (s *Store) ReclaimOrphanedLeases(ctx context.Context) (int64, error) {
	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(opCtx, `DELETE FROM conversation_leases WHERE expires_at <= $1`, timeNow())
	if err != nil {
		return 0, apierr.Wrap(apierr.StoreFailure, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apierr.Wrap(apierr.StoreFailure, err)
	}
	return n, nil
}

// timeNow is a seam for tests; production always uses time.Now().
var timeNow = func() time.Time { return time.Now().UTC() }
