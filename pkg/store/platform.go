package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/stagehand-run/stagehand/pkg/apierr"
	"github.com/stagehand-run/stagehand/pkg/models"
)

// PutPlatformBinding upserts the mapping from a platform's own recipient
// identifier to the business it belongs to.
func (s *Store) PutPlatformBinding(ctx context.Context, b models.PlatformBinding) error {
	const q = `
		INSERT INTO platform_bindings (platform, platform_recipient_id, business_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (platform, platform_recipient_id) DO UPDATE SET business_id = EXCLUDED.business_id`

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(opCtx, q, b.Platform, b.PlatformRecipientID, b.BusinessID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apierr.New(apierr.InvalidRequest, "unknown business_id")
		}
		return apierr.Wrap(apierr.StoreFailure, err)
	}
	return nil
}

// ResolveBusinessByPlatformRecipient looks up the business bound to a
// platform's recipient ID (spec.md section 6.2 step 3).
func (s *Store) ResolveBusinessByPlatformRecipient(ctx context.Context, platform, recipientID string) (models.Business, error) {
	const q = `SELECT business_id FROM platform_bindings WHERE platform = $1 AND platform_recipient_id = $2`

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	var businessID string
	err := s.db.QueryRowContext(opCtx, q, platform, recipientID).Scan(&businessID)
	if err == sql.ErrNoRows {
		return models.Business{}, apierr.New(apierr.NotFound, "no business bound to this platform recipient")
	}
	if err != nil {
		return models.Business{}, apierr.Wrap(apierr.StoreFailure, err)
	}
	return s.GetBusiness(ctx, businessID)
}

// ResolveOrCreateUserByPlatformIdentity maps a platform's sender ID to an
// internal user, creating both the user and the mapping on first contact
// (spec.md section 6.2 step 3).
func (s *Store) ResolveOrCreateUserByPlatformIdentity(ctx context.Context, platform, senderID string) (models.User, error) {
	var out models.User
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var userID string
		err := tx.QueryRowContext(ctx,
			`SELECT user_id FROM platform_identities WHERE platform = $1 AND platform_sender_id = $2`,
			platform, senderID,
		).Scan(&userID)

		switch {
		case err == nil:
			u, scanErr := scanUserByID(ctx, tx, userID)
			out = u
			return scanErr
		case err != sql.ErrNoRows:
			return apierr.Wrap(apierr.StoreFailure, err)
		}

		newID := uuid.NewString()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (user_id) VALUES ($1)`, newID,
		); err != nil {
			return apierr.Wrap(apierr.StoreFailure, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO platform_identities (platform, platform_sender_id, user_id) VALUES ($1, $2, $3)`,
			platform, senderID, newID,
		); err != nil {
			return apierr.Wrap(apierr.StoreFailure, err)
		}
		u, scanErr := scanUserByID(ctx, tx, newID)
		out = u
		return scanErr
	})
	return out, err
}

func scanUserByID(ctx context.Context, tx *sql.Tx, id string) (models.User, error) {
	var u models.User
	var email sql.NullString
	err := tx.QueryRowContext(ctx,
		`SELECT user_id, first_name, last_name, email, created_at FROM users WHERE user_id = $1`, id,
	).Scan(&u.ID, &u.FirstName, &u.LastName, &email, &u.CreatedAt)
	if err != nil {
		return models.User{}, apierr.Wrap(apierr.StoreFailure, err)
	}
	u.Email = email.String
	return u, nil
}
