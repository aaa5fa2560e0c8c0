package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/stagehand-run/stagehand/pkg/apierr"
	"github.com/stagehand-run/stagehand/pkg/models"
)

// newAPIKey generates an opaque 32-byte hex-encoded shared secret
// (64 characters), satisfying spec.md section 6.2's "32+ byte" requirement.
func newAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// CreateBusiness inserts a new tenant and generates its internal API key.
// The key is set on the returned Business value and stored with the row;
// GetBusiness and LookupBusinessByKey read it back as well.
func (s *Store) CreateBusiness(ctx context.Context, b models.Business) (models.Business, error) {
	key, err := newAPIKey()
	if err != nil {
		return models.Business{}, apierr.Wrap(apierr.Internal, err)
	}
	b.ID = uuid.NewString()
	b.InternalAPIKey = key
	if b.FallbackMessage == "" {
		b.FallbackMessage = "I'm having trouble answering right now. Please try again."
	}

	const q = `
		INSERT INTO businesses
			(business_id, owner_id, business_name, description, address,
			 phone_number, website, internal_api_key, fallback_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	err = s.db.QueryRowContext(opCtx, q,
		b.ID, b.OwnerID, b.BusinessName, b.Description, b.Address,
		b.PhoneNumber, b.Website, b.InternalAPIKey, b.FallbackMessage,
	).Scan(&b.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Business{}, apierr.New(apierr.Conflict, "business name already in use")
		}
		return models.Business{}, apierr.Wrap(apierr.StoreFailure, err)
	}
	return b, nil
}

// GetBusiness fetches a business by ID.
func (s *Store) GetBusiness(ctx context.Context, id string) (models.Business, error) {
	const q = `
		SELECT business_id, owner_id, business_name, description, address,
		       phone_number, website, internal_api_key, fallback_message, created_at
		FROM businesses WHERE business_id = $1`
	return s.scanBusiness(ctx, q, id)
}

// LookupBusinessByKey resolves the business owning an internal API key,
// used by the per-business auth guard (spec.md section 6.2).
func (s *Store) LookupBusinessByKey(ctx context.Context, key string) (models.Business, error) {
	const q = `
		SELECT business_id, owner_id, business_name, description, address,
		       phone_number, website, internal_api_key, fallback_message, created_at
		FROM businesses WHERE internal_api_key = $1`
	return s.scanBusiness(ctx, q, key)
}

func (s *Store) scanBusiness(ctx context.Context, q string, arg string) (models.Business, error) {
	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	var b models.Business
	err := s.db.QueryRowContext(opCtx, q, arg).Scan(
		&b.ID, &b.OwnerID, &b.BusinessName, &b.Description, &b.Address,
		&b.PhoneNumber, &b.Website, &b.InternalAPIKey, &b.FallbackMessage, &b.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return models.Business{}, apierr.New(apierr.NotFound, "business not found")
	}
	if err != nil {
		return models.Business{}, apierr.Wrap(apierr.StoreFailure, err)
	}
	return b, nil
}

// UpdateBusinessConfig updates the mutable configuration fields of a
// business. No HTTP handler calls it; POST /api/save-config only checks
// the key and sets a cookie. The API key is never rotated by this path.
func (s *Store) UpdateBusinessConfig(ctx context.Context, b models.Business) error {
	const q = `
		UPDATE businesses SET
			business_name = $2, description = $3, address = $4,
			phone_number = $5, website = $6, fallback_message = $7
		WHERE business_id = $1`

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(opCtx, q,
		b.ID, b.BusinessName, b.Description, b.Address, b.PhoneNumber, b.Website, b.FallbackMessage,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apierr.New(apierr.Conflict, "business name already in use")
		}
		return apierr.Wrap(apierr.StoreFailure, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierr.Wrap(apierr.StoreFailure, err)
	}
	if n == 0 {
		return apierr.New(apierr.NotFound, "business not found")
	}
	return nil
}

// CreateUser inserts a new end-customer record.
func (s *Store) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	u.ID = uuid.NewString()
	const q = `
		INSERT INTO users (user_id, first_name, last_name, email)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		RETURNING created_at`

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	err := s.db.QueryRowContext(opCtx, q, u.ID, u.FirstName, u.LastName, u.Email).Scan(&u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, apierr.New(apierr.Conflict, "email already registered")
		}
		return models.User{}, apierr.Wrap(apierr.StoreFailure, err)
	}
	return u, nil
}

// GetUser fetches a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	const q = `SELECT user_id, first_name, last_name, COALESCE(email, ''), created_at FROM users WHERE user_id = $1`

	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	var u models.User
	err := s.db.QueryRowContext(opCtx, q, id).Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return models.User{}, apierr.New(apierr.NotFound, "user not found")
	}
	if err != nil {
		return models.User{}, apierr.Wrap(apierr.StoreFailure, err)
	}
	return u, nil
}
