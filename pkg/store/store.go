// Package store provides typed PostgreSQL persistence for businesses,
// users, stages, templates, conversations, messages, and LLM-call traces
// (spec.md section 4.1). Connection management, migrations, and the
// transactional-unit pattern follow the teacher's pkg/database/client.go.
package store

import (
	"context"
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/stagehand-run/stagehand/pkg/apierr"
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds database connection and pool settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// PoolAcquireTimeout bounds how long a caller waits for a free
	// connection before ResourceExhausted is returned (spec.md section 5).
	PoolAcquireTimeout time.Duration
}

// Store wraps a pooled *sql.DB (via the pgx stdlib driver) with the typed
// operations the rest of the system relies on.
type Store struct {
	db  *stdsql.DB
	cfg Config
}

// New opens a connection pool, runs embedded migrations, and returns a
// ready Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{db: db, cfg: cfg}, nil
}

// NewFromDB wraps an already-open *sql.DB, useful for tests that manage
// their own container/connection lifecycle (see store_test.go).
func NewFromDB(db *stdsql.DB, cfg Config) *Store {
	return &Store{db: db, cfg: cfg}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for health checks.
func (s *Store) DB() *stdsql.DB {
	return s.db
}

func runMigrations(db *stdsql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("postgres driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// acquireCtx bounds a single operation by the pool acquire timeout when the
// caller hasn't already set a tighter deadline.
func (s *Store) acquireCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	timeout := s.cfg.PoolAcquireTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// withTx runs fn inside a transaction, committing on success and rolling
// back otherwise. Pool-exhaustion errors are mapped to ResourceExhausted;
// any other failure to StoreFailure (spec.md section 7).
func (s *Store) withTx(ctx context.Context, fn func(tx *stdsql.Tx) error) error {
	opCtx, cancel := s.acquireCtx(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(opCtx, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return apierr.New(apierr.ResourceExhausted, "database pool exhausted")
		}
		return apierr.Wrap(apierr.StoreFailure, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apierr.Wrap(apierr.StoreFailure, err)
	}
	return nil
}

var errNotFound = stdsql.ErrNoRows

// IsNotFound reports whether err is a "no rows" condition from the database.
func IsNotFound(err error) bool {
	return errors.Is(err, errNotFound)
}
