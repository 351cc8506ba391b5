package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/CavellTopDev/pitchey-app-sub015/event"
	"github.com/CavellTopDev/pitchey-app-sub015/investment"
	"github.com/CavellTopDev/pitchey-app-sub015/nda"
	"github.com/CavellTopDev/pitchey-app-sub015/production"
	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	_ workflow.Store   = (*Store)(nil)
	_ event.Store      = (*Store)(nil)
	_ nda.Store        = (*Store)(nil)
	_ nda.Directory    = (*Store)(nil)
	_ investment.Store = (*Store)(nil)
	_ production.Store = (*Store)(nil)
)

// Store is the PostgreSQL store.Store. Partial unique indexes enforce
// the one-live-record rules and advisory transaction locks serialize
// work on a single pitch.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New connects to the database at connString, a postgres:// URL.
func New(ctx context.Context, connString string, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("dealflow/postgres: parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("dealflow/postgres: connect: %w", err)
	}

	return NewFromPool(pool, opts...), nil
}

// NewFromPool wraps an existing pool. Close closes the pool.
func NewFromPool(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:   pool,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// migrationLock is the advisory lock key held while migrating, so two
// processes booting together apply each file once.
const migrationLock = 0x6465616c // "deal"

// Migrate applies the embedded SQL files that are not yet recorded in
// dealflow_migrations, in file name order, inside one transaction.
func (s *Store) Migrate(ctx context.Context) error {
	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("dealflow/postgres: list migrations: %w", err)
	}
	slices.Sort(files)

	var applied []string
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLock); err != nil {
			return fmt.Errorf("lock: %w", err)
		}
		if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS dealflow_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
			return fmt.Errorf("create migrations table: %w", err)
		}

		rows, err := tx.Query(ctx, `SELECT filename FROM dealflow_migrations`)
		if err != nil {
			return fmt.Errorf("load applied: %w", err)
		}
		done, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("load applied: %w", err)
		}

		for _, file := range files {
			name := path.Base(file)
			if slices.Contains(done, name) {
				continue
			}
			body, err := fs.ReadFile(migrationsFS, file)
			if err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}
			if _, err := tx.Exec(ctx, string(body)); err != nil {
				return fmt.Errorf("apply %s: %w", name, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO dealflow_migrations (filename) VALUES ($1)`, name); err != nil {
				return fmt.Errorf("record %s: %w", name, err)
			}
			applied = append(applied, name)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("dealflow/postgres: migrate: %w", err)
	}

	for _, name := range applied {
		s.logger.Info("applied migration", slog.String("file", name))
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// inTx runs fn inside a transaction, committing when fn returns nil.
func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, fn)
}

// lockPitch takes the transaction-scoped advisory lock of a pitch. Every
// write that must see a consistent view of a pitch's deals goes through it.
func lockPitch(ctx context.Context, tx pgx.Tx, scope, pitchID string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, scope+":"+pitchID)
	if err != nil {
		return fmt.Errorf("lock pitch %s: %w", pitchID, err)
	}
	return nil
}
