package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/quarkbyte/domscout/api/schemas"
)

// DBPool abstracts the pgxpool.Pool so the store can be tested against a
// mock pool.
type DBPool interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Store is the PostgreSQL implementation of schemas.SelectorStore: one row
// per (page_url, description, type_constraint) key, upserted on save. The
// engine revalidates every hit against the live DOM, so a stale row costs
// one wasted query, never a wrong answer.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.SelectorStore = (*Store)(nil)

// New wraps an existing pool and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

const sqlEnsureSchema = `
    CREATE TABLE IF NOT EXISTS selector_cache (
        page_url        TEXT NOT NULL,
        description     TEXT NOT NULL,
        type_constraint TEXT NOT NULL,
        selector        TEXT NOT NULL,
        confidence      DOUBLE PRECISION NOT NULL,
        strategy        TEXT NOT NULL,
        resolved_at     TIMESTAMPTZ NOT NULL,
        PRIMARY KEY (page_url, description, type_constraint)
    );
`

// EnsureSchema creates the cache table when it does not exist yet. Called
// once at startup by whoever owns the store.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlEnsureSchema); err != nil {
		return fmt.Errorf("failed to create selector_cache table: %w", err)
	}
	return nil
}

const sqlLookup = `
    SELECT selector, confidence, strategy, resolved_at
    FROM selector_cache
    WHERE page_url = $1 AND description = $2 AND type_constraint = $3;
`

// Lookup returns the cached record for the key, or nil when absent.
func (s *Store) Lookup(ctx context.Context, pageURL, description string, t schemas.ElementType) (*schemas.CachedSelector, error) {
	rec := schemas.CachedSelector{
		PageURL:        pageURL,
		Description:    description,
		TypeConstraint: t,
	}

	var strategy string
	err := s.pool.QueryRow(ctx, sqlLookup, pageURL, description, string(t)).
		Scan(&rec.Selector, &rec.Confidence, &strategy, &rec.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up cached selector: %w", err)
	}

	rec.Strategy = schemas.Strategy(strategy)
	return &rec, nil
}

const sqlSave = `
    INSERT INTO selector_cache (page_url, description, type_constraint, selector, confidence, strategy, resolved_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7)
    ON CONFLICT (page_url, description, type_constraint) DO UPDATE SET
        selector = EXCLUDED.selector,
        confidence = EXCLUDED.confidence,
        strategy = EXCLUDED.strategy,
        resolved_at = EXCLUDED.resolved_at;
`

// Save upserts one validated resolution under its lookup key. Timestamps
// are stored in UTC; a zero ResolvedAt becomes the current time.
func (s *Store) Save(ctx context.Context, rec schemas.CachedSelector) error {
	resolvedAt := rec.ResolvedAt.UTC()
	if rec.ResolvedAt.IsZero() {
		resolvedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, sqlSave,
		rec.PageURL, rec.Description, string(rec.TypeConstraint),
		rec.Selector, rec.Confidence, string(rec.Strategy), resolvedAt)
	if err != nil {
		return fmt.Errorf("failed to save cached selector: %w", err)
	}
	return nil
}

const sqlPurge = `DELETE FROM selector_cache WHERE resolved_at < $1;`

// Purge deletes entries resolved before now minus maxAge and reports how
// many rows were removed.
func (s *Store) Purge(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	tag, err := s.pool.Exec(ctx, sqlPurge, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge cached selectors: %w", err)
	}

	n := tag.RowsAffected()
	if n > 0 {
		s.log.Debug("Purged stale cache entries.", zap.Int64("rows", n))
	}
	return n, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
