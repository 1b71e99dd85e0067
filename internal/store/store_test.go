package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/quarkbyte/domscout/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

// ArgumentMatcherFunc is a helper to create inline mock matchers.
type ArgumentMatcherFunc func(interface{}) bool

func (f ArgumentMatcherFunc) Match(v interface{}) bool {
	return f(v)
}

// anyTime is a matcher that accepts any value (used for timestamps we can't predict exactly)
var anyTime = ArgumentMatcherFunc(func(v interface{}) bool {
	return true
})

// The expected SQL is pinned here so the tests fail loudly when the store's
// statements drift.
const (
	expectedCreateSQL = `
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
	expectedLookupSQL = `
        SELECT selector, confidence, strategy, resolved_at
        FROM selector_cache
        WHERE page_url = $1 AND description = $2 AND type_constraint = $3;
    `
	expectedSaveSQL = `
        INSERT INTO selector_cache (page_url, description, type_constraint, selector, confidence, strategy, resolved_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (page_url, description, type_constraint) DO UPDATE SET
            selector = EXCLUDED.selector,
            confidence = EXCLUDED.confidence,
            strategy = EXCLUDED.strategy,
            resolved_at = EXCLUDED.resolved_at;
    `
	expectedPurgeSQL = `DELETE FROM selector_cache WHERE resolved_at < $1;`
)

// -- Test Cases --

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should construct a store when the ping succeeds", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)

		store, err := New(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)
		require.NotNil(t, store)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	ctx := context.Background()

	t.Run("should create the cache table", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		store, err := New(ctx, mockPool, zap.NewNop())
		require.NoError(t, err)

		mockPool.ExpectExec(flexibleSQLMatcher(expectedCreateSQL)).
			WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

		require.NoError(t, store.EnsureSchema(ctx))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should wrap DDL failures", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		store, err := New(ctx, mockPool, zap.NewNop())
		require.NoError(t, err)

		ddlErr := errors.New("permission denied for schema public")
		mockPool.ExpectExec(flexibleSQLMatcher(expectedCreateSQL)).
			WillReturnError(ddlErr)

		err = store.EnsureSchema(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, ddlErr)
		assert.Contains(t, err.Error(), "failed to create selector_cache table")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestLookup(t *testing.T) {
	ctx := context.Background()

	t.Run("should hydrate a cached record on a hit", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		store, err := New(ctx, mockPool, zap.NewNop())
		require.NoError(t, err)

		resolvedAt := time.Date(2025, 11, 20, 10, 0, 0, 0, time.UTC)
		mockPool.ExpectQuery(flexibleSQLMatcher(expectedLookupSQL)).
			WithArgs("https://app.example.com/login", "the login button", "button").
			WillReturnRows(pgxmock.NewRows([]string{"selector", "confidence", "strategy", "resolved_at"}).
				AddRow("#submitBtn", 0.98, "heuristic", resolvedAt))

		rec, err := store.Lookup(ctx, "https://app.example.com/login", "the login button", schemas.ElementButton)
		require.NoError(t, err)
		require.NotNil(t, rec)

		assert.Equal(t, "https://app.example.com/login", rec.PageURL)
		assert.Equal(t, "the login button", rec.Description)
		assert.Equal(t, schemas.ElementButton, rec.TypeConstraint)
		assert.Equal(t, "#submitBtn", rec.Selector)
		assert.InDelta(t, 0.98, rec.Confidence, 1e-9)
		assert.Equal(t, schemas.StrategyHeuristic, rec.Strategy)
		assert.True(t, resolvedAt.Equal(rec.ResolvedAt))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should report a miss as nil without error", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		store, err := New(ctx, mockPool, zap.NewNop())
		require.NoError(t, err)

		mockPool.ExpectQuery(flexibleSQLMatcher(expectedLookupSQL)).
			WithArgs("https://app.example.com/login", "the login button", "auto").
			WillReturnError(pgx.ErrNoRows)

		rec, err := store.Lookup(ctx, "https://app.example.com/login", "the login button", schemas.ElementAuto)
		require.NoError(t, err)
		assert.Nil(t, rec)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should wrap transport failures", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		store, err := New(ctx, mockPool, zap.NewNop())
		require.NoError(t, err)

		queryErr := errors.New("connection reset by peer")
		mockPool.ExpectQuery(flexibleSQLMatcher(expectedLookupSQL)).
			WithArgs("https://app.example.com/login", "the login button", "auto").
			WillReturnError(queryErr)

		rec, err := store.Lookup(ctx, "https://app.example.com/login", "the login button", schemas.ElementAuto)
		require.Error(t, err)
		assert.Nil(t, rec)
		assert.ErrorIs(t, err, queryErr)
		assert.Contains(t, err.Error(), "failed to look up cached selector")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestSave(t *testing.T) {
	ctx := context.Background()

	t.Run("should upsert with the provided timestamp converted to UTC", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		store, err := New(ctx, mockPool, zap.NewNop())
		require.NoError(t, err)

		loc := time.FixedZone("UTC-5", -5*3600)
		resolvedLocal := time.Date(2025, 11, 20, 10, 0, 0, 0, loc)

		mockPool.ExpectExec(flexibleSQLMatcher(expectedSaveSQL)).
			WithArgs(
				"https://app.example.com/pricing",
				"link to the pricing page",
				"a",
				"a.pricing-link",
				0.9,
				"ai",
				resolvedLocal.UTC(),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		rec := schemas.CachedSelector{
			PageURL:        "https://app.example.com/pricing",
			Description:    "link to the pricing page",
			TypeConstraint: schemas.ElementAnchor,
			Selector:       "a.pricing-link",
			Confidence:     0.9,
			Strategy:       schemas.StrategyAI,
			ResolvedAt:     resolvedLocal,
		}
		require.NoError(t, store.Save(ctx, rec))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should stamp a zero timestamp with the current time", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		store, err := New(ctx, mockPool, zap.NewNop())
		require.NoError(t, err)

		recentTime := ArgumentMatcherFunc(func(v interface{}) bool {
			ts, ok := v.(time.Time)
			return ok && time.Since(ts) < time.Minute
		})

		mockPool.ExpectExec(flexibleSQLMatcher(expectedSaveSQL)).
			WithArgs(
				"https://app.example.com/login",
				"the login button",
				"button",
				"#submitBtn",
				0.98,
				"heuristic",
				recentTime,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		rec := schemas.CachedSelector{
			PageURL:        "https://app.example.com/login",
			Description:    "the login button",
			TypeConstraint: schemas.ElementButton,
			Selector:       "#submitBtn",
			Confidence:     0.98,
			Strategy:       schemas.StrategyHeuristic,
		}
		require.NoError(t, store.Save(ctx, rec))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should wrap exec failures", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		store, err := New(ctx, mockPool, zap.NewNop())
		require.NoError(t, err)

		execErr := errors.New("deadlock detected")
		mockPool.ExpectExec(flexibleSQLMatcher(expectedSaveSQL)).
			WithArgs(anyTime, anyTime, anyTime, anyTime, anyTime, anyTime, anyTime).
			WillReturnError(execErr)

		rec := schemas.CachedSelector{
			PageURL:     "https://app.example.com/login",
			Description: "the login button",
			Selector:    "#submitBtn",
		}
		err = store.Save(ctx, rec)
		require.Error(t, err)
		assert.ErrorIs(t, err, execErr)
		assert.Contains(t, err.Error(), "failed to save cached selector")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPurge(t *testing.T) {
	ctx := context.Background()

	t.Run("should delete rows older than the cutoff and log the count", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		observedZapCore, observedLogs := observer.New(zapcore.DebugLevel)
		observedLogger := zap.New(observedZapCore)

		mockPool.ExpectPing().WillReturnError(nil)
		store, err := New(ctx, mockPool, observedLogger)
		require.NoError(t, err)

		pastCutoff := ArgumentMatcherFunc(func(v interface{}) bool {
			ts, ok := v.(time.Time)
			return ok && ts.Before(time.Now())
		})

		mockPool.ExpectExec(flexibleSQLMatcher(expectedPurgeSQL)).
			WithArgs(pastCutoff).
			WillReturnResult(pgxmock.NewResult("DELETE", 3))

		n, err := store.Purge(ctx, 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		logs := observedLogs.FilterMessage("Purged stale cache entries.").All()
		require.Len(t, logs, 1)
		assert.Equal(t, int64(3), logs[0].ContextMap()["rows"])
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should stay quiet when nothing is purged", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		observedZapCore, observedLogs := observer.New(zapcore.DebugLevel)
		observedLogger := zap.New(observedZapCore)

		mockPool.ExpectPing().WillReturnError(nil)
		store, err := New(ctx, mockPool, observedLogger)
		require.NoError(t, err)

		mockPool.ExpectExec(flexibleSQLMatcher(expectedPurgeSQL)).
			WithArgs(anyTime).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		n, err := store.Purge(ctx, 24*time.Hour)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Empty(t, observedLogs.FilterMessage("Purged stale cache entries.").All())
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should wrap exec failures", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		store, err := New(ctx, mockPool, zap.NewNop())
		require.NoError(t, err)

		execErr := errors.New("relation selector_cache does not exist")
		mockPool.ExpectExec(flexibleSQLMatcher(expectedPurgeSQL)).
			WithArgs(anyTime).
			WillReturnError(execErr)

		n, err := store.Purge(ctx, 24*time.Hour)
		require.Error(t, err)
		assert.Zero(t, n)
		assert.ErrorIs(t, err, execErr)
		assert.Contains(t, err.Error(), "failed to purge cached selectors")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
