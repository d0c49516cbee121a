package database

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"asset-pool-ledger/internal/ledger"
)

// PostgreSQL error codes the store retries
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// StoreConfig tunes transaction retries
type StoreConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// DefaultStoreConfig returns the standard retry policy
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{MaxRetries: 5, RetryBackoff: 20 * time.Millisecond}
}

// Store is the PostgreSQL ledger.Store. Every WithTx runs at SERIALIZABLE
// isolation and rows are read with SELECT ... FOR UPDATE, so concurrent
// writers to one pool either queue on the row lock or fail with a
// serialization error that is retried from scratch.
type Store struct {
	db     *DB
	cfg    StoreConfig
	logger zerolog.Logger
}

// NewStore creates a Store over db
func NewStore(db *DB, cfg StoreConfig, logger zerolog.Logger) *Store {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	return &Store{
		db:     db,
		cfg:    cfg,
		logger: logger.With().Str("component", "LedgerStore").Logger(),
	}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WithTx runs fn in a serializable transaction, retrying on conflicts.
func (s *Store) WithTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err

		s.logger.Warn().Err(err).Int("attempt", attempt).Msg("Transaction conflict, retrying")
		if attempt == s.cfg.MaxRetries {
			break
		}
		if err := sleepBackoff(ctx, s.cfg.RetryBackoff, attempt); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ledger.ErrConflict, lastErr)
}

func (s *Store) runTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(&pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// IsRetryable reports whether err is a serialization failure or deadlock.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected
	}
	return false
}

// sleepBackoff waits base * 2^(attempt-1) plus jitter, or until ctx is done.
func sleepBackoff(ctx context.Context, base time.Duration, attempt int) error {
	delay := base << (attempt - 1)
	if base > 0 {
		delay += time.Duration(rand.Int63n(int64(base)))
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// noRows maps pgx.ErrNoRows onto ledger.ErrNotFound.
func noRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.ErrNotFound
	}
	return err
}

var _ ledger.Store = (*Store)(nil)
