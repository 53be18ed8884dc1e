package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"

	"github.com/heartmarshall/treecleaner/internal/domain"
)

// RetryPolicy bounds how often a transaction is re-run after a
// serialization failure or deadlock.
type RetryPolicy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
}

// DefaultRetryPolicy is used when NewTxManager gets no policy.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, BaseDelay: 20 * time.Millisecond}

// TxManager runs callbacks in a transaction carried through the context.
// A RunInTx or RunReadOnly issued inside a callback joins the enclosing
// transaction; retries and commit belong to the outermost call.
type TxManager struct {
	pool   *pgxpool.Pool
	policy RetryPolicy
}

// NewTxManager creates a new TxManager.
func NewTxManager(pool *pgxpool.Pool, policy ...RetryPolicy) *TxManager {
	p := DefaultRetryPolicy
	if len(policy) > 0 {
		p = policy[0]
	}
	return &TxManager{pool: pool, policy: p}
}

// RunInTx executes fn within a read-write transaction.
// Isolation level: Read Committed (PostgreSQL default); row locks are taken
// explicitly by the repositories with SELECT ... FOR UPDATE.
// Serialization failures and deadlocks re-run fn with exponential backoff and
// surface as domain.ErrConflict once retries are exhausted. fn must therefore
// be safe to run more than once.
func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.run(ctx, pgx.TxOptions{}, fn)
}

// RunReadOnly executes fn in a REPEATABLE READ, READ ONLY transaction so that
// every query inside sees the same snapshot.
func (m *TxManager) RunReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func (m *TxManager) run(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}
	backoff := retry.WithMaxRetries(m.policy.MaxRetries, retry.NewExponential(m.policy.BaseDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := m.once(ctx, opts, fn)
		if isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if isRetryable(err) {
		return fmt.Errorf("transaction retries exhausted: %v: %w", err, domain.ErrConflict)
	}
	return err
}

// once runs fn in a single transaction.
// On error from fn: rolls back and returns the error.
// On panic from fn: rolls back and re-panics.
func (m *TxManager) once(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context) error) (err error) {
	tx, err := m.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()

	txCtx := withTx(ctx, tx)

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("rollback failed: %w (original error: %v)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
