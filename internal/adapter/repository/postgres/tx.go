package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/fundops/backoffice/internal/domain"
)

// txCtxKey carries the active *sql.Tx through the context passed to the
// transaction body.
type txCtxKey struct{}

func txFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txCtxKey{}).(*sql.Tx)
	return tx
}

// TxManager implements domain.TxManager with a bounded pool of transaction
// slots. The slot bound keeps one slow sync from exhausting the connection
// pool; waiting for a slot is capped by TxOptions.AcquireTimeout.
type TxManager struct {
	db    *DB
	slots *semaphore.Weighted
}

// NewTxManager creates a transaction manager allowing at most maxConcurrent
// simultaneous transactions.
func NewTxManager(db *DB, maxConcurrent int64) *TxManager {
	return &TxManager{db: db, slots: semaphore.NewWeighted(maxConcurrent)}
}

// RunInTransaction acquires a slot, opens a transaction, runs fn with a
// transaction-carrying context and commits when fn returns nil. Any error
// rolls back. Exceeding either timeout fails only this transaction.
func (m *TxManager) RunInTransaction(ctx context.Context, opts domain.TxOptions, fn func(ctx context.Context) error) error {
	acquireCtx := ctx
	if opts.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, opts.AcquireTimeout)
		defer cancel()
	}
	if err := m.slots.Acquire(acquireCtx, 1); err != nil {
		return fmt.Errorf("acquire transaction slot: %w", err)
	}
	defer m.slots.Release(1)

	execCtx := ctx
	if opts.ExecTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, opts.ExecTimeout)
		defer cancel()
	}

	tx, err := m.db.BeginTx(execCtx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(context.WithValue(execCtx, txCtxKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
