package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upb/zoneauth/repositories"
	"go.uber.org/zap"
)

type txKey struct{}

// TransactionManager opens sql transactions and carries them in the
// context so repositories pick them up through GetExecutor.
type TransactionManager struct {
	db     *DB
	opts   *sql.TxOptions
	logger *zap.Logger
}

// TxOption configures a TransactionManager
type TxOption func(*TransactionManager)

// WithIsolation sets the isolation level of every transaction opened.
func WithIsolation(level sql.IsolationLevel) TxOption {
	return func(tm *TransactionManager) {
		tm.opts = &sql.TxOptions{Isolation: level}
	}
}

// NewTransactionManager returns a manager over db. Transactions use the
// server default isolation unless WithIsolation is given.
func NewTransactionManager(db *DB, logger *zap.Logger, opts ...TxOption) repositories.TransactionManager {
	tm := &TransactionManager{db: db, logger: logger}
	for _, opt := range opts {
		opt(tm)
	}
	return tm
}

// Begin opens a transaction that is not attached to any context.
func (tm *TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	tx, err := tm.db.BeginTx(ctx, tm.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Transaction{tx: tx, ctx: ctx, logger: tm.logger}, nil
}

// InTransaction runs fn with a context holding the transaction. fn
// joins an outer transaction when ctx already holds one. A panic in fn
// rolls back and re-panics.
func (tm *TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) (err error) {
	if outer, ok := GetTransactionFromContext(ctx); ok {
		return fn(ctx, outer)
	}

	tx, err := tm.Begin(ctx)
	if err != nil {
		return err
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(txCtx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			tm.logger.Error("failed to rollback transaction",
				zap.Error(rbErr),
				zap.NamedError("cause", err))
		}
		return err
	}
	return tx.Commit()
}

// Transaction wraps *sql.Tx
type Transaction struct {
	tx     *sql.Tx
	ctx    context.Context
	logger *zap.Logger
}

func (t *Transaction) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback is a no-op on a finished transaction.
func (t *Transaction) Rollback() error {
	err := t.tx.Rollback()
	if err == nil || errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return fmt.Errorf("failed to rollback transaction: %w", err)
}

func (t *Transaction) Context() context.Context { return t.ctx }

// GetTransactionFromContext returns the transaction InTransaction stored in ctx.
func GetTransactionFromContext(ctx context.Context) (repositories.Transaction, bool) {
	tx, ok := ctx.Value(txKey{}).(repositories.Transaction)
	return tx, ok
}

// Executor is satisfied by both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// GetExecutor returns the transaction held by ctx, or the pool.
func GetExecutor(ctx context.Context, db *DB) Executor {
	if tx, ok := GetTransactionFromContext(ctx); ok {
		if pgTx, ok := tx.(*Transaction); ok {
			return pgTx.tx
		}
	}
	return db.DB
}
