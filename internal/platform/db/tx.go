package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const (
	DBPoolKey contextKey = "db_pool"
	DBTxKey   contextKey = "db_tx"
)

// WithPool stores the pool in ctx so WithTx can begin transactions from it.
func WithPool(ctx context.Context, pool *pgxpool.Pool) context.Context {
	return context.WithValue(ctx, DBPoolKey, pool)
}

// PoolFromContext returns the pool stored by WithPool, or nil.
func PoolFromContext(ctx context.Context) *pgxpool.Pool {
	pool, _ := ctx.Value(DBPoolKey).(*pgxpool.Pool)
	return pool
}

// TxFromContext returns the transaction opened by WithTx, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// WithTx begins a transaction on the pool found in ctx and returns a derived
// context carrying it. Repositories pick the transaction up via TxFromContext.
// A context that already carries a transaction gets a nested savepoint.
func WithTx(ctx context.Context) (context.Context, pgx.Tx, error) {
	var (
		tx  pgx.Tx
		err error
	)
	switch {
	case TxFromContext(ctx) != nil:
		tx, err = TxFromContext(ctx).Begin(ctx)
	case PoolFromContext(ctx) != nil:
		tx, err = PoolFromContext(ctx).Begin(ctx)
	default:
		return ctx, nil, errors.New("no database connection in context")
	}
	if err != nil {
		return ctx, nil, err
	}
	return context.WithValue(ctx, DBTxKey, tx), tx, nil
}

// RunInTx runs fn inside WithTx, committing on success and rolling back on
// error or panic. Without a pool in ctx, fn runs directly.
func RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if PoolFromContext(ctx) == nil && TxFromContext(ctx) == nil {
		return fn(ctx)
	}
	txCtx, tx, err := WithTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	if err = fn(txCtx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
