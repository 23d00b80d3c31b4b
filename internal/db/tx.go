package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"upkeep/internal/types"
)

// beginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type beginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// TxManager runs template generation as one transaction. The repositories
// handed to fn are bound to that transaction, so the request insert and the
// template stamp commit or roll back together.
type TxManager struct {
	pool beginner
}

// NewTxManager creates a TxManager over a pool.
func NewTxManager(pool beginner) *TxManager {
	return &TxManager{pool: pool}
}

// RunInTx begins a transaction, calls fn, and commits if fn returns nil.
// Any error from fn rolls the transaction back and is returned unchanged.
func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context, repos types.GenerationRepos) error) error {
	return pgx.BeginTxFunc(ctx, m.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(ctx, types.GenerationRepos{
			Requests:  NewRequestRepository(tx),
			Templates: NewTemplateRepository(tx),
		})
	})
}
