package db

import (
	"context"
	"fmt"
	"strings"

	"horse.fit/stagehand/internal/staging"
)

type querier interface {
	QueryRow(ctx context.Context, query string, args ...any) *Row
	Query(ctx context.Context, query string, args ...any) (*Rows, error)
	Exec(ctx context.Context, query string, args ...any) (CommandTag, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Store adapts the pool to the staging persistence boundary. The zero-value
// querier is the pool itself; WithTx swaps in a transaction so the same
// queries run inside it.
type Store struct {
	pool *Pool
	q    querier
}

func NewStore(pool *Pool) *Store {
	return &Store{pool: pool, q: pool}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx staging.Store) error) error {
	if _, nested := s.q.(Tx); nested {
		return fn(s)
	}
	tx, err := s.pool.BeginTx(ctx, TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&Store{pool: s.pool, q: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "duplicate key value")
}
