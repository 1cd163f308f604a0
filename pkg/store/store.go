// Package store implements PostgreSQL persistence for documents, review
// runs, chunks, and findings.
package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateIdempotencyKey indicates another run already holds the
	// (document_id, idempotency_key) pair.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// Store provides data access over a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}
