// Package store implements the message archive: durable storage of Slack
// messages with vector embeddings in PostgreSQL, plus cosine similarity
// retrieval through pgvector.
//
// All mutations go through the shared connection pool under read-committed
// isolation. The unique constraint on slack_message_id arbitrates racing
// duplicate inserts; updated_at columns are refreshed by a database trigger
// and cannot be set by callers.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// VectorDimension is the embedding dimensionality declared by the
	// slack_messages schema. Vectors of any other length are rejected
	// before they reach the database.
	VectorDimension = 384

	// DefaultSimilarityThreshold is the minimum cosine similarity applied
	// when a search does not specify one.
	DefaultSimilarityThreshold = 0.7

	// DefaultSearchLimit caps similarity search results by default.
	DefaultSearchLimit = 5

	// MaxSearchLimit bounds result_limit to keep queries cheap.
	MaxSearchLimit = 100

	// DefaultListLimit caps listing queries when no limit is given.
	DefaultListLimit = 100
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages the Slack message archive backed by PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store. The pool is owned by the caller.
func New(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}
