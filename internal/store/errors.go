package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate indicates a message with the same slack_message_id has
	// already been archived. Callers should treat this as "already
	// ingested", not as a failure.
	ErrDuplicate = errors.New("duplicate message")

	// ErrDimension indicates an embedding whose length does not match
	// VectorDimension. The operation is rejected before any write occurs.
	ErrDimension = errors.New("embedding dimension mismatch")
)

// uniqueViolationCode is the PostgreSQL SQLSTATE for unique constraint
// violations.
const uniqueViolationCode = "23505"

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// checkDimension validates an embedding length against VectorDimension.
// A nil embedding is allowed where the schema permits NULL.
func checkDimension(embedding []float32) error {
	if embedding != nil && len(embedding) != VectorDimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimension, len(embedding), VectorDimension)
	}
	return nil
}
