package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultSearchTimeout bounds similarity queries so a cold HNSW index or an
// overloaded server cannot block callers indefinitely.
const DefaultSearchTimeout = 10 * time.Second

var tracer = otel.Tracer("github.com/ai-wingman/wingman/internal/store")

// searchConfig is assembled from SearchOptions.
type searchConfig struct {
	limit     int
	threshold float64
	userID    string
	channelID string
	timeout   time.Duration
}

// SearchOption customizes SearchSimilar.
type SearchOption func(*searchConfig)

// WithLimit caps the number of results (default DefaultSearchLimit,
// maximum MaxSearchLimit).
func WithLimit(n int) SearchOption {
	return func(c *searchConfig) { c.limit = n }
}

// WithThreshold sets the minimum cosine similarity in [0,1]
// (default DefaultSimilarityThreshold). Zero returns the nearest neighbors
// regardless of absolute similarity.
func WithThreshold(t float64) SearchOption {
	return func(c *searchConfig) { c.threshold = t }
}

// WithUser restricts the search to one author.
func WithUser(userID string) SearchOption {
	return func(c *searchConfig) { c.userID = userID }
}

// WithChannel restricts the search to one channel.
func WithChannel(channelID string) SearchOption {
	return func(c *searchConfig) { c.channelID = channelID }
}

// WithTimeout overrides DefaultSearchTimeout.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) { c.timeout = d }
}

func buildSearchConfig(opts []SearchOption) searchConfig {
	cfg := searchConfig{
		limit:     DefaultSearchLimit,
		threshold: DefaultSimilarityThreshold,
		timeout:   DefaultSearchTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// searchSQL calls the search_similar_messages function for unscoped queries,
// keeping filter/order/limit semantics server-side next to the schema.
const searchSQL = `SELECT message_id, message_text, user_name, channel_name,
	similarity, slack_timestamp::text
	FROM ai_wingman.search_similar_messages($1, $2, $3)`

// scopedSearchSQL mirrors the stored function with optional author/channel
// filters. Empty scope parameters disable their condition.
const scopedSearchSQL = `SELECT sm.id, sm.message_text, sm.user_name, sm.channel_name,
	1 - (sm.embedding <=> $1) AS similarity, sm.slack_timestamp::text
	FROM ai_wingman.slack_messages sm
	WHERE NOT sm.is_deleted
	  AND sm.embedding IS NOT NULL
	  AND 1 - (sm.embedding <=> $1) >= $2
	  AND ($4 = '' OR sm.user_id = $4)
	  AND ($5 = '' OR sm.channel_id = $5)
	ORDER BY sm.embedding <=> $1
	LIMIT $3`

// SearchSimilar returns the archived messages most similar to the query
// embedding, best match first. Soft-deleted messages and messages without
// embeddings are never returned. An empty result set is not an error.
//
// The HNSW index makes this approximate: results are the index's nearest
// candidates, not a guaranteed exact top-K.
func (s *Store) SearchSimilar(ctx context.Context, queryEmbedding []float32, opts ...SearchOption) ([]SearchResult, error) {
	cfg := buildSearchConfig(opts)

	if len(queryEmbedding) != VectorDimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(queryEmbedding), VectorDimension)
	}
	if cfg.threshold < 0 || cfg.threshold > 1 {
		return nil, fmt.Errorf("similarity threshold must be in [0,1], got %v", cfg.threshold)
	}
	if cfg.limit < 1 || cfg.limit > MaxSearchLimit {
		return nil, fmt.Errorf("result limit must be between 1 and %d, got %d", MaxSearchLimit, cfg.limit)
	}

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	queryCtx, span := tracer.Start(queryCtx, "store.SearchSimilar")
	defer span.End()
	span.SetAttributes(
		attribute.Int("search.limit", cfg.limit),
		attribute.Float64("search.threshold", cfg.threshold),
		attribute.Bool("search.scoped", cfg.userID != "" || cfg.channelID != ""),
	)

	vec := pgvector.NewVector(queryEmbedding)

	var rowsErr error
	var results []SearchResult
	if cfg.userID == "" && cfg.channelID == "" {
		results, rowsErr = s.runSearch(queryCtx, searchSQL, vec, cfg.threshold, cfg.limit)
	} else {
		results, rowsErr = s.runSearch(queryCtx, scopedSearchSQL, vec, cfg.threshold, cfg.limit, cfg.userID, cfg.channelID)
	}
	if rowsErr != nil {
		return nil, rowsErr
	}

	span.SetAttributes(attribute.Int("search.results", len(results)))
	s.logger.Debug("similarity search completed",
		"results", len(results), "threshold", cfg.threshold, "limit", cfg.limit)
	return results, nil
}

func (s *Store) runSearch(ctx context.Context, sql string, args ...any) ([]SearchResult, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	results := make([]SearchResult, 0)
	for rows.Next() {
		var (
			r           SearchResult
			userName    pgtype.Text
			channelName pgtype.Text
		)
		if err := rows.Scan(&r.MessageID, &r.Text, &userName, &channelName,
			&r.Similarity, &r.SlackTimestamp); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		r.UserName = userName.String
		r.ChannelName = channelName.String
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}
	return results, nil
}
