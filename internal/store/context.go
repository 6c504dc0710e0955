package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const userContextCols = `id, user_id, user_name, total_messages,
	first_message_at, last_message_at, communication_style, topics_of_interest,
	created_at, updated_at`

// recordUserActivitySQL lazily creates the per-author profile and bumps its
// counters in one statement, so concurrent archivers cannot race the
// create-then-update sequence.
const recordUserActivitySQL = `INSERT INTO ai_wingman.user_contexts
	(user_id, user_name, total_messages, first_message_at, last_message_at)
	VALUES ($1, $2, 1, $3, $3)
	ON CONFLICT (user_id) DO UPDATE SET
		total_messages = ai_wingman.user_contexts.total_messages + 1,
		last_message_at = EXCLUDED.last_message_at,
		first_message_at = COALESCE(ai_wingman.user_contexts.first_message_at, EXCLUDED.first_message_at),
		user_name = COALESCE(EXCLUDED.user_name, ai_wingman.user_contexts.user_name)`

// UserContextByID returns the aggregate profile for a user.
func (s *Store) UserContextByID(ctx context.Context, userID string) (*UserContext, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userContextCols+` FROM ai_wingman.user_contexts WHERE user_id = $1`,
		userID)
	return scanUserContext(row)
}

// GetOrCreateUserContext returns the profile for a user, creating an empty
// one if this is the first time the user is observed.
func (s *Store) GetOrCreateUserContext(ctx context.Context, userID, userName string) (*UserContext, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO ai_wingman.user_contexts (user_id, user_name)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, textOrNil(userName))
	if err != nil {
		return nil, fmt.Errorf("creating user context: %w", err)
	}

	return s.UserContextByID(ctx, userID)
}

// RecordUserActivity increments a user's message count and maintains the
// first/last message timestamps, creating the profile lazily when absent.
func (s *Store) RecordUserActivity(ctx context.Context, userID, userName string, at time.Time) error {
	if userID == "" {
		return fmt.Errorf("user ID is required")
	}
	return s.recordUserActivity(ctx, s.pool, userID, userName, at)
}

func (*Store) recordUserActivity(ctx context.Context, q querier, userID, userName string, at time.Time) error {
	if _, err := q.Exec(ctx, recordUserActivitySQL, userID, textOrNil(userName), at); err != nil {
		return fmt.Errorf("recording user activity: %w", err)
	}
	return nil
}

// UpdateUserProfile sets the inferred communication style and topics of
// interest for an existing profile.
func (s *Store) UpdateUserProfile(ctx context.Context, userID, communicationStyle string, topics []string) error {
	if topics == nil {
		topics = []string{}
	}
	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		return fmt.Errorf("marshaling topics: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE ai_wingman.user_contexts
		 SET communication_style = $1, topics_of_interest = $2
		 WHERE user_id = $3`,
		textOrNil(communicationStyle), topicsJSON, userID)
	if err != nil {
		return fmt.Errorf("updating user profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user context %q", ErrNotFound, userID)
	}

	s.logger.Debug("updated user profile", "user_id", userID, "topics", len(topics))
	return nil
}

func scanUserContext(row pgx.Row) (*UserContext, error) {
	var (
		uc       UserContext
		userName pgtype.Text
		style    pgtype.Text
		first    pgtype.Timestamptz
		last     pgtype.Timestamptz
		topics   []byte
	)

	err := row.Scan(&uc.ID, &uc.UserID, &userName, &uc.TotalMessages,
		&first, &last, &style, &topics, &uc.CreatedAt, &uc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning user context: %w", err)
	}

	uc.UserName = userName.String
	uc.CommunicationStyle = style.String
	if first.Valid {
		uc.FirstMessageAt = first.Time
	}
	if last.Valid {
		uc.LastMessageAt = last.Time
	}
	if len(topics) > 0 {
		if err := json.Unmarshal(topics, &uc.TopicsOfInterest); err != nil {
			return nil, fmt.Errorf("parsing topics of interest: %w", err)
		}
	}

	return &uc, nil
}
