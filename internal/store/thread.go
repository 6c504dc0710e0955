package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const threadCols = `id, thread_ts::text, channel_id, summary,
	participant_count, message_count, started_at, last_activity_at, created_at`

// recordThreadActivitySQL creates the thread row on first observation and
// bumps its counters as later messages join, in one statement.
const recordThreadActivitySQL = `INSERT INTO ai_wingman.conversation_threads
	(thread_ts, channel_id, message_count, participant_count, started_at, last_activity_at)
	VALUES ($1::numeric, $2, 1, 1, $3, $3)
	ON CONFLICT (thread_ts) DO UPDATE SET
		message_count = ai_wingman.conversation_threads.message_count + 1,
		last_activity_at = EXCLUDED.last_activity_at`

// ThreadByTS returns the thread for a Slack thread timestamp.
func (s *Store) ThreadByTS(ctx context.Context, threadTS string) (*ConversationThread, error) {
	if err := validateSlackTS(threadTS); err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+threadCols+` FROM ai_wingman.conversation_threads WHERE thread_ts = $1::numeric`,
		threadTS)
	return scanThread(row)
}

// GetOrCreateThread returns the thread for a timestamp, creating an empty
// row if this is the first time the thread is observed.
func (s *Store) GetOrCreateThread(ctx context.Context, threadTS, channelID string) (*ConversationThread, error) {
	if err := validateSlackTS(threadTS); err != nil {
		return nil, err
	}
	if channelID == "" {
		return nil, fmt.Errorf("channel ID is required")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO ai_wingman.conversation_threads (thread_ts, channel_id)
		 VALUES ($1::numeric, $2)
		 ON CONFLICT (thread_ts) DO NOTHING`,
		threadTS, channelID)
	if err != nil {
		return nil, fmt.Errorf("creating thread: %w", err)
	}

	return s.ThreadByTS(ctx, threadTS)
}

// RecordThreadActivity registers a message joining a thread: the row is
// created the first time the thread timestamp is seen, and the message count
// and last-activity time advance on each call.
func (s *Store) RecordThreadActivity(ctx context.Context, threadTS, channelID string, at time.Time) error {
	if err := validateSlackTS(threadTS); err != nil {
		return err
	}
	if channelID == "" {
		return fmt.Errorf("channel ID is required")
	}
	return s.recordThreadActivity(ctx, s.pool, threadTS, channelID, at)
}

func (*Store) recordThreadActivity(ctx context.Context, q querier, threadTS, channelID string, at time.Time) error {
	if _, err := q.Exec(ctx, recordThreadActivitySQL, threadTS, channelID, at); err != nil {
		return fmt.Errorf("recording thread activity: %w", err)
	}
	return nil
}

// UpdateThreadSummary sets the free-text summary of an existing thread.
func (s *Store) UpdateThreadSummary(ctx context.Context, threadTS, summary string) error {
	if err := validateSlackTS(threadTS); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE ai_wingman.conversation_threads SET summary = $1 WHERE thread_ts = $2::numeric`,
		textOrNil(summary), threadTS)
	if err != nil {
		return fmt.Errorf("updating thread summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: thread %q", ErrNotFound, threadTS)
	}
	return nil
}

func scanThread(row pgx.Row) (*ConversationThread, error) {
	var (
		th       ConversationThread
		summary  pgtype.Text
		started  pgtype.Timestamptz
		lastSeen pgtype.Timestamptz
	)

	err := row.Scan(&th.ID, &th.ThreadTS, &th.ChannelID, &summary,
		&th.ParticipantCount, &th.MessageCount, &started, &lastSeen, &th.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning thread: %w", err)
	}

	th.Summary = summary.String
	if started.Valid {
		th.StartedAt = started.Time
	}
	if lastSeen.Valid {
		th.LastActivityAt = lastSeen.Time
	}

	return &th, nil
}
