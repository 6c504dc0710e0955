package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
)

// DefaultMessageType is applied when NewMessage.Type is empty.
const DefaultMessageType = "message"

// messageCols is the standard SELECT column list for scanMessage.
// slack_timestamp is cast to text to preserve the NUMERIC(16,6) precision.
const messageCols = `id, slack_message_id, channel_id, channel_name, user_id, user_name,
	message_text, message_type, embedding, slack_timestamp::text,
	created_at, updated_at, metadata, is_deleted`

const insertMessageSQL = `INSERT INTO ai_wingman.slack_messages
	(slack_message_id, channel_id, channel_name, user_id, user_name,
	 message_text, message_type, embedding, slack_timestamp, metadata)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10)
	RETURNING id, created_at, updated_at`

// CreateMessage archives one message. A duplicate slack_message_id surfaces
// ErrDuplicate; an embedding of the wrong length fails with ErrDimension
// before anything is written.
func (s *Store) CreateMessage(ctx context.Context, m NewMessage) (*Message, error) {
	if err := validateNewMessage(m); err != nil {
		return nil, err
	}
	msg, err := s.insertMessage(ctx, s.pool, m)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("archived message",
		"slack_message_id", msg.SlackMessageID, "channel", msg.ChannelID)
	return msg, nil
}

// CreateMessages bulk-inserts messages in a single transaction. All rows are
// written or none: the first failure (including a duplicate) rolls the whole
// batch back.
func (s *Store) CreateMessages(ctx context.Context, msgs []NewMessage) (int, error) {
	for i, m := range msgs {
		if err := validateNewMessage(m); err != nil {
			return 0, fmt.Errorf("message %d: %w", i, err)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	for i, m := range msgs {
		if _, err := s.insertMessage(ctx, tx, m); err != nil {
			return 0, fmt.Errorf("message %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing bulk insert: %w", err)
	}

	s.logger.Debug("bulk archived messages", "count", len(msgs))
	return len(msgs), nil
}

// insertMessage writes one validated message using the provided querier
// (pool or tx).
func (*Store) insertMessage(ctx context.Context, q querier, m NewMessage) (*Message, error) {
	typ := m.Type
	if typ == "" {
		typ = DefaultMessageType
	}

	metadataJSON := []byte("{}")
	if m.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(m.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshaling metadata: %w", err)
		}
	}

	msg := &Message{
		SlackMessageID: m.SlackMessageID,
		ChannelID:      m.ChannelID,
		ChannelName:    m.ChannelName,
		UserID:         m.UserID,
		UserName:       m.UserName,
		Text:           m.Text,
		Type:           typ,
		Embedding:      m.Embedding,
		SlackTimestamp: m.SlackTimestamp,
		Metadata:       m.Metadata,
	}

	err := q.QueryRow(ctx, insertMessageSQL,
		m.SlackMessageID, m.ChannelID, textOrNil(m.ChannelName),
		m.UserID, textOrNil(m.UserName),
		m.Text, typ, vectorOrNil(m.Embedding), m.SlackTimestamp, metadataJSON,
	).Scan(&msg.ID, &msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: slack_message_id %q", ErrDuplicate, m.SlackMessageID)
		}
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	return msg, nil
}

// MessageByID returns one message by internal identifier, including
// soft-deleted rows so callers can observe the delete flag.
func (s *Store) MessageByID(ctx context.Context, id uuid.UUID) (*Message, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+messageCols+` FROM ai_wingman.slack_messages WHERE id = $1`, id)
	return scanMessage(row)
}

// MessageBySlackID returns one message by its Slack natural key.
func (s *Store) MessageBySlackID(ctx context.Context, slackMessageID string) (*Message, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+messageCols+` FROM ai_wingman.slack_messages WHERE slack_message_id = $1`,
		slackMessageID)
	return scanMessage(row)
}

// ListOptions tune listing queries.
type ListOptions struct {
	// Limit caps results; zero means DefaultListLimit.
	Limit int

	// IncludeDeleted also returns soft-deleted rows.
	IncludeDeleted bool
}

// MessagesByUser lists a user's messages, newest first. Soft-deleted rows
// are excluded unless opts.IncludeDeleted is set.
func (s *Store) MessagesByUser(ctx context.Context, userID string, opts ListOptions) ([]*Message, error) {
	return s.listMessages(ctx, "user_id", userID, opts)
}

// MessagesByChannel lists a channel's messages, newest first.
func (s *Store) MessagesByChannel(ctx context.Context, channelID string, opts ListOptions) ([]*Message, error) {
	return s.listMessages(ctx, "channel_id", channelID, opts)
}

// listMessages runs a single-column equality listing. col is always one of
// the fixed identifiers above, never caller input.
func (s *Store) listMessages(ctx context.Context, col, value string, opts ListOptions) ([]*Message, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	sql := `SELECT ` + messageCols + ` FROM ai_wingman.slack_messages WHERE ` + col + ` = $1`
	if !opts.IncludeDeleted {
		sql += ` AND NOT is_deleted`
	}
	sql += ` ORDER BY slack_timestamp DESC LIMIT $2`

	rows, err := s.pool.Query(ctx, sql, value, limit)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return msgs, nil
}

// CountFilter narrows CountMessages.
type CountFilter struct {
	UserID         string
	ChannelID      string
	IncludeDeleted bool
}

// CountMessages counts archived messages matching the filter.
func (s *Store) CountMessages(ctx context.Context, f CountFilter) (int64, error) {
	sql := `SELECT COUNT(*) FROM ai_wingman.slack_messages WHERE TRUE`
	var args []any
	if f.UserID != "" {
		args = append(args, f.UserID)
		sql += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if f.ChannelID != "" {
		args = append(args, f.ChannelID)
		sql += fmt.Sprintf(" AND channel_id = $%d", len(args))
	}
	if !f.IncludeDeleted {
		sql += " AND NOT is_deleted"
	}

	var count int64
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return count, nil
}

// UpdateEmbedding attaches or replaces the embedding of an existing message.
// Re-runnable; no other column is touched (updated_at moves via trigger).
func (s *Store) UpdateEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	if embedding == nil {
		return fmt.Errorf("%w: embedding is required", ErrDimension)
	}
	if err := checkDimension(embedding); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE ai_wingman.slack_messages SET embedding = $1 WHERE id = $2`,
		pgvector.NewVector(embedding), id)
	if err != nil {
		return fmt.Errorf("updating embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: message %s", ErrNotFound, id)
	}

	s.logger.Debug("updated embedding", "id", id)
	return nil
}

// SoftDeleteMessage marks a message deleted, excluding it from lookups and
// similarity search. Idempotent: deleting an already-deleted or missing row
// is a no-op reporting false.
func (s *Store) SoftDeleteMessage(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ai_wingman.slack_messages SET is_deleted = TRUE
		 WHERE id = $1 AND NOT is_deleted`, id)
	if err != nil {
		return false, fmt.Errorf("soft-deleting message: %w", err)
	}

	deleted := tag.RowsAffected() > 0
	if deleted {
		s.logger.Debug("soft-deleted message", "id", id)
	}
	return deleted, nil
}

// validateNewMessage checks required fields before any database work.
func validateNewMessage(m NewMessage) error {
	if m.SlackMessageID == "" {
		return fmt.Errorf("slack message ID is required")
	}
	if m.ChannelID == "" {
		return fmt.Errorf("channel ID is required")
	}
	if m.UserID == "" {
		return fmt.Errorf("user ID is required")
	}
	if m.Text == "" {
		return fmt.Errorf("message text is required")
	}
	if err := validateSlackTS(m.SlackTimestamp); err != nil {
		return err
	}
	if m.ThreadTS != "" {
		if err := validateSlackTS(m.ThreadTS); err != nil {
			return err
		}
	}
	return checkDimension(m.Embedding)
}

// validateSlackTS rejects timestamps that would fail the NUMERIC cast.
func validateSlackTS(ts string) error {
	if ts == "" {
		return fmt.Errorf("slack timestamp is required")
	}
	if _, err := strconv.ParseFloat(ts, 64); err != nil {
		return fmt.Errorf("invalid slack timestamp %q: %w", ts, err)
	}
	return nil
}

// textOrNil maps an empty string to SQL NULL for nullable varchar columns.
func textOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// vectorOrNil maps a nil embedding to SQL NULL.
func vectorOrNil(embedding []float32) any {
	if embedding == nil {
		return nil
	}
	return pgvector.NewVector(embedding)
}

// scanMessage reads one row in messageCols order.
func scanMessage(row pgx.Row) (*Message, error) {
	var (
		m           Message
		channelName pgtype.Text
		userName    pgtype.Text
		msgType     pgtype.Text
		embedding   *pgvector.Vector
		metadata    []byte
	)

	err := row.Scan(&m.ID, &m.SlackMessageID, &m.ChannelID, &channelName,
		&m.UserID, &userName, &m.Text, &msgType, &embedding, &m.SlackTimestamp,
		&m.CreatedAt, &m.UpdatedAt, &metadata, &m.IsDeleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning message: %w", err)
	}

	m.ChannelName = channelName.String
	m.UserName = userName.String
	m.Type = msgType.String
	if embedding != nil {
		m.Embedding = embedding.Slice()
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, fmt.Errorf("parsing metadata: %w", err)
		}
	}

	return &m, nil
}
