package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ArchiveMessage stores a message and maintains the derived aggregates in a
// single transaction: the author's context is created lazily and its
// counters advance, and when the message belongs to a thread the thread row
// is created or bumped. Either everything commits or nothing does.
//
// A duplicate slack_message_id rolls the whole transaction back with
// ErrDuplicate, leaving the aggregates untouched.
func (s *Store) ArchiveMessage(ctx context.Context, m NewMessage) (*Message, error) {
	if err := validateNewMessage(m); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	msg, err := s.insertMessage(ctx, tx, m)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.recordUserActivity(ctx, tx, m.UserID, m.UserName, now); err != nil {
		return nil, err
	}
	if m.ThreadTS != "" {
		if err := s.recordThreadActivity(ctx, tx, m.ThreadTS, m.ChannelID, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing archive transaction: %w", err)
	}

	s.logger.Debug("archived message with aggregates",
		"slack_message_id", msg.SlackMessageID,
		"user_id", m.UserID,
		"thread", m.ThreadTS != "")
	return msg, nil
}
