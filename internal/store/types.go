package store

import (
	"time"

	"github.com/google/uuid"
)

// Message is an archived Slack message.
type Message struct {
	ID uuid.UUID

	// SlackMessageID is the natural key from Slack; globally unique.
	SlackMessageID string
	ChannelID      string
	ChannelName    string
	UserID         string
	UserName       string

	Text string
	Type string

	// Embedding is nil until the embedding service has processed the
	// message.
	Embedding []float32

	// SlackTimestamp is Slack's high-precision decimal timestamp
	// (e.g. "1726000000.000123"), kept as a string to preserve precision.
	SlackTimestamp string

	CreatedAt time.Time
	UpdatedAt time.Time

	Metadata map[string]any

	IsDeleted bool
}

// NewMessage carries the fields required to archive a message.
type NewMessage struct {
	SlackMessageID string
	ChannelID      string
	ChannelName    string
	UserID         string
	UserName       string
	Text           string
	Type           string // empty defaults to "message"
	Embedding      []float32
	SlackTimestamp string
	// ThreadTS, when set, attributes the message to a conversation thread
	// during ArchiveMessage.
	ThreadTS string
	Metadata map[string]any
}

// SearchResult is one similarity search hit, best matches first.
type SearchResult struct {
	MessageID      uuid.UUID
	Text           string
	UserName       string
	ChannelName    string
	Similarity     float64
	SlackTimestamp string
}

// UserContext is the aggregate profile kept per message author.
type UserContext struct {
	ID       uuid.UUID
	UserID   string
	UserName string

	TotalMessages  int
	FirstMessageAt time.Time
	LastMessageAt  time.Time

	CommunicationStyle string
	TopicsOfInterest   []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConversationThread groups messages sharing a thread timestamp within a
// channel.
type ConversationThread struct {
	ID        uuid.UUID
	ThreadTS  string
	ChannelID string

	Summary          string
	ParticipantCount int
	MessageCount     int

	StartedAt      time.Time
	LastActivityAt time.Time
	CreatedAt      time.Time
}
