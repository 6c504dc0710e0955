package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ai-wingman/wingman/internal/log"
	"github.com/ai-wingman/wingman/internal/testutil"
)

// unitVec returns a 384-dimensional unit vector along the given axis.
// Distinct axes are orthogonal, so their cosine similarity is exactly 0.
func unitVec(axis int) []float32 {
	v := make([]float32, VectorDimension)
	v[axis] = 1
	return v
}

func newTestMessage(n int) NewMessage {
	ts := fmt.Sprintf("1726000%03d.000%03d", n, n)
	return NewMessage{
		SlackMessageID: ts,
		ChannelID:      "C001",
		ChannelName:    "general",
		UserID:         "U001",
		UserName:       "Alice",
		Text:           fmt.Sprintf("message number %d", n),
		SlackTimestamp: ts,
	}
}

func setupStore(t *testing.T) (*Store, *testutil.TestDB, func()) {
	t.Helper()
	tdb, cleanup := testutil.SetupTestDB(t)
	s, err := New(tdb.Pool, log.NewNop())
	if err != nil {
		cleanup()
		t.Fatalf("New: %v", err)
	}
	return s, tdb, cleanup
}

func TestMessageLifecycle_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	s, tdb, cleanup := setupStore(t)
	defer cleanup()

	m := newTestMessage(1)
	m.Embedding = unitVec(0)
	m.Metadata = map[string]any{"team": "platform"}

	created, err := s.CreateMessage(ctx, m)
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Error("CreateMessage returned zero ID")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("CreateMessage returned zero timestamps")
	}

	t.Run("duplicate insert fails and leaves one row", func(t *testing.T) {
		_, err := s.CreateMessage(ctx, m)
		if !errors.Is(err, ErrDuplicate) {
			t.Fatalf("second CreateMessage = %v, want ErrDuplicate", err)
		}
		count, err := s.CountMessages(ctx, CountFilter{})
		if err != nil {
			t.Fatalf("CountMessages: %v", err)
		}
		if count != 1 {
			t.Errorf("count after duplicate = %d, want 1", count)
		}
	})

	t.Run("lookup by id and slack id", func(t *testing.T) {
		got, err := s.MessageByID(ctx, created.ID)
		if err != nil {
			t.Fatalf("MessageByID: %v", err)
		}
		if got.SlackMessageID != m.SlackMessageID {
			t.Errorf("SlackMessageID = %q, want %q", got.SlackMessageID, m.SlackMessageID)
		}
		if got.SlackTimestamp != m.SlackTimestamp {
			t.Errorf("SlackTimestamp = %q, want %q", got.SlackTimestamp, m.SlackTimestamp)
		}
		if got.Metadata["team"] != "platform" {
			t.Errorf("Metadata = %v, want team=platform", got.Metadata)
		}
		if len(got.Embedding) != VectorDimension {
			t.Errorf("Embedding length = %d, want %d", len(got.Embedding), VectorDimension)
		}

		bySlack, err := s.MessageBySlackID(ctx, m.SlackMessageID)
		if err != nil {
			t.Fatalf("MessageBySlackID: %v", err)
		}
		if bySlack.ID != created.ID {
			t.Errorf("MessageBySlackID ID = %s, want %s", bySlack.ID, created.ID)
		}

		if _, err := s.MessageByID(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
			t.Errorf("MessageByID(random) = %v, want ErrNotFound", err)
		}
	})

	t.Run("updated_at advances via trigger", func(t *testing.T) {
		before, err := s.MessageByID(ctx, created.ID)
		if err != nil {
			t.Fatalf("MessageByID: %v", err)
		}

		if err := s.UpdateEmbedding(ctx, created.ID, unitVec(2)); err != nil {
			t.Fatalf("UpdateEmbedding: %v", err)
		}

		after, err := s.MessageByID(ctx, created.ID)
		if err != nil {
			t.Fatalf("MessageByID: %v", err)
		}
		if after.UpdatedAt.Before(before.UpdatedAt) {
			t.Errorf("updated_at went backwards: %v -> %v", before.UpdatedAt, after.UpdatedAt)
		}
		if after.Embedding[2] != 1 {
			t.Error("embedding not replaced")
		}
	})

	t.Run("updated_at cannot be set by callers", func(t *testing.T) {
		// Even a direct UPDATE naming updated_at is overruled by the
		// trigger, which is the point of enforcing it in the store layer.
		_, err := tdb.Pool.Exec(ctx,
			`UPDATE ai_wingman.slack_messages
			 SET updated_at = '2000-01-01T00:00:00Z' WHERE id = $1`, created.ID)
		if err != nil {
			t.Fatalf("direct update: %v", err)
		}
		got, err := s.MessageByID(ctx, created.ID)
		if err != nil {
			t.Fatalf("MessageByID: %v", err)
		}
		if got.UpdatedAt.Year() == 2000 {
			t.Error("caller-supplied updated_at was persisted; trigger should override it")
		}
	})

	t.Run("update embedding on missing row", func(t *testing.T) {
		err := s.UpdateEmbedding(ctx, uuid.New(), unitVec(0))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("UpdateEmbedding(random) = %v, want ErrNotFound", err)
		}
	})

	t.Run("database rejects wrong dimension directly", func(t *testing.T) {
		_, err := tdb.Pool.Exec(ctx,
			`UPDATE ai_wingman.slack_messages SET embedding = '[1,0,0]'::vector WHERE id = $1`,
			created.ID)
		if err == nil {
			t.Error("3-dimensional vector accepted by vector(384) column")
		}
	})

	t.Run("soft delete is idempotent", func(t *testing.T) {
		deleted, err := s.SoftDeleteMessage(ctx, created.ID)
		if err != nil {
			t.Fatalf("SoftDeleteMessage: %v", err)
		}
		if !deleted {
			t.Error("first SoftDeleteMessage = false, want true")
		}

		again, err := s.SoftDeleteMessage(ctx, created.ID)
		if err != nil {
			t.Fatalf("second SoftDeleteMessage: %v", err)
		}
		if again {
			t.Error("second SoftDeleteMessage = true, want false (no-op)")
		}

		missing, err := s.SoftDeleteMessage(ctx, uuid.New())
		if err != nil {
			t.Fatalf("SoftDeleteMessage(random): %v", err)
		}
		if missing {
			t.Error("SoftDeleteMessage(random) = true, want false")
		}
	})

	t.Run("deleted rows excluded from listings and counts", func(t *testing.T) {
		byUser, err := s.MessagesByUser(ctx, "U001", ListOptions{})
		if err != nil {
			t.Fatalf("MessagesByUser: %v", err)
		}
		if len(byUser) != 0 {
			t.Errorf("MessagesByUser returned %d deleted rows", len(byUser))
		}

		withDeleted, err := s.MessagesByUser(ctx, "U001", ListOptions{IncludeDeleted: true})
		if err != nil {
			t.Fatalf("MessagesByUser(include deleted): %v", err)
		}
		if len(withDeleted) != 1 {
			t.Errorf("MessagesByUser(include deleted) = %d rows, want 1", len(withDeleted))
		}
		if !withDeleted[0].IsDeleted {
			t.Error("IsDeleted flag not set on returned row")
		}

		count, err := s.CountMessages(ctx, CountFilter{UserID: "U001"})
		if err != nil {
			t.Fatalf("CountMessages: %v", err)
		}
		if count != 0 {
			t.Errorf("CountMessages excluding deleted = %d, want 0", count)
		}
	})
}

func TestBulkCreate_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	s, _, cleanup := setupStore(t)
	defer cleanup()

	batch := []NewMessage{newTestMessage(10), newTestMessage(11), newTestMessage(12)}
	n, err := s.CreateMessages(ctx, batch)
	if err != nil {
		t.Fatalf("CreateMessages: %v", err)
	}
	if n != 3 {
		t.Errorf("CreateMessages = %d, want 3", n)
	}

	// A batch containing a duplicate rolls back entirely.
	_, err = s.CreateMessages(ctx, []NewMessage{newTestMessage(13), newTestMessage(10)})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("CreateMessages with duplicate = %v, want ErrDuplicate", err)
	}

	count, err := s.CountMessages(ctx, CountFilter{})
	if err != nil {
		t.Fatalf("CountMessages: %v", err)
	}
	if count != 3 {
		t.Errorf("count after failed batch = %d, want 3 (batch rolled back)", count)
	}
}

func TestSearchSimilar_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	s, tdb, cleanup := setupStore(t)
	defer cleanup()

	// M1 along axis 0, M2 along axis 1: orthogonal, cosine similarity 0.
	m1 := newTestMessage(1)
	m1.Text = "vector search with pgvector is great"
	m1.Embedding = unitVec(0)
	created1, err := s.CreateMessage(ctx, m1)
	if err != nil {
		t.Fatalf("CreateMessage m1: %v", err)
	}

	m2 := newTestMessage(2)
	m2.UserID = "U002"
	m2.UserName = "Bob"
	m2.ChannelID = "C002"
	m2.ChannelName = "random"
	m2.Text = "coffee at three"
	m2.Embedding = unitVec(1)
	if _, err := s.CreateMessage(ctx, m2); err != nil {
		t.Fatalf("CreateMessage m2: %v", err)
	}

	// A message without an embedding must never be searchable.
	m3 := newTestMessage(3)
	if _, err := s.CreateMessage(ctx, m3); err != nil {
		t.Fatalf("CreateMessage m3: %v", err)
	}

	t.Run("orthogonal vectors scenario", func(t *testing.T) {
		results, err := s.SearchSimilar(ctx, unitVec(0), WithThreshold(0.9))
		if err != nil {
			t.Fatalf("SearchSimilar: %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("results = %d, want exactly 1", len(results))
		}
		if results[0].MessageID != created1.ID {
			t.Errorf("top result = %s, want %s", results[0].MessageID, created1.ID)
		}
		if results[0].Similarity < 0.99 {
			t.Errorf("similarity = %v, want ~1.0", results[0].Similarity)
		}
		if results[0].UserName != "Alice" || results[0].ChannelName != "general" {
			t.Errorf("result names = %q/%q, want Alice/general",
				results[0].UserName, results[0].ChannelName)
		}
	})

	t.Run("threshold zero returns nearest neighbors", func(t *testing.T) {
		results, err := s.SearchSimilar(ctx, unitVec(0), WithThreshold(0))
		if err != nil {
			t.Fatalf("SearchSimilar: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("results = %d, want 2 (m3 has no embedding)", len(results))
		}
		if results[0].MessageID != created1.ID {
			t.Error("best match not first")
		}
		if results[0].Similarity < results[1].Similarity {
			t.Error("results not ordered by descending similarity")
		}
	})

	t.Run("threshold monotonicity", func(t *testing.T) {
		thresholds := []float64{0, 0.3, 0.7, 0.95}
		prevCount := MaxSearchLimit + 1
		var prevIDs []uuid.UUID
		for _, th := range thresholds {
			results, err := s.SearchSimilar(ctx, unitVec(0), WithThreshold(th), WithLimit(10))
			if err != nil {
				t.Fatalf("SearchSimilar(threshold %v): %v", th, err)
			}
			if len(results) > prevCount {
				t.Errorf("raising threshold to %v increased results: %d > %d",
					th, len(results), prevCount)
			}
			// Retained results keep their order from the looser search.
			for i, r := range results {
				if i < len(prevIDs) && prevIDs[i] != r.MessageID {
					t.Errorf("threshold %v reordered results at %d", th, i)
				}
			}
			prevCount = len(results)
			prevIDs = prevIDs[:0]
			for _, r := range results {
				prevIDs = append(prevIDs, r.MessageID)
			}
		}
	})

	t.Run("limit respected", func(t *testing.T) {
		results, err := s.SearchSimilar(ctx, unitVec(0), WithThreshold(0), WithLimit(1))
		if err != nil {
			t.Fatalf("SearchSimilar: %v", err)
		}
		if len(results) != 1 {
			t.Errorf("results = %d, want 1", len(results))
		}
	})

	t.Run("no matches is empty not error", func(t *testing.T) {
		results, err := s.SearchSimilar(ctx, unitVec(5), WithThreshold(0.9))
		if err != nil {
			t.Fatalf("SearchSimilar: %v", err)
		}
		if len(results) != 0 {
			t.Errorf("results = %d, want 0", len(results))
		}
	})

	t.Run("scoped by user and channel", func(t *testing.T) {
		results, err := s.SearchSimilar(ctx, unitVec(0), WithThreshold(0), WithUser("U002"))
		if err != nil {
			t.Fatalf("SearchSimilar(user): %v", err)
		}
		if len(results) != 1 || results[0].UserName != "Bob" {
			t.Errorf("user-scoped results = %+v, want only Bob's message", results)
		}

		results, err = s.SearchSimilar(ctx, unitVec(0), WithThreshold(0), WithChannel("C001"))
		if err != nil {
			t.Fatalf("SearchSimilar(channel): %v", err)
		}
		if len(results) != 1 || results[0].MessageID != created1.ID {
			t.Errorf("channel-scoped results = %+v, want only the C001 message", results)
		}
	})

	t.Run("sql function defaults", func(t *testing.T) {
		// Threshold and limit defaults live in the SQL function itself.
		rows, err := tdb.Pool.Query(ctx,
			`SELECT message_id FROM ai_wingman.search_similar_messages($1::vector)`,
			vectorOrNil(unitVec(0)))
		if err != nil {
			t.Fatalf("calling search_similar_messages with defaults: %v", err)
		}
		defer rows.Close()
		var ids []uuid.UUID
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				t.Fatalf("scan: %v", err)
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			t.Fatalf("rows: %v", err)
		}
		if len(ids) != 1 || ids[0] != created1.ID {
			t.Errorf("default-argument search = %v, want [%s]", ids, created1.ID)
		}
	})

	t.Run("soft-deleted rows never surface", func(t *testing.T) {
		if _, err := s.SoftDeleteMessage(ctx, created1.ID); err != nil {
			t.Fatalf("SoftDeleteMessage: %v", err)
		}
		results, err := s.SearchSimilar(ctx, unitVec(0), WithThreshold(0), WithLimit(10))
		if err != nil {
			t.Fatalf("SearchSimilar: %v", err)
		}
		for _, r := range results {
			if r.MessageID == created1.ID {
				t.Error("soft-deleted message returned by similarity search")
			}
		}
	})
}

func TestUserContextsAndThreads_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	s, _, cleanup := setupStore(t)
	defer cleanup()

	threadTS := "1726000001.000001"

	first := newTestMessage(20)
	first.ThreadTS = threadTS
	if _, err := s.ArchiveMessage(ctx, first); err != nil {
		t.Fatalf("ArchiveMessage: %v", err)
	}

	second := newTestMessage(21)
	second.ThreadTS = threadTS
	if _, err := s.ArchiveMessage(ctx, second); err != nil {
		t.Fatalf("ArchiveMessage: %v", err)
	}

	t.Run("user context created lazily and counted", func(t *testing.T) {
		uc, err := s.UserContextByID(ctx, "U001")
		if err != nil {
			t.Fatalf("UserContextByID: %v", err)
		}
		if uc.TotalMessages != 2 {
			t.Errorf("TotalMessages = %d, want 2", uc.TotalMessages)
		}
		if uc.UserName != "Alice" {
			t.Errorf("UserName = %q, want Alice", uc.UserName)
		}
		if uc.FirstMessageAt.IsZero() || uc.LastMessageAt.IsZero() {
			t.Error("first/last message timestamps not maintained")
		}
		if uc.LastMessageAt.Before(uc.FirstMessageAt) {
			t.Error("last_message_at before first_message_at")
		}
	})

	t.Run("thread created and bumped", func(t *testing.T) {
		th, err := s.ThreadByTS(ctx, threadTS)
		if err != nil {
			t.Fatalf("ThreadByTS: %v", err)
		}
		if th.MessageCount != 2 {
			t.Errorf("MessageCount = %d, want 2", th.MessageCount)
		}
		if th.ChannelID != "C001" {
			t.Errorf("ChannelID = %q, want C001", th.ChannelID)
		}
		if th.StartedAt.IsZero() || th.LastActivityAt.IsZero() {
			t.Error("thread activity timestamps not maintained")
		}
	})

	t.Run("duplicate archive leaves aggregates untouched", func(t *testing.T) {
		_, err := s.ArchiveMessage(ctx, first)
		if !errors.Is(err, ErrDuplicate) {
			t.Fatalf("ArchiveMessage(duplicate) = %v, want ErrDuplicate", err)
		}
		uc, err := s.UserContextByID(ctx, "U001")
		if err != nil {
			t.Fatalf("UserContextByID: %v", err)
		}
		if uc.TotalMessages != 2 {
			t.Errorf("TotalMessages after failed archive = %d, want 2 (rolled back)", uc.TotalMessages)
		}
		th, err := s.ThreadByTS(ctx, threadTS)
		if err != nil {
			t.Fatalf("ThreadByTS: %v", err)
		}
		if th.MessageCount != 2 {
			t.Errorf("MessageCount after failed archive = %d, want 2 (rolled back)", th.MessageCount)
		}
	})

	t.Run("get or create user context", func(t *testing.T) {
		uc, err := s.GetOrCreateUserContext(ctx, "U099", "Zoe")
		if err != nil {
			t.Fatalf("GetOrCreateUserContext: %v", err)
		}
		if uc.TotalMessages != 0 {
			t.Errorf("new context TotalMessages = %d, want 0", uc.TotalMessages)
		}

		again, err := s.GetOrCreateUserContext(ctx, "U099", "")
		if err != nil {
			t.Fatalf("GetOrCreateUserContext again: %v", err)
		}
		if again.ID != uc.ID {
			t.Error("GetOrCreateUserContext created a second row")
		}
	})

	t.Run("update user profile", func(t *testing.T) {
		err := s.UpdateUserProfile(ctx, "U001", "concise, emoji-heavy",
			[]string{"databases", "coffee"})
		if err != nil {
			t.Fatalf("UpdateUserProfile: %v", err)
		}
		uc, err := s.UserContextByID(ctx, "U001")
		if err != nil {
			t.Fatalf("UserContextByID: %v", err)
		}
		if uc.CommunicationStyle != "concise, emoji-heavy" {
			t.Errorf("CommunicationStyle = %q", uc.CommunicationStyle)
		}
		if len(uc.TopicsOfInterest) != 2 || uc.TopicsOfInterest[0] != "databases" {
			t.Errorf("TopicsOfInterest = %v", uc.TopicsOfInterest)
		}

		if err := s.UpdateUserProfile(ctx, "UNOBODY", "", nil); !errors.Is(err, ErrNotFound) {
			t.Errorf("UpdateUserProfile(missing) = %v, want ErrNotFound", err)
		}
	})

	t.Run("get or create thread", func(t *testing.T) {
		th, err := s.GetOrCreateThread(ctx, "1726000002.000001", "C009")
		if err != nil {
			t.Fatalf("GetOrCreateThread: %v", err)
		}
		if th.MessageCount != 0 {
			t.Errorf("new thread MessageCount = %d, want 0", th.MessageCount)
		}

		again, err := s.GetOrCreateThread(ctx, "1726000002.000001", "C009")
		if err != nil {
			t.Fatalf("GetOrCreateThread again: %v", err)
		}
		if again.ID != th.ID {
			t.Error("GetOrCreateThread created a second row")
		}

		// The existing thread is returned untouched.
		existing, err := s.GetOrCreateThread(ctx, threadTS, "C001")
		if err != nil {
			t.Fatalf("GetOrCreateThread(existing): %v", err)
		}
		if existing.MessageCount != 2 {
			t.Errorf("existing thread MessageCount = %d, want 2", existing.MessageCount)
		}
	})

	t.Run("update thread summary", func(t *testing.T) {
		if err := s.UpdateThreadSummary(ctx, threadTS, "planning the release"); err != nil {
			t.Fatalf("UpdateThreadSummary: %v", err)
		}
		th, err := s.ThreadByTS(ctx, threadTS)
		if err != nil {
			t.Fatalf("ThreadByTS: %v", err)
		}
		if th.Summary != "planning the release" {
			t.Errorf("Summary = %q", th.Summary)
		}

		err = s.UpdateThreadSummary(ctx, "9999999999.000001", "nope")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("UpdateThreadSummary(missing) = %v, want ErrNotFound", err)
		}
	})

	t.Run("record activity outside a transaction", func(t *testing.T) {
		now := time.Now().UTC()
		if err := s.RecordUserActivity(ctx, "U050", "Eve", now); err != nil {
			t.Fatalf("RecordUserActivity: %v", err)
		}
		uc, err := s.UserContextByID(ctx, "U050")
		if err != nil {
			t.Fatalf("UserContextByID: %v", err)
		}
		if uc.TotalMessages != 1 {
			t.Errorf("TotalMessages = %d, want 1", uc.TotalMessages)
		}

		if err := s.RecordThreadActivity(ctx, "1726000003.000001", "C001", now); err != nil {
			t.Fatalf("RecordThreadActivity: %v", err)
		}
		th, err := s.ThreadByTS(ctx, "1726000003.000001")
		if err != nil {
			t.Fatalf("ThreadByTS: %v", err)
		}
		if th.MessageCount != 1 {
			t.Errorf("MessageCount = %d, want 1", th.MessageCount)
		}
	})

	t.Run("missing thread lookup", func(t *testing.T) {
		_, err := s.ThreadByTS(ctx, "1111111111.000001")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("ThreadByTS(missing) = %v, want ErrNotFound", err)
		}
	})
}
