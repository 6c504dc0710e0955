package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/ai-wingman/wingman/db"
	"github.com/ai-wingman/wingman/internal/database"
	"github.com/ai-wingman/wingman/internal/observability"
	"github.com/ai-wingman/wingman/internal/store"
)

// sampleMessage is one row of demo data.
type sampleMessage struct {
	userID, userName       string
	channelID, channelName string
	text                   string
}

var sampleMessages = []sampleMessage{
	{"U001", "Alice", "C001", "general", "Hey team! How's everyone doing today?"},
	{"U002", "Bob", "C001", "general", "Working on the new feature for vector search. It's pretty cool!"},
	{"U001", "Alice", "C002", "random", "Anyone want to grab coffee later?"},
	{"U003", "Charlie", "C001", "general", "Just pushed the database migrations. Looking good!"},
	{"U002", "Bob", "C003", "tech-talk", "PostgreSQL with pgvector is amazing for semantic search."},
	{"U003", "Charlie", "C003", "tech-talk", "Yeah, the HNSW index makes similarity search super fast!"},
	{"U001", "Alice", "C002", "random", "Coffee at 3pm sounds perfect!"},
	{"U004", "Diana", "C001", "general", "Great work everyone! The project is coming along nicely."},
}

// demoEmbedding generates a deterministic 384-dimensional vector for demo
// purposes. Real embeddings come from a sentence-embedding model upstream.
func demoEmbedding(seed int) []float32 {
	rng := rand.New(rand.NewPCG(uint64(seed), 0))
	v := make([]float32, store.VectorDimension)
	for i := range v {
		v[i] = float32(rng.Float64()*2 - 1)
	}
	return v
}

// runDemo archives the sample messages and walks through the main archive
// operations: lookups, counts, similarity search, and soft delete.
func runDemo() error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	shutdownTracing, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
	}, logger)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}()

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Connect(ctx, cfg.PostgresDSN(), database.Options{
		MaxConns: cfg.PoolMaxConns,
	})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	s, err := store.New(pool, logger.With("component", "store"))
	if err != nil {
		return err
	}

	if err := archiveSamples(ctx, s, logger); err != nil {
		return err
	}
	if err := showQueries(ctx, s); err != nil {
		return err
	}
	if err := showSearch(ctx, s); err != nil {
		return err
	}
	if err := showSoftDelete(ctx, s); err != nil {
		return err
	}
	return showSummary(ctx, s)
}

func archiveSamples(ctx context.Context, s *store.Store, logger *slog.Logger) error {
	fmt.Println("== Archiving sample messages ==")

	base := time.Now().Unix()
	for i, sm := range sampleMessages {
		ts := fmt.Sprintf("%d.%06d", base, i)
		_, err := s.ArchiveMessage(ctx, store.NewMessage{
			SlackMessageID: ts,
			ChannelID:      sm.channelID,
			ChannelName:    sm.channelName,
			UserID:         sm.userID,
			UserName:       sm.userName,
			Text:           sm.text,
			SlackTimestamp: ts,
			Embedding:      demoEmbedding(i),
			Metadata:       map[string]any{"demo": true, "index": i},
		})
		if err != nil {
			return fmt.Errorf("archiving sample %d: %w", i, err)
		}
	}

	logger.Info("archived sample messages", "count", len(sampleMessages))
	fmt.Printf("archived %d messages\n\n", len(sampleMessages))
	return nil
}

func showQueries(ctx context.Context, s *store.Store) error {
	fmt.Println("== Querying the archive ==")

	alice, err := s.MessagesByUser(ctx, "U001", store.ListOptions{})
	if err != nil {
		return err
	}
	fmt.Printf("Alice has %d messages\n", len(alice))

	general, err := s.MessagesByChannel(ctx, "C001", store.ListOptions{})
	if err != nil {
		return err
	}
	fmt.Printf("#general has %d messages\n", len(general))
	for _, m := range general {
		fmt.Printf("  [%s] %s: %s\n", m.ChannelName, m.UserName, truncate(m.Text, 50))
	}

	total, err := s.CountMessages(ctx, store.CountFilter{})
	if err != nil {
		return err
	}
	fmt.Printf("total messages: %d\n", total)

	for _, userID := range []string{"U001", "U002", "U003", "U004"} {
		uc, err := s.UserContextByID(ctx, userID)
		if err != nil {
			return err
		}
		fmt.Printf("user %s (%s): %d messages, first %s, last %s\n",
			uc.UserID, uc.UserName, uc.TotalMessages,
			uc.FirstMessageAt.Format(time.TimeOnly),
			uc.LastMessageAt.Format(time.TimeOnly))
	}

	fmt.Println()
	return nil
}

func showSearch(ctx context.Context, s *store.Store) error {
	fmt.Println("== Similarity search ==")
	fmt.Println("(demo embeddings are random; a zero threshold shows nearest neighbors)")

	results, err := s.SearchSimilar(ctx, demoEmbedding(1),
		store.WithThreshold(0), store.WithLimit(3))
	if err != nil {
		return err
	}

	for _, r := range results {
		fmt.Printf("  %.4f  %s: %s\n", r.Similarity, r.UserName, truncate(r.Text, 60))
	}

	fmt.Println()
	return nil
}

func showSoftDelete(ctx context.Context, s *store.Store) error {
	fmt.Println("== Soft delete ==")

	msgs, err := s.MessagesByUser(ctx, "U001", store.ListOptions{Limit: 1})
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	target := msgs[0]
	fmt.Printf("deleting: %s\n", truncate(target.Text, 50))

	deleted, err := s.SoftDeleteMessage(ctx, target.ID)
	if err != nil {
		return err
	}
	fmt.Printf("deleted: %v\n", deleted)

	retrieved, err := s.MessageByID(ctx, target.ID)
	if err != nil {
		return err
	}
	fmt.Printf("is_deleted flag: %v\n\n", retrieved.IsDeleted)
	return nil
}

func showSummary(ctx context.Context, s *store.Store) error {
	fmt.Println("== Summary ==")

	total, err := s.CountMessages(ctx, store.CountFilter{IncludeDeleted: true})
	if err != nil {
		return err
	}
	active, err := s.CountMessages(ctx, store.CountFilter{})
	if err != nil {
		return err
	}

	fmt.Printf("total messages:  %d\n", total)
	fmt.Printf("active messages: %d\n", active)
	fmt.Printf("embedding dimension: %d\n", store.VectorDimension)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
