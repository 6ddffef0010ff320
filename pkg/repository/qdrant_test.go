package repository_test

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/repository"
)

// stubEmbedder derives a deterministic vector from text so similarity
// tests work without a model endpoint.
type stubEmbedder struct {
	size int
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.size)
	for i, r := range text {
		vec[i%e.size] += float32(r) / 1000
	}
	return vec, nil
}

func TestQdrantMemory(t *testing.T) {
	host := os.Getenv("TEST_QDRANT_HOST")
	if host == "" {
		t.Skip("TEST_QDRANT_HOST is not set")
	}

	port := 6334
	if v := os.Getenv("TEST_QDRANT_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		gt.NoError(t, err)
		port = p
	}

	ctx := context.Background()
	mem, err := repository.NewQdrant(ctx, repository.QdrantConfig{
		Host:       host,
		Port:       port,
		Collection: fmt.Sprintf("test_conversations_%d", time.Now().UnixNano()),
		VectorSize: 16,
		Embedder:   &stubEmbedder{size: 16},
	})
	gt.NoError(t, err)

	t.Run("EmptyRecall", func(t *testing.T) {
		records, err := mem.GetRelevant(ctx, "anything", 3)
		gt.NoError(t, err)
		gt.Equal(t, len(records), 0)
	})

	t.Run("StoreAndRecall", func(t *testing.T) {
		id, err := mem.Store(ctx, "total revenue", "SELECT SUM(amount) FROM orders", map[string]any{
			"type":              "sql_generation",
			"validation_status": "valid",
		})
		gt.NoError(t, err)
		gt.NotEqual(t, id, "")

		records, err := mem.GetRelevant(ctx, "total revenue", 5)
		gt.NoError(t, err)
		gt.Equal(t, len(records), 1)
		gt.Equal(t, records[0].Question, "total revenue")
		gt.Equal(t, records[0].Metadata["validation_status"], "valid")
	})

	t.Run("RecallBound", func(t *testing.T) {
		records, err := mem.GetRelevant(ctx, "revenue", 100)
		gt.NoError(t, err)
		gt.True(t, len(records) <= 1)

		records, err = mem.GetRelevant(ctx, "revenue", 0)
		gt.NoError(t, err)
		gt.Equal(t, len(records), 0)
	})

	t.Run("Stats", func(t *testing.T) {
		stats, err := mem.Stats(ctx)
		gt.NoError(t, err)
		gt.Equal(t, stats.Total, 1)
	})

	t.Run("CleanupKeepsFreshRecords", func(t *testing.T) {
		removed, err := mem.Cleanup(ctx, 30)
		gt.NoError(t, err)
		gt.Equal(t, removed, 0)

		stats, err := mem.Stats(ctx)
		gt.NoError(t, err)
		gt.Equal(t, stats.Total, 1)
	})
}
