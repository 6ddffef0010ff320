package repository

import (
	"context"

	"github.com/mesutmutluitu/ai-analytics-agent/pkg/model"
)

// Memory defines the semantic memory of past conversations. Stored
// records are embedded and indexed for cosine similarity search.
type Memory interface {
	// Store persists a (question, response, metadata) exchange and
	// returns its ID. The record becomes searchable before Store returns.
	Store(ctx context.Context, question, response string, metadata map[string]any) (string, error)

	// GetRelevant returns up to k past exchanges most similar to the
	// question, most similar first. It never returns more than
	// min(k, total stored) records and an empty store yields an empty
	// result, not an error.
	GetRelevant(ctx context.Context, question string, k int) ([]*model.MemoryRecord, error)

	// Stats reports the number of stored records and the last write time.
	Stats(ctx context.Context) (*model.MemoryStats, error)

	// Cleanup deletes records older than the retention window and
	// returns how many were removed. Safe to run repeatedly.
	Cleanup(ctx context.Context, olderThanDays int) (int, error)
}

// Embedder produces the dense vector representation used for indexing.
// The model client adapter satisfies this.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
