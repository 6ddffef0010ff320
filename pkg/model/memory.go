package model

import (
	"time"

	"github.com/google/uuid"
)

// NewMemoryID generates a unique ID for a stored conversation.
func NewMemoryID() string {
	return uuid.New().String()
}

// MemoryRecord is one stored (question, response, metadata) exchange.
// Records are owned by the memory store; everything outside the store
// only ever holds copies returned from queries.
type MemoryRecord struct {
	ID        string
	Question  string
	Response  string
	Metadata  map[string]any
	Embedding []float32
	Timestamp time.Time
}

// MemoryStats summarizes the state of the memory store.
type MemoryStats struct {
	Total       int
	LastUpdated time.Time
}
