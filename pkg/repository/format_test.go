package repository_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/model"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/repository"
)

func TestFormatForPromptEmpty(t *testing.T) {
	gt.Equal(t, repository.FormatForPrompt(nil), "")
	gt.Equal(t, repository.FormatForPrompt([]*model.MemoryRecord{}), "")
}

func TestFormatForPrompt(t *testing.T) {
	records := []*model.MemoryRecord{
		{
			ID:       "a",
			Question: "total revenue last month",
			Response: "SELECT SUM(amount) FROM orders",
			Metadata: map[string]any{
				"type":              "sql_generation",
				"validation_status": "valid",
			},
			Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			ID:        "b",
			Question:  "active users",
			Response:  "There were 120 active users.",
			Timestamp: time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC),
		},
	}

	out := repository.FormatForPrompt(records)

	gt.S(t, out).Contains("Relevant past conversations")
	gt.S(t, out).Contains("1. Question: total revenue last month")
	gt.S(t, out).Contains("Response: SELECT SUM(amount) FROM orders")
	gt.S(t, out).Contains(`"validation_status":"valid"`)
	gt.S(t, out).Contains("2. Question: active users")
	gt.S(t, out).Contains("2025-06-01 12:00:00")

	// Second record has no metadata, so no context line after it
	gt.S(t, out).Contains("Response: There were 120 active users.\n   Time:")
}
