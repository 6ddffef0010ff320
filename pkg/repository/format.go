package repository

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mesutmutluitu/ai-analytics-agent/pkg/model"
)

// FormatForPrompt renders retrieved memories as numbered entries for
// inclusion in a generation prompt. No records produces an empty string
// so an empty recall never pollutes the prompt.
func FormatForPrompt(records []*model.MemoryRecord) string {
	if len(records) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\nRelevant past conversations:\n")
	for i, record := range records {
		fmt.Fprintf(&b, "\n%d. Question: %s\n", i+1, record.Question)
		fmt.Fprintf(&b, "   Response: %s\n", record.Response)
		if record.Metadata != nil {
			if raw, err := json.Marshal(record.Metadata); err == nil {
				fmt.Fprintf(&b, "   Context: %s\n", raw)
			}
		}
		fmt.Fprintf(&b, "   Time: %s\n", record.Timestamp.Format("2006-01-02 15:04:05"))
	}

	return b.String()
}
