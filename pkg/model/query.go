package model

import "time"

// QueryResult holds the typed rows returned by the query engine for one
// statement. It is consumed per request and never persisted except as
// summarized text inside a MemoryRecord.
type QueryResult struct {
	Columns []string
	Rows    [][]any
}

// RowCount returns the number of rows in the result.
func (r *QueryResult) RowCount() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// GenerationAttempt records one round of the generation state machine.
// Attempts are ephemeral and discarded once the machine terminates.
type GenerationAttempt struct {
	Number          int
	Prompt          string
	RawOutput       string
	SanitizedSQL    string
	ValidationError string
}

// ExecutionStats describes the real (full-row) execution of a query.
type ExecutionStats struct {
	Duration time.Duration
	Rows     int
}
