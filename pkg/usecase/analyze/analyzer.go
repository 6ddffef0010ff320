package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mesutmutluitu/ai-analytics-agent/pkg/adapter"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/model"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/repository"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/usecase/generate"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/utils/logging"
)

// maxSerializedRows bounds how much of a result set reaches the prompt.
const maxSerializedRows = 50

// Analyzer produces a natural language reading of a query result.
type Analyzer struct {
	model  adapter.ModelClient
	memory repository.Memory
	schema generate.SchemaSource

	recallSize int
}

// AnalyzerOption is a functional option for Analyzer
type AnalyzerOption func(*Analyzer)

// WithAnalyzerRecallSize overrides how many past conversations feed the
// analysis prompt.
func WithAnalyzerRecallSize(k int) AnalyzerOption {
	return func(a *Analyzer) {
		a.recallSize = k
	}
}

// New creates a new Analyzer instance
func New(
	modelClient adapter.ModelClient,
	memory repository.Memory,
	schema generate.SchemaSource,
	opts ...AnalyzerOption,
) *Analyzer {
	a := &Analyzer{
		model:      modelClient,
		memory:     memory,
		schema:     schema,
		recallSize: 3,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Analyze explains the result of a query in terms of the original
// question. It never fails the pipeline: when the model is unreachable
// or errors, a descriptive fallback string is returned instead, and
// nothing is written to memory so fallback text cannot pollute recall.
func (a *Analyzer) Analyze(ctx context.Context, question, query string, results *model.QueryResult) string {
	if results == nil || results.RowCount() == 0 {
		return "The query returned no rows, so there is nothing to analyze."
	}

	if !a.model.IsAvailable(ctx) {
		logging.Log(ctx, "analyze", "model endpoint is not available", nil)
		return fmt.Sprintf("Analysis is unavailable because the LLM service is unreachable. The query returned %d rows.", results.RowCount())
	}

	var schemaText string
	if a.schema != nil {
		schemaText = a.schema.FormatForPrompt(ctx)
	}
	memoryContext := a.recall(ctx, question)
	serialized := serializeResult(results)

	prompt := buildAnalysisPrompt(question, query, schemaText, memoryContext, serialized, results.RowCount())
	analysis, err := a.model.Generate(ctx, prompt)
	if err != nil {
		logging.Log(ctx, "analyze", "analysis generation failed", err)
		return fmt.Sprintf("Analysis failed. The query returned %d rows.", results.RowCount())
	}

	analysis = strings.TrimSpace(analysis)
	a.remember(ctx, question, analysis, schemaText, serialized)
	return analysis
}

// recall is best effort, same as the generation stage: a failed lookup
// only costs the prompt its context block.
func (a *Analyzer) recall(ctx context.Context, question string) string {
	if a.memory == nil {
		return ""
	}

	records, err := a.memory.GetRelevant(ctx, question, a.recallSize)
	if err != nil {
		logging.Log(ctx, "memory", "failed to retrieve past conversations", err)
		return ""
	}
	return repository.FormatForPrompt(records)
}

func (a *Analyzer) remember(ctx context.Context, question, analysis, schemaText, serialized string) {
	if a.memory == nil {
		return
	}

	_, err := a.memory.Store(ctx, question, analysis, map[string]any{
		"type":           "result_analysis",
		"results":        serialized,
		"schema_context": schemaText,
	})
	if err != nil {
		logging.Log(ctx, "memory", "failed to store analysis", err)
	}
}

func buildAnalysisPrompt(question, query, schemaText, memoryContext, serialized string, rowCount int) string {
	var b strings.Builder

	b.WriteString("You are a data analyst. Explain the query result below in plain language.\n\n")
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	fmt.Fprintf(&b, "Query:\n%s\n\n", query)

	b.WriteString("Available schema:\n")
	if schemaText == "" {
		b.WriteString("(no schema information available)\n")
	} else {
		b.WriteString(schemaText)
	}
	b.WriteString("\n")

	if memoryContext != "" {
		b.WriteString(memoryContext)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Result (%d rows):\n%s", rowCount, serialized)
	b.WriteString("\nSummarize the key findings. Mention concrete numbers. Keep it short.\n")

	return b.String()
}

// serializeResult renders the result set as JSON rows, truncated so a
// large result never blows up the prompt.
func serializeResult(result *model.QueryResult) string {
	rows := result.Rows
	truncated := false
	if len(rows) > maxSerializedRows {
		rows = rows[:maxSerializedRows]
		truncated = true
	}

	var b strings.Builder
	for _, row := range rows {
		entry := make(map[string]any, len(result.Columns))
		for i, col := range result.Columns {
			if i < len(row) {
				entry[col] = row[i]
			}
		}
		if raw, err := json.Marshal(entry); err == nil {
			b.Write(raw)
			b.WriteString("\n")
		}
	}
	if truncated {
		fmt.Fprintf(&b, "... truncated to the first %d of %d rows\n", maxSerializedRows, len(result.Rows))
	}

	return b.String()
}
