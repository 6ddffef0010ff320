package generate_test

import (
	"context"
	"strings"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/model"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/usecase/generate"
)

type mockModel struct {
	outputs   []string
	calls     int
	available bool
	prompts   []string
}

func (m *mockModel) Generate(ctx context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if m.calls >= len(m.outputs) {
		return "", goerr.New("no scripted output left")
	}
	out := m.outputs[m.calls]
	m.calls++
	return out, nil
}

func (m *mockModel) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func (m *mockModel) IsAvailable(ctx context.Context) bool {
	return m.available
}

type mockEngine struct {
	pingErr  error
	execErrs []error
	executed []string
}

func (m *mockEngine) Execute(ctx context.Context, query string) (*model.QueryResult, error) {
	m.executed = append(m.executed, query)
	if len(m.execErrs) > 0 {
		err := m.execErrs[0]
		m.execErrs = m.execErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &model.QueryResult{Columns: []string{"ok"}, Rows: [][]any{{int64(1)}}}, nil
}

func (m *mockEngine) Ping(ctx context.Context) error {
	return m.pingErr
}

type mockMemory struct {
	recalled  []*model.MemoryRecord
	recallErr error
	stored    []map[string]any
}

func (m *mockMemory) Store(ctx context.Context, question, response string, metadata map[string]any) (string, error) {
	m.stored = append(m.stored, metadata)
	return "id", nil
}

func (m *mockMemory) GetRelevant(ctx context.Context, question string, k int) ([]*model.MemoryRecord, error) {
	if m.recallErr != nil {
		return nil, m.recallErr
	}
	if k < len(m.recalled) {
		return m.recalled[:k], nil
	}
	return m.recalled, nil
}

func (m *mockMemory) Stats(ctx context.Context) (*model.MemoryStats, error) {
	return &model.MemoryStats{Total: len(m.stored)}, nil
}

func (m *mockMemory) Cleanup(ctx context.Context, olderThanDays int) (int, error) {
	return 0, nil
}

type stubSchema struct {
	text string
}

func (s *stubSchema) FormatForPrompt(ctx context.Context) string {
	return s.text
}

func newGenerator(m *mockModel, e *mockEngine, mem *mockMemory) *generate.Generator {
	return generate.New(m, e, mem, &stubSchema{text: "Table: hive.sales.orders (Rows: 10)\n"})
}

func TestModelUnavailable(t *testing.T) {
	mdl := &mockModel{available: false}
	eng := &mockEngine{}
	gen := newGenerator(mdl, eng, &mockMemory{})

	result, err := gen.Generate(context.Background(), "total revenue")
	gt.NoError(t, err)
	gt.True(t, result.Failed)
	gt.Equal(t, result.Query, "SELECT 'LLM service is not available' AS error")

	// The engine is never touched when the model is down
	gt.Equal(t, len(eng.executed), 0)
}

func TestEngineUnreachable(t *testing.T) {
	mdl := &mockModel{available: true, outputs: []string{"SELECT 1 AS ok"}}
	eng := &mockEngine{pingErr: goerr.New("connection refused")}
	gen := newGenerator(mdl, eng, &mockMemory{})

	result, err := gen.Generate(context.Background(), "total revenue")
	gt.NoError(t, err)
	gt.True(t, result.Failed)
	gt.Equal(t, result.Query, "SELECT 'Query engine is not available' AS error")
	gt.Equal(t, mdl.calls, 0)
}

func TestCleanFirstAttempt(t *testing.T) {
	query := "SELECT region, SUM(amount) AS total FROM hive.sales.orders GROUP BY region"
	mdl := &mockModel{available: true, outputs: []string{query}}
	eng := &mockEngine{}
	mem := &mockMemory{}
	gen := newGenerator(mdl, eng, mem)

	result, err := gen.Generate(context.Background(), "revenue by region")
	gt.NoError(t, err)
	gt.True(t, !result.Failed)
	gt.Equal(t, result.Query, query)
	gt.Equal(t, len(result.Attempts), 1)

	// The candidate was test-executed wrapped in a single-row CTE
	gt.Equal(t, len(eng.executed), 1)
	gt.S(t, eng.executed[0]).Contains("WITH test_query AS (" + query + ")")
	gt.S(t, eng.executed[0]).Contains("LIMIT 1")

	// Success is persisted with validation metadata and the schema the
	// query was generated against
	gt.Equal(t, len(mem.stored), 1)
	gt.Equal(t, mem.stored[0]["type"], "sql_generation")
	gt.Equal(t, mem.stored[0]["validation_status"], "valid")
	gt.Equal(t, mem.stored[0]["attempts"], 1)
	gt.Equal(t, mem.stored[0]["schema_context"], "Table: hive.sales.orders (Rows: 10)\n")
}

func TestRetryAfterForbiddenSequence(t *testing.T) {
	mdl := &mockModel{available: true, outputs: []string{
		"SELECT now() AS t:1",
		"SELECT 1 AS ok",
	}}
	eng := &mockEngine{}
	gen := newGenerator(mdl, eng, &mockMemory{})

	result, err := gen.Generate(context.Background(), "current time")
	gt.NoError(t, err)
	gt.True(t, !result.Failed)
	gt.Equal(t, result.Query, "SELECT 1 AS ok")
	gt.Equal(t, mdl.calls, 2)
	gt.Equal(t, len(result.Attempts), 2)
	gt.S(t, result.Attempts[0].ValidationError).Contains("forbidden sequence")

	// The second prompt carries the rejection back to the model
	gt.S(t, mdl.prompts[1]).Contains("Rejection reason")
	gt.S(t, mdl.prompts[1]).Contains("SELECT now() AS t:1")
}

func TestRetryAfterTestExecutionFailure(t *testing.T) {
	mdl := &mockModel{available: true, outputs: []string{
		"SELECT id FROM hive.sales.order",
		"SELECT id FROM hive.sales.orders",
	}}
	eng := &mockEngine{execErrs: []error{goerr.New("table not found"), nil}}
	gen := newGenerator(mdl, eng, &mockMemory{})

	result, err := gen.Generate(context.Background(), "order ids")
	gt.NoError(t, err)
	gt.True(t, !result.Failed)
	gt.Equal(t, result.Query, "SELECT id FROM hive.sales.orders")
	gt.Equal(t, len(result.Attempts), 2)
	gt.S(t, result.Attempts[0].ValidationError).Contains("table not found")
}

func TestRetriesExhausted(t *testing.T) {
	mdl := &mockModel{available: true, outputs: []string{
		"DROP TABLE hive.sales.orders",
		"DELETE FROM hive.sales.orders",
		"TRUNCATE TABLE hive.sales.orders",
	}}
	eng := &mockEngine{}
	mem := &mockMemory{}
	gen := newGenerator(mdl, eng, mem)

	result, err := gen.Generate(context.Background(), "drop everything")
	gt.NoError(t, err)
	gt.True(t, result.Failed)
	gt.Equal(t, mdl.calls, 3)
	gt.Equal(t, len(result.Attempts), 3)
	gt.S(t, result.Query).Contains("AS error")
	gt.S(t, result.Query).Contains("Unable to generate a valid query")

	// Nothing invalid is remembered and nothing reaches the engine
	gt.Equal(t, len(mem.stored), 0)
	gt.Equal(t, len(eng.executed), 0)
}

func TestMemoryContextInPrompt(t *testing.T) {
	mdl := &mockModel{available: true, outputs: []string{"SELECT 1 AS ok"}}
	mem := &mockMemory{recalled: []*model.MemoryRecord{
		{Question: "total revenue", Response: "SELECT SUM(amount) FROM hive.sales.orders"},
	}}
	gen := newGenerator(mdl, &mockEngine{}, mem)

	result, err := gen.Generate(context.Background(), "revenue again")
	gt.NoError(t, err)
	gt.S(t, result.MemoryContext).Contains("Relevant past conversations")
	gt.S(t, mdl.prompts[0]).Contains("total revenue")
}

func TestMemoryRecallFailureDegrades(t *testing.T) {
	mdl := &mockModel{available: true, outputs: []string{"SELECT 1 AS ok"}}
	mem := &mockMemory{recallErr: goerr.New("index offline")}
	gen := newGenerator(mdl, &mockEngine{}, mem)

	result, err := gen.Generate(context.Background(), "anything")
	gt.NoError(t, err)
	gt.True(t, !result.Failed)
	gt.Equal(t, result.MemoryContext, "")
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mdl := &mockModel{available: true, outputs: []string{"SELECT 1 AS ok"}}
	gen := newGenerator(mdl, &mockEngine{}, &mockMemory{})

	_, err := gen.Generate(ctx, "anything")
	gt.Error(t, err)
	gt.True(t, strings.Contains(err.Error(), "cancelled"))
}
