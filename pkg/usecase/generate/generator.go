package generate

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/adapter"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/model"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/repository"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/utils/logging"
)

// SchemaSource provides the schema text embedded in generation prompts.
type SchemaSource interface {
	FormatForPrompt(ctx context.Context) string
}

// Result is the outcome of one generation run. Query is always an
// executable statement: on terminal failure it is a placeholder SELECT
// carrying the failure message and Failed is set.
type Result struct {
	Query         string
	Attempts      []model.GenerationAttempt
	MemoryContext string
	Failed        bool
}

// Generator turns natural language questions into validated SQL through
// a bounded retry loop against the model and the query engine.
type Generator struct {
	model  adapter.ModelClient
	engine adapter.QueryEngine
	memory repository.Memory
	schema SchemaSource

	rules       *Rules
	maxAttempts int
	recallSize  int
	testTimeout time.Duration
}

// Option is a functional option for Generator
type Option func(*Generator)

// WithRules overrides the default prompt constraints.
func WithRules(rules *Rules) Option {
	return func(g *Generator) {
		g.rules = rules
	}
}

// WithMaxAttempts overrides the retry bound. Default is 3.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		g.maxAttempts = n
	}
}

// WithRecallSize overrides how many past conversations are retrieved.
func WithRecallSize(k int) Option {
	return func(g *Generator) {
		g.recallSize = k
	}
}

// WithTestTimeout overrides the per-candidate validation query timeout.
func WithTestTimeout(d time.Duration) Option {
	return func(g *Generator) {
		g.testTimeout = d
	}
}

// New creates a new Generator instance
func New(
	modelClient adapter.ModelClient,
	engine adapter.QueryEngine,
	memory repository.Memory,
	schema SchemaSource,
	opts ...Option,
) *Generator {
	g := &Generator{
		model:       modelClient,
		engine:      engine,
		memory:      memory,
		schema:      schema,
		rules:       DefaultRules(),
		maxAttempts: 3,
		recallSize:  3,
		testTimeout: 30 * time.Second,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Generate runs the full pipeline: availability probes, memory recall,
// then up to maxAttempts generate-sanitize-test rounds. An error return
// means the context was cancelled; every other failure degrades into a
// placeholder query.
func (g *Generator) Generate(ctx context.Context, question string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, goerr.Wrap(err, "generation cancelled")
	}

	if !g.model.IsAvailable(ctx) {
		logging.Log(ctx, "generate", "model endpoint is not available", nil)
		return g.fail(nil, "", "LLM service is not available"), nil
	}

	if err := g.engine.Ping(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, goerr.Wrap(ctx.Err(), "generation cancelled")
		}
		logging.Log(ctx, "generate", "query engine probe failed", err)
		return g.fail(nil, "", "Query engine is not available"), nil
	}

	memoryContext := g.recall(ctx, question)
	schemaText := g.schema.FormatForPrompt(ctx)

	var attempts []model.GenerationAttempt
	prompt := buildPrompt(question, schemaText, memoryContext, g.rules)
	lastFailure := "no attempts executed"

	for i := 1; i <= g.maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, goerr.Wrap(err, "generation cancelled")
		}

		attempt := model.GenerationAttempt{Number: i, Prompt: prompt}

		raw, err := g.model.Generate(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, goerr.Wrap(ctx.Err(), "generation cancelled")
			}
			lastFailure = "LLM generation failed"
			attempt.ValidationError = lastFailure
			attempts = append(attempts, attempt)
			logging.Log(ctx, "generate", "model call failed", err)
			prompt = buildCorrectivePrompt(question, "", lastFailure, schemaText, g.rules)
			continue
		}
		attempt.RawOutput = raw

		sql, err := Sanitize(raw)
		if err != nil {
			lastFailure = err.Error()
			attempt.ValidationError = lastFailure
			attempts = append(attempts, attempt)
			logging.From(ctx).Debug("candidate rejected",
				"category", "generate",
				"attempt", i,
				"reason", lastFailure,
			)
			prompt = buildCorrectivePrompt(question, StripFences(raw), lastFailure, schemaText, g.rules)
			continue
		}
		attempt.SanitizedSQL = sql

		if err := g.testExecute(ctx, sql); err != nil {
			if ctx.Err() != nil {
				return nil, goerr.Wrap(ctx.Err(), "generation cancelled")
			}
			lastFailure = err.Error()
			attempt.ValidationError = lastFailure
			attempts = append(attempts, attempt)
			logging.Log(ctx, "generate", "candidate failed test execution", err)
			prompt = buildCorrectivePrompt(question, sql, lastFailure, schemaText, g.rules)
			continue
		}

		attempts = append(attempts, attempt)
		g.remember(ctx, question, sql, schemaText, i)

		logging.From(ctx).Info("generated query",
			"category", "generate",
			"attempts", i,
		)
		return &Result{Query: sql, Attempts: attempts, MemoryContext: memoryContext}, nil
	}

	return g.fail(attempts, memoryContext, "Unable to generate a valid query: "+lastFailure), nil
}

func (g *Generator) fail(attempts []model.GenerationAttempt, memoryContext, message string) *Result {
	return &Result{
		Query:         PlaceholderQuery(message),
		Attempts:      attempts,
		MemoryContext: memoryContext,
		Failed:        true,
	}
}

// recall is best effort: an unreachable memory store only costs the
// prompt its context block.
func (g *Generator) recall(ctx context.Context, question string) string {
	if g.memory == nil {
		return ""
	}

	records, err := g.memory.GetRelevant(ctx, question, g.recallSize)
	if err != nil {
		logging.Log(ctx, "memory", "failed to retrieve past conversations", err)
		return ""
	}
	return repository.FormatForPrompt(records)
}

func (g *Generator) remember(ctx context.Context, question, sql, schemaText string, attemptCount int) {
	if g.memory == nil {
		return
	}

	_, err := g.memory.Store(ctx, question, sql, map[string]any{
		"type":               "sql_generation",
		"validation_status":  "valid",
		"validation_message": "Query validated successfully",
		"attempts":           attemptCount,
		"schema_context":     schemaText,
	})
	if err != nil {
		logging.Log(ctx, "memory", "failed to store generated query", err)
	}
}

func (g *Generator) testExecute(ctx context.Context, sql string) error {
	ctx, cancel := context.WithTimeout(ctx, g.testTimeout)
	defer cancel()

	if _, err := g.engine.Execute(ctx, WrapForTest(sql)); err != nil {
		return goerr.Wrap(err, "test execution failed")
	}
	return nil
}
