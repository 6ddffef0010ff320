package ask

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/adapter"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/model"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/policy"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/usecase/analyze"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/usecase/generate"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/utils/logging"
)

// Output is the result of one single-shot question.
type Output struct {
	Question string
	Query    string
	Results  *model.QueryResult
	Analysis string
	Stats    model.ExecutionStats
	Failed   bool
}

// UseCase runs the single-shot pipeline: permission check, generation,
// execution and analysis.
type UseCase struct {
	engine    adapter.QueryEngine
	generator *generate.Generator
	analyzer  *analyze.Analyzer
	policy    *policy.Policy
}

// New creates a new ask UseCase instance
func New(
	engine adapter.QueryEngine,
	generator *generate.Generator,
	analyzer *analyze.Analyzer,
	authz *policy.Policy,
) *UseCase {
	return &UseCase{
		engine:    engine,
		generator: generator,
		analyzer:  analyzer,
		policy:    authz,
	}
}

// Ask answers a natural language question end to end. Pipeline failures
// degrade into the Output; only a denied permission check or a cancelled
// context returns an error.
func (uc *UseCase) Ask(ctx context.Context, identity model.Identity, question string) (*Output, error) {
	if !uc.policy.Allowed(ctx, identity.Role, policy.ResourceAnalytics, policy.ActionView) {
		return nil, goerr.New("permission denied",
			goerr.V("username", identity.Username),
			goerr.V("role", identity.Role),
		)
	}

	generated, err := uc.generator.Generate(ctx, question)
	if err != nil {
		return nil, err
	}

	out := &Output{
		Question: question,
		Query:    generated.Query,
		Failed:   generated.Failed,
	}
	if generated.Failed {
		return out, nil
	}

	start := time.Now()
	results, err := uc.engine.Execute(ctx, generated.Query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, goerr.Wrap(ctx.Err(), "ask cancelled")
		}
		logging.Log(ctx, "ask", "query execution failed", err)
		out.Failed = true
		out.Analysis = fmt.Sprintf("Query execution failed: %s", err)
		return out, nil
	}

	out.Results = results
	out.Stats = model.ExecutionStats{
		Duration: time.Since(start),
		Rows:     results.RowCount(),
	}
	out.Analysis = uc.analyzer.Analyze(ctx, question, generated.Query, results)

	logging.From(ctx).Info("answered question",
		"category", "ask",
		"rows", out.Stats.Rows,
		"duration", out.Stats.Duration,
	)
	return out, nil
}
