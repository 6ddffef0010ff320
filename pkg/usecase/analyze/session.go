package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/adapter"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/model"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/policy"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/usecase/generate"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/utils/logging"
)

// Turn statuses reported to the caller.
const (
	StatusQuestions = "questions"
	StatusComplete  = "complete"
)

// Turn is the outcome of one exchange in a multi-turn session.
type Turn struct {
	Status    string
	Message   string
	Questions []string
	Context   *model.AnalysisContext
	Query     string
	Results   *model.QueryResult
	Analysis  string
}

// Session drives the clarification loop: it keeps asking until the
// accumulated context is complete, then generates, executes and analyzes
// the query in one final turn.
type Session struct {
	model     adapter.ModelClient
	engine    adapter.QueryEngine
	schema    generate.SchemaSource
	generator *generate.Generator
	analyzer  *Analyzer
	authz     *policy.Policy
	identity  model.Identity

	question string
	context  model.AnalysisContext
}

// NewSession creates a new Session instance
func NewSession(
	modelClient adapter.ModelClient,
	engine adapter.QueryEngine,
	schema generate.SchemaSource,
	generator *generate.Generator,
	analyzer *Analyzer,
	authz *policy.Policy,
	identity model.Identity,
) *Session {
	return &Session{
		model:     modelClient,
		engine:    engine,
		schema:    schema,
		generator: generator,
		analyzer:  analyzer,
		authz:     authz,
		identity:  identity,
	}
}

// allowed gates every turn on the caller's permission, before any model
// or engine work happens on their behalf.
func (s *Session) allowed(ctx context.Context) error {
	if !s.authz.Allowed(ctx, s.identity.Role, policy.ResourceAnalytics, policy.ActionView) {
		return goerr.New("permission denied",
			goerr.V("username", s.identity.Username),
			goerr.V("role", s.identity.Role),
		)
	}
	return nil
}

// Context returns a copy of the accumulated session context.
func (s *Session) Context() model.AnalysisContext {
	return s.context
}

// Start opens the session with the initial question. It classifies the
// asker, extracts whatever context the question already carries, and
// returns clarifying questions unless the question is already complete.
func (s *Session) Start(ctx context.Context, question string) (*Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, goerr.Wrap(err, "session cancelled")
	}
	if err := s.allowed(ctx); err != nil {
		return nil, err
	}

	s.question = question
	s.context = model.AnalysisContext{UserType: s.classify(ctx, question)}

	if extracted := s.extract(ctx, question); extracted != nil {
		s.context.Merge(extracted)
	}

	if s.context.Complete() {
		return s.finish(ctx)
	}

	return &Turn{
		Status:    StatusQuestions,
		Message:   "I need a bit more detail before running this.",
		Questions: s.clarify(ctx, question),
		Context:   s.contextCopy(),
	}, nil
}

// Continue folds an answer into the session context. Once the context is
// complete the query runs and the turn carries the results and analysis.
func (s *Session) Continue(ctx context.Context, answer string) (*Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, goerr.Wrap(err, "session cancelled")
	}
	if err := s.allowed(ctx); err != nil {
		return nil, err
	}

	if extracted := s.extract(ctx, answer); extracted != nil {
		s.context.Merge(extracted)
	}

	if !s.context.Complete() {
		return &Turn{
			Status:    StatusQuestions,
			Message:   "Thanks, a few more things.",
			Questions: s.missing(),
			Context:   s.contextCopy(),
		}, nil
	}

	return s.finish(ctx)
}

func (s *Session) finish(ctx context.Context) (*Turn, error) {
	enriched := s.enrichedQuestion()

	generated, err := s.generator.Generate(ctx, enriched)
	if err != nil {
		return nil, err
	}

	results, err := s.engine.Execute(ctx, generated.Query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, goerr.Wrap(ctx.Err(), "session cancelled")
		}
		logging.Log(ctx, "session", "query execution failed", err)
		return &Turn{
			Status:   StatusComplete,
			Message:  "The query was generated but its execution failed.",
			Context:  s.contextCopy(),
			Query:    generated.Query,
			Analysis: fmt.Sprintf("Execution failed: %s", err),
		}, nil
	}

	analysis := s.analyzer.Analyze(ctx, enriched, generated.Query, results)

	return &Turn{
		Status:   StatusComplete,
		Context:  s.contextCopy(),
		Query:    generated.Query,
		Results:  results,
		Analysis: analysis,
	}, nil
}

// enrichedQuestion folds the gathered context back into the question so
// the generator sees everything the clarification loop collected.
func (s *Session) enrichedQuestion() string {
	var b strings.Builder
	b.WriteString(s.question)
	fmt.Fprintf(&b, " (time period: %s; scope: %s; metrics: %s)",
		s.context.TimePeriod, s.context.Scope, strings.Join(s.context.Metrics, ", "))
	return b.String()
}

// classify guesses whether the asker writes like an engineer or a
// business user. Unknown on any failure.
func (s *Session) classify(ctx context.Context, question string) model.UserType {
	prompt := fmt.Sprintf(
		"Classify the author of this question as 'technical' or 'business'. Answer with one word.\n\nQuestion: %s",
		question,
	)

	answer, err := s.model.Generate(ctx, prompt)
	if err != nil {
		logging.Log(ctx, "session", "user classification failed", err)
		return model.UserTypeUnknown
	}

	switch {
	case strings.Contains(strings.ToLower(answer), "technical"):
		return model.UserTypeTechnical
	case strings.Contains(strings.ToLower(answer), "business"):
		return model.UserTypeBusiness
	default:
		return model.UserTypeUnknown
	}
}

// extract asks the model to pull structured context out of free text.
// A response that does not parse as JSON yields nil.
func (s *Session) extract(ctx context.Context, text string) *model.AnalysisContext {
	prompt := fmt.Sprintf(
		"Extract analysis context from the text below. Respond with only a JSON object "+
			"with optional keys: time_period, scope, metrics (list), tables (list), "+
			"columns (list), relationships (list). Omit keys you cannot fill.\n\nText: %s",
		text,
	)

	answer, err := s.model.Generate(ctx, prompt)
	if err != nil {
		logging.Log(ctx, "session", "context extraction failed", err)
		return nil
	}

	var extracted model.AnalysisContext
	if err := json.Unmarshal([]byte(jsonBody(answer)), &extracted); err != nil {
		logging.Log(ctx, "session", "context extraction returned malformed JSON", err)
		return nil
	}
	return &extracted
}

// clarify asks the model for clarifying questions tailored to the asker.
// The canned fallback keeps the session moving when the model misbehaves.
func (s *Session) clarify(ctx context.Context, question string) []string {
	prompt := fmt.Sprintf(
		"A %s user asked: %q\n\nAvailable schema:\n%s\n"+
			"Write 3 to 5 short clarifying questions needed before this can be answered with SQL. "+
			"Respond with only a JSON array of strings.",
		s.audience(), question, s.schema.FormatForPrompt(ctx),
	)

	answer, err := s.model.Generate(ctx, prompt)
	if err == nil {
		var questions []string
		if err := json.Unmarshal([]byte(jsonBody(answer)), &questions); err == nil {
			if n := len(questions); n >= 3 && n <= 5 {
				return questions
			}
		}
	} else {
		logging.Log(ctx, "session", "clarifying question generation failed", err)
	}

	return s.missing()
}

// missing derives fallback questions from the unfilled context fields.
func (s *Session) missing() []string {
	var questions []string
	if s.context.TimePeriod == "" {
		questions = append(questions, "What time period should the analysis cover?")
	}
	if s.context.Scope == "" {
		questions = append(questions, "Which part of the business should this cover?")
	}
	if len(s.context.Metrics) == 0 {
		questions = append(questions, "Which metrics are you interested in?")
	}
	return questions
}

func (s *Session) audience() string {
	if s.context.UserType == model.UserTypeUnknown {
		return "general"
	}
	return string(s.context.UserType)
}

func (s *Session) contextCopy() *model.AnalysisContext {
	c := s.context
	return &c
}

// jsonBody cuts a JSON value out of model output that may be wrapped in
// a code fence or surrounded by prose.
func jsonBody(s string) string {
	s = generate.StripFences(s)
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return s
	}

	var end int
	if s[start] == '[' {
		end = strings.LastIndex(s, "]")
	} else {
		end = strings.LastIndex(s, "}")
	}
	if end <= start {
		return s
	}
	return s[start : end+1]
}
