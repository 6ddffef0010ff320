package analyze_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/model"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/policy"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/usecase/analyze"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/usecase/generate"
)

type mockEngine struct {
	executed []string
	result   *model.QueryResult
}

func (m *mockEngine) Execute(ctx context.Context, query string) (*model.QueryResult, error) {
	m.executed = append(m.executed, query)
	if m.result != nil {
		return m.result, nil
	}
	return &model.QueryResult{Columns: []string{"ok"}, Rows: [][]any{{int64(1)}}}, nil
}

func (m *mockEngine) Ping(ctx context.Context) error {
	return nil
}

// sessionModel routes scripted answers by prompt kind so one mock serves
// classification, extraction, clarification, generation and analysis.
type sessionModel struct {
	extracts []string
	classify string
	clarify  string
	sql      string
}

func (m *sessionModel) Generate(ctx context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "Classify the author"):
		return m.classify, nil
	case strings.Contains(prompt, "Extract analysis context"):
		if len(m.extracts) == 0 {
			return "{}", nil
		}
		out := m.extracts[0]
		m.extracts = m.extracts[1:]
		return out, nil
	case strings.Contains(prompt, "clarifying questions"):
		return m.clarify, nil
	case strings.Contains(prompt, "SQL generator"):
		return m.sql, nil
	default:
		return "Revenue is concentrated in EMEA.", nil
	}
}

func (m *sessionModel) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func (m *sessionModel) IsAvailable(ctx context.Context) bool {
	return true
}

func newSession(t *testing.T, mdl *sessionModel, eng *mockEngine) *analyze.Session {
	schema := &stubSchema{text: "Table: hive.sales.orders (Rows: 10)\n"}
	gen := generate.New(mdl, eng, nil, schema)
	authz, err := policy.New(context.Background(), "")
	gt.NoError(t, err)
	identity := model.Identity{Username: "tester", Role: "analyst"}
	return analyze.NewSession(mdl, eng, schema, gen, analyze.New(mdl, nil, schema), authz, identity)
}

func TestSessionGatherThenComplete(t *testing.T) {
	mdl := &sessionModel{
		classify: "business",
		clarify:  `["What time period?", "Which region?", "Which metric?"]`,
		sql:      "SELECT region, SUM(amount) AS total FROM hive.sales.orders GROUP BY region",
		extracts: []string{
			`{"metrics": ["revenue"]}`,
			`{"time_period": "last month", "scope": "EMEA"}`,
		},
	}
	eng := &mockEngine{}
	session := newSession(t, mdl, eng)

	ctx := context.Background()

	first, err := session.Start(ctx, "show me sales")
	gt.NoError(t, err)
	gt.Equal(t, first.Status, analyze.StatusQuestions)
	gt.Equal(t, len(first.Questions), 3)
	gt.Equal(t, first.Context.UserType, model.UserTypeBusiness)
	gt.Equal(t, first.Context.Metrics, []string{"revenue"})

	second, err := session.Continue(ctx, "last month, EMEA only")
	gt.NoError(t, err)
	gt.Equal(t, second.Status, analyze.StatusComplete)
	gt.Equal(t, second.Query, mdl.sql)
	gt.V(t, second.Results).NotNil()
	gt.S(t, second.Analysis).Contains("EMEA")

	// The generator test-executes the candidate, then the session runs it
	gt.Equal(t, len(eng.executed), 2)
	gt.S(t, eng.executed[0]).Contains("WITH test_query AS")
	gt.Equal(t, eng.executed[1], mdl.sql)

	// Accumulated context survives the merge across turns
	final := session.Context()
	gt.Equal(t, final.TimePeriod, "last month")
	gt.Equal(t, final.Scope, "EMEA")
	gt.Equal(t, final.Metrics, []string{"revenue"})
}

func TestSessionStaysGatheringUntilComplete(t *testing.T) {
	mdl := &sessionModel{
		classify: "technical",
		clarify:  `["q1", "q2", "q3"]`,
		extracts: []string{
			`{}`,
			`{"time_period": "this week"}`,
		},
	}
	session := newSession(t, mdl, &mockEngine{})

	ctx := context.Background()

	first, err := session.Start(ctx, "how are things going")
	gt.NoError(t, err)
	gt.Equal(t, first.Status, analyze.StatusQuestions)

	second, err := session.Continue(ctx, "this week")
	gt.NoError(t, err)
	gt.Equal(t, second.Status, analyze.StatusQuestions)

	// Scope and metrics are still missing, so the fallback asks for them
	gt.True(t, len(second.Questions) == 2)
}

func TestSessionCompleteOnFirstTurn(t *testing.T) {
	mdl := &sessionModel{
		classify: "business",
		sql:      "SELECT SUM(amount) AS revenue FROM hive.sales.orders",
		extracts: []string{
			`{"time_period": "last quarter", "scope": "all regions", "metrics": ["revenue"]}`,
		},
	}
	eng := &mockEngine{}
	session := newSession(t, mdl, eng)

	turn, err := session.Start(context.Background(), "total revenue for all regions last quarter")
	gt.NoError(t, err)
	gt.Equal(t, turn.Status, analyze.StatusComplete)
	gt.Equal(t, turn.Query, mdl.sql)
}

func TestSessionClarifyFallback(t *testing.T) {
	mdl := &sessionModel{
		classify: "business",
		clarify:  "not json at all",
		extracts: []string{`{}`},
	}
	session := newSession(t, mdl, &mockEngine{})

	turn, err := session.Start(context.Background(), "sales please")
	gt.NoError(t, err)
	gt.Equal(t, turn.Status, analyze.StatusQuestions)

	// Malformed clarifying output falls back to the missing-field questions
	gt.Equal(t, len(turn.Questions), 3)
	gt.S(t, turn.Questions[0]).Contains("time period")
}

func TestSessionMalformedExtraction(t *testing.T) {
	mdl := &sessionModel{
		classify: "technical",
		clarify:  `["q1", "q2", "q3"]`,
		extracts: []string{"sorry, I cannot do that"},
	}
	session := newSession(t, mdl, &mockEngine{})

	turn, err := session.Start(context.Background(), "whatever")
	gt.NoError(t, err)
	gt.Equal(t, turn.Status, analyze.StatusQuestions)
	gt.Equal(t, turn.Context.TimePeriod, "")
}

func TestSessionCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session := newSession(t, &sessionModel{}, &mockEngine{})
	_, err := session.Start(ctx, "anything")
	gt.Error(t, err)
}

func TestSessionDenied(t *testing.T) {
	dir := t.TempDir()
	deny := "package authz\n\nimport rego.v1\n\ndefault allow := false\n"
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "authz.rego"), []byte(deny), 0600))

	ctx := context.Background()
	authz, err := policy.New(ctx, dir)
	gt.NoError(t, err)

	mdl := &sessionModel{classify: "business"}
	eng := &mockEngine{}
	schema := &stubSchema{}
	gen := generate.New(mdl, eng, nil, schema)
	session := analyze.NewSession(mdl, eng, schema, gen, analyze.New(mdl, nil, schema), authz,
		model.Identity{Username: "guest", Role: "guest"})

	_, err = session.Start(ctx, "show me everything")
	gt.Error(t, err)
	gt.S(t, err.Error()).Contains("permission denied")

	// Denial happens before any model or engine work
	gt.Equal(t, len(eng.executed), 0)

	_, err = session.Continue(ctx, "last month")
	gt.Error(t, err)
}

func TestSessionFencedJSONExtraction(t *testing.T) {
	mdl := &sessionModel{
		classify: "business",
		sql:      "SELECT 1 AS ok",
		extracts: []string{
			"```json\n{\"time_period\": \"today\", \"scope\": \"web\", \"metrics\": [\"visits\"]}\n```",
		},
	}
	session := newSession(t, mdl, &mockEngine{})

	turn, err := session.Start(context.Background(), "web visits today")
	gt.NoError(t, err)
	gt.Equal(t, turn.Status, analyze.StatusComplete)
}
