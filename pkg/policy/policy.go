package policy

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/utils/logging"
	"github.com/open-policy-agent/opa/v1/rego"
)

// Resource and action names used by the pipeline permission checks.
const (
	ResourceAnalytics = "ai-analytics"
	ActionView        = "view"
)

// Policy evaluates role-based permission checks with Rego. Without any
// policy files it is permissive: every check passes.
type Policy struct {
	query *rego.PreparedEvalQuery
}

// New loads all Rego files from policyDir and prepares the authorization
// query. An empty policyDir or a directory without .rego files yields a
// permissive policy.
func New(ctx context.Context, policyDir string) (*Policy, error) {
	if policyDir == "" {
		logging.Log(ctx, "policy", "no policy directory configured, all checks pass", nil)
		return &Policy{}, nil
	}

	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files")
	}
	if len(files) == 0 {
		logging.Log(ctx, "policy", "no policy files found, all checks pass", nil)
		return &Policy{}, nil
	}

	options := make([]func(*rego.Rego), 0, len(files)+1)
	options = append(options, rego.Query("data.authz.allow"))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		options = append(options, rego.Module(file, string(data)))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare authorization query")
	}

	return &Policy{query: &prepared}, nil
}

// Allowed evaluates whether the role may perform the action on the
// resource. Evaluation errors deny.
func (p *Policy) Allowed(ctx context.Context, role, resource, action string) bool {
	if p.query == nil {
		return true
	}

	results, err := p.query.Eval(ctx, rego.EvalInput(map[string]any{
		"role":     role,
		"resource": resource,
		"action":   action,
	}))
	if err != nil {
		logging.Log(ctx, "policy", "authorization evaluation failed", err)
		return false
	}

	return results.Allowed()
}
