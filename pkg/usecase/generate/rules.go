package generate

import (
	"fmt"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// Rules are the constraints embedded in every generation prompt.
type Rules struct {
	Constraints []string `yaml:"constraints"`
}

// DefaultRules returns the built-in constraint set.
func DefaultRules() *Rules {
	return &Rules{
		Constraints: []string{
			"Return exactly one SELECT statement and nothing else, no explanation",
			"Never use semicolons, comments, or multiple statements",
			"Use fully qualified table names in the form catalog.schema.table",
			"Only reference tables and columns that appear in the provided schema",
			"Prefer explicit column lists over SELECT *",
			"Add a LIMIT clause unless the question asks for an aggregate",
		},
	}
}

// LoadRules reads a constraint set from a YAML file. A file with no
// constraints falls back to the defaults.
func LoadRules(path string) (*Rules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read rules file", goerr.V("path", path))
	}

	var rules Rules
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return nil, goerr.Wrap(err, "failed to parse rules file", goerr.V("path", path))
	}

	if len(rules.Constraints) == 0 {
		return DefaultRules(), nil
	}
	return &rules, nil
}

// Render formats the constraints as a numbered list for the prompt.
func (r *Rules) Render() string {
	var b strings.Builder
	for i, c := range r.Constraints {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	return b.String()
}
