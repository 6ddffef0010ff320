package generate

import (
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// forbiddenSequences block statement chaining, comment injection and
// parameter markers in generated SQL.
var forbiddenSequences = []string{";", "--", "/*", "*/", ":"}

// StripFences removes a markdown code fence wrapping the model output.
// Already clean SQL passes through unchanged, so stripping twice is safe.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if idx := strings.IndexAny(s, "\n"); idx >= 0 {
			// Drop the language hint on the opening fence line
			if first := strings.TrimSpace(s[:idx]); first == "" || first == "sql" {
				s = s[idx+1:]
			}
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// Validate rejects SQL that is not a single plain SELECT statement.
func Validate(sql string) error {
	if sql == "" {
		return goerr.New("model returned an empty query")
	}

	if !strings.HasPrefix(strings.ToUpper(sql), "SELECT") {
		return goerr.New("query must start with SELECT", goerr.V("query", sql))
	}

	for _, seq := range forbiddenSequences {
		if strings.Contains(sql, seq) {
			return goerr.New(fmt.Sprintf("query contains forbidden sequence %q", seq), goerr.V("query", sql))
		}
	}

	return nil
}

// Sanitize turns raw model output into a validated SQL statement.
func Sanitize(raw string) (string, error) {
	sql := StripFences(raw)
	if err := Validate(sql); err != nil {
		return "", err
	}
	return sql, nil
}

// WrapForTest wraps a candidate statement in a CTE that fetches a single
// row, so validation runs against the engine without pulling a full
// result set.
func WrapForTest(sql string) string {
	return fmt.Sprintf("WITH test_query AS (%s) SELECT * FROM test_query LIMIT 1", sql)
}

// PlaceholderQuery renders a terminal failure as an executable SELECT so
// downstream consumers always receive a runnable statement.
func PlaceholderQuery(message string) string {
	escaped := strings.ReplaceAll(message, "'", "''")
	return fmt.Sprintf("SELECT '%s' AS error", escaped)
}
