package model

// UserType is the authorship style of a question, used to tune clarifying
// questions in the multi-turn flow.
type UserType string

const (
	UserTypeTechnical UserType = "technical"
	UserTypeBusiness  UserType = "business"
	UserTypeUnknown   UserType = ""
)

// AnalysisContext accumulates the fields a multi-turn session collects
// before it is willing to generate SQL. It lives for one session and is
// discarded once the query has been generated and executed.
type AnalysisContext struct {
	UserType      UserType `json:"user_type,omitempty"`
	TimePeriod    string   `json:"time_period,omitempty"`
	Scope         string   `json:"scope,omitempty"`
	Metrics       []string `json:"metrics,omitempty"`
	Tables        []string `json:"tables,omitempty"`
	Columns       []string `json:"columns,omitempty"`
	Relationships []string `json:"relationships,omitempty"`
}

// Complete reports whether the minimum fields for SQL generation are
// present: a time period, a scope, and at least one metric.
func (c *AnalysisContext) Complete() bool {
	return c.TimePeriod != "" && c.Scope != "" && len(c.Metrics) > 0
}

// Merge folds non-empty fields of other into c. Scalar fields are
// overwritten, list fields are unioned preserving order.
func (c *AnalysisContext) Merge(other *AnalysisContext) {
	if other == nil {
		return
	}
	if other.UserType != UserTypeUnknown {
		c.UserType = other.UserType
	}
	if other.TimePeriod != "" {
		c.TimePeriod = other.TimePeriod
	}
	if other.Scope != "" {
		c.Scope = other.Scope
	}
	c.Metrics = mergeList(c.Metrics, other.Metrics)
	c.Tables = mergeList(c.Tables, other.Tables)
	c.Columns = mergeList(c.Columns, other.Columns)
	c.Relationships = mergeList(c.Relationships, other.Relationships)
}

func mergeList(dst, src []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, v := range dst {
		seen[v] = true
	}
	for _, v := range src {
		if v == "" || seen[v] {
			continue
		}
		dst = append(dst, v)
		seen[v] = true
	}
	return dst
}

// Identity is the authenticated caller on whose behalf the pipeline runs.
// Credential verification happens outside this module; only the resolved
// username and role ever reach the core.
type Identity struct {
	Username string
	Role     string
}
