package adapter

import (
	"context"
	"database/sql"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/model"
	"github.com/trinodb/trino-go-client/trino"
)

// QueryEngine is an interface for executing SQL against the warehouse.
// Errors are returned as values so callers can branch on them; the
// implementation never panics on engine-side failures.
type QueryEngine interface {
	// Execute runs a statement and returns its full result set
	Execute(ctx context.Context, query string) (*model.QueryResult, error)

	// Ping runs a trivial probe query to check reachability
	Ping(ctx context.Context) error
}

type trinoClient struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// TrinoOption is a functional option for the Trino client.
type TrinoOption func(*trinoClient)

// WithQueryTimeout bounds each Execute call. Defaults to 2 minutes.
func WithQueryTimeout(d time.Duration) TrinoOption {
	return func(c *trinoClient) {
		c.queryTimeout = d
	}
}

// NewTrino creates a query engine client for a Trino coordinator.
// serverURI is like "http://trino@localhost:8080".
func NewTrino(serverURI, catalog, schema string, opts ...TrinoOption) (QueryEngine, error) {
	cfg := trino.Config{
		ServerURI: serverURI,
		Source:    "ai-analytics-agent",
		Catalog:   catalog,
		Schema:    schema,
	}

	dsn, err := cfg.FormatDSN()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build trino DSN", goerr.V("server", serverURI))
	}

	db, err := sql.Open("trino", dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open trino connection")
	}

	c := &trinoClient{
		db:           db,
		queryTimeout: 2 * time.Minute,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *trinoClient) Execute(ctx context.Context, query string) (*model.QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "query execution failed")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read result columns")
	}

	result := &model.QueryResult{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, goerr.Wrap(err, "failed to scan result row")
		}
		result.Rows = append(result.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "result iteration failed")
	}

	return result, nil
}

func (c *trinoClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := c.Execute(ctx, "SELECT 1"); err != nil {
		return goerr.Wrap(err, "engine probe failed")
	}
	return nil
}
