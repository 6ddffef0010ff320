package schema

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/adapter"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/model"
	"github.com/mesutmutluitu/ai-analytics-agent/pkg/utils/logging"
)

// systemSchemas are never enumerated during refresh.
var systemSchemas = map[string]bool{
	"information_schema": true,
	"sys":                true,
}

// Cache holds a process-wide snapshot of the warehouse catalog, refreshed
// on a TTL. Readers always get a complete snapshot: a refresh builds a new
// one and swaps it atomically, and a failed refresh keeps the previous one.
type Cache struct {
	engine adapter.QueryEngine
	ttl    time.Duration
	now    func() time.Time

	// refreshMu collapses concurrent refreshes into one catalog scan
	refreshMu sync.Mutex

	mu          sync.RWMutex
	snapshot    *model.SchemaSnapshot
	refreshedAt time.Time
}

// Option configures the cache.
type Option func(*Cache)

// WithTTL overrides the snapshot time-to-live. Default is one hour.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithClock overrides the time source, for TTL tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a schema catalog cache over the given query engine.
func New(engine adapter.QueryEngine, opts ...Option) *Cache {
	c := &Cache{
		engine: engine,
		ttl:    time.Hour,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Get returns the current snapshot, refreshing it first when forced, when
// no snapshot exists yet, or when the TTL has elapsed. Refresh failure is
// not an error for the caller: the stale (possibly empty) snapshot is
// returned so the pipeline degrades instead of hard-failing.
func (c *Cache) Get(ctx context.Context, forceRefresh bool) *model.SchemaSnapshot {
	if snap, ok := c.cached(forceRefresh); ok {
		return snap
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// Another request may have completed the refresh while we waited
	if snap, ok := c.cached(forceRefresh); ok {
		return snap
	}

	fresh, err := c.fetch(ctx)
	if err != nil {
		logging.Log(ctx, "schema", "schema refresh failed, keeping previous snapshot", err)
		c.mu.RLock()
		snap := c.snapshot
		c.mu.RUnlock()
		if snap != nil {
			return snap
		}
		return model.NewSchemaSnapshot(c.now())
	}

	c.mu.Lock()
	c.snapshot = fresh
	c.refreshedAt = c.now()
	c.mu.Unlock()

	return fresh
}

// cached returns the snapshot if it is present and fresh enough.
func (c *Cache) cached(forceRefresh bool) (*model.SchemaSnapshot, bool) {
	if forceRefresh {
		return nil, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.snapshot == nil || c.now().Sub(c.refreshedAt) > c.ttl {
		return nil, false
	}
	return c.snapshot, true
}

// fetch enumerates the full catalog. A single inaccessible schema or table
// is skipped and logged; only an unreachable engine fails the whole fetch.
func (c *Cache) fetch(ctx context.Context) (*model.SchemaSnapshot, error) {
	snapshot := model.NewSchemaSnapshot(c.now())

	catalogs, err := c.listNames(ctx, "SHOW CATALOGS")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to enumerate catalogs")
	}

	for _, catalog := range catalogs {
		schemas, err := c.listNames(ctx, fmt.Sprintf("SHOW SCHEMAS FROM %s", catalog))
		if err != nil {
			logging.Log(ctx, "schema", fmt.Sprintf("skipping catalog %s", catalog), err)
			continue
		}

		catalogTables := 0
		for _, schemaName := range schemas {
			if systemSchemas[schemaName] {
				continue
			}

			tables, err := c.listNames(ctx, fmt.Sprintf("SHOW TABLES FROM %s.%s", catalog, schemaName))
			if err != nil {
				logging.Log(ctx, "schema", fmt.Sprintf("skipping schema %s.%s", catalog, schemaName), err)
				continue
			}

			stored := 0
			for _, table := range tables {
				t, err := c.describeTable(ctx, catalog, schemaName, table)
				if err != nil {
					logging.Log(ctx, "schema", fmt.Sprintf("skipping table %s.%s.%s", catalog, schemaName, table), err)
					continue
				}
				snapshot.Put(catalog, schemaName, table, t)
				stored++
			}

			catalogTables += stored
			logging.From(ctx).Debug("enumerated schema",
				"category", "schema",
				"catalog", catalog,
				"schema", schemaName,
				"tables", stored,
			)
		}

		logging.From(ctx).Info("enumerated catalog",
			"category", "schema",
			"catalog", catalog,
			"tables", catalogTables,
		)
	}

	return snapshot, nil
}

func (c *Cache) describeTable(ctx context.Context, catalog, schemaName, table string) (*model.Table, error) {
	qualified := fmt.Sprintf("%s.%s.%s", catalog, schemaName, table)

	result, err := c.engine.Execute(ctx, fmt.Sprintf("DESCRIBE %s", qualified))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to describe table", goerr.V("table", qualified))
	}

	t := &model.Table{RowCount: model.RowCountUnknown}
	for _, row := range result.Rows {
		col := model.Column{
			Name: stringAt(row, 0),
			Type: stringAt(row, 1),
		}
		// Trino DESCRIBE yields (Column, Type, Extra, Comment)
		if comment := stringAt(row, 3); comment != "" {
			col.Description = comment
		} else {
			col.Description = fmt.Sprintf("Column %s in table %s", col.Name, table)
		}
		t.Columns = append(t.Columns, col)
	}

	// Row count is best effort; a failed count keeps the table with an
	// unknown count rather than dropping it from the snapshot.
	count, err := c.engine.Execute(ctx, fmt.Sprintf("SELECT count(*) FROM %s", qualified))
	if err != nil {
		logging.Log(ctx, "schema", fmt.Sprintf("row count unavailable for %s", qualified), err)
	} else if len(count.Rows) > 0 && len(count.Rows[0]) > 0 {
		if n, ok := toInt64(count.Rows[0][0]); ok {
			t.RowCount = n
		}
	}

	return t, nil
}

// listNames runs a statement whose first column is a list of names.
func (c *Cache) listNames(ctx context.Context, query string) ([]string, error) {
	result, err := c.engine.Execute(ctx, query)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		if name := stringAt(row, 0); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// FormatForPrompt renders the current snapshot as the indented text block
// embedded verbatim in generation prompts. Ordering is lexicographic so
// the same snapshot always renders identically.
func (c *Cache) FormatForPrompt(ctx context.Context) string {
	snapshot := c.Get(ctx, false)

	var b strings.Builder
	for _, catalog := range model.SortedKeys(snapshot.Catalogs) {
		schemas := snapshot.Catalogs[catalog]
		for _, schemaName := range model.SortedKeys(schemas) {
			tables := schemas[schemaName]
			for _, table := range model.SortedKeys(tables) {
				t := tables[table]

				rowCount := "unknown"
				if t.RowCount != model.RowCountUnknown {
					rowCount = fmt.Sprintf("%d", t.RowCount)
				}

				fmt.Fprintf(&b, "Table: %s.%s.%s (Rows: %s)\n", catalog, schemaName, table, rowCount)
				b.WriteString("Columns:\n")
				for _, col := range t.Columns {
					fmt.Fprintf(&b, "  - %s (%s): %s\n", col.Name, col.Type, col.Description)
				}
				b.WriteString("\n")
			}
		}
	}

	return b.String()
}

func stringAt(row []any, idx int) string {
	if idx >= len(row) || row[idx] == nil {
		return ""
	}
	if s, ok := row[idx].(string); ok {
		return s
	}
	return fmt.Sprint(row[idx])
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
