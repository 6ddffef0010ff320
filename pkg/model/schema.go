package model

import (
	"sort"
	"time"
)

// Column describes a single column of a warehouse table.
type Column struct {
	Name        string
	Type        string
	Description string
}

// RowCountUnknown marks a table whose row count could not be fetched.
const RowCountUnknown int64 = -1

// Table holds the column list and basic statistics of one table.
type Table struct {
	Columns  []Column
	RowCount int64
}

// SchemaSnapshot is an immutable view of the warehouse catalog, keyed as
// catalog -> schema -> table. It is built once and replaced wholesale on
// refresh; callers must not mutate it.
type SchemaSnapshot struct {
	Catalogs map[string]map[string]map[string]*Table
	BuiltAt  time.Time
}

// NewSchemaSnapshot returns an empty snapshot built at the given time.
func NewSchemaSnapshot(builtAt time.Time) *SchemaSnapshot {
	return &SchemaSnapshot{
		Catalogs: make(map[string]map[string]map[string]*Table),
		BuiltAt:  builtAt,
	}
}

// Put registers a table under catalog.schema, creating intermediate maps.
func (s *SchemaSnapshot) Put(catalog, schema, table string, t *Table) {
	if _, ok := s.Catalogs[catalog]; !ok {
		s.Catalogs[catalog] = make(map[string]map[string]*Table)
	}
	if _, ok := s.Catalogs[catalog][schema]; !ok {
		s.Catalogs[catalog][schema] = make(map[string]*Table)
	}
	s.Catalogs[catalog][schema][table] = t
}

// Empty reports whether the snapshot contains no tables.
func (s *SchemaSnapshot) Empty() bool {
	if s == nil {
		return true
	}
	for _, schemas := range s.Catalogs {
		for _, tables := range schemas {
			if len(tables) > 0 {
				return false
			}
		}
	}
	return true
}

// TableCount returns the total number of tables in the snapshot.
func (s *SchemaSnapshot) TableCount() int {
	var n int
	for _, schemas := range s.Catalogs {
		for _, tables := range schemas {
			n += len(tables)
		}
	}
	return n
}

// SortedKeys returns map keys in lexicographic order, used to keep
// prompt rendering stable across calls.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
