// Package dataset declares the consumed data-store interface feeding skip
// condition evaluation and deviation context schema summaries. Dataset
// loading and file parsing happen outside the engine; this package only sees
// the resulting schema.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrNoDataset is returned when a session has no dataset loaded.
var ErrNoDataset = errors.New("no dataset loaded for session")

// Column describes one dataset column including its distinct values when the
// loader computed them (used by stage skip conditions).
type Column struct {
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	DistinctValues []string `json:"distinct_values,omitempty"`
}

// Schema is the engine-visible summary of a loaded dataset.
type Schema struct {
	Columns  []Column `json:"columns"`
	RowCount int      `json:"row_count"`
	Handle   string   `json:"handle"` // Opaque reference into the data store
}

// Column returns the named column, case-insensitively.
func (s *Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// DistinctValues returns the distinct values recorded for a column, or nil if
// the column is unknown or distincts were not computed.
func (s *Schema) DistinctValues(column string) []string {
	c, ok := s.Column(column)
	if !ok {
		return nil
	}
	return c.DistinctValues
}

// Summary renders a compact human-readable schema description for prompt
// injection ("columns: region (string), rate (number); 1204 rows").
func (s *Schema) Summary() string {
	if s == nil {
		return "no dataset loaded"
	}
	cols := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = fmt.Sprintf("%s (%s)", c.Name, c.Type)
	}
	return fmt.Sprintf("columns: %s; %d rows", strings.Join(cols, ", "), s.RowCount)
}

// Store is the consumed data-store contract: it resolves a session to the
// schema of its uploaded dataset.
type Store interface {
	Load(ctx context.Context, sessionID string) (*Schema, error)
}

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore is a process-local Store for tests and demos.
type InMemoryStore struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

// NewInMemoryStore constructs an empty in-memory dataset store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{schemas: make(map[string]*Schema)}
}

// Put registers a schema for a session.
func (s *InMemoryStore) Put(sessionID string, schema *Schema) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas[sessionID] = schema
}

// Load implements Store.
func (s *InMemoryStore) Load(_ context.Context, sessionID string) (*Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schema, ok := s.schemas[sessionID]
	if !ok {
		return nil, ErrNoDataset
	}
	return schema, nil
}
