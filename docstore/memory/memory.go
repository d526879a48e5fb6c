// Package memory provides an in-memory docstore.Store (for testing/dev).
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/govhr/coc-engine/docstore"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]docstore.Fields
}

func New() *Store {
	return &Store{collections: make(map[string]map[string]docstore.Fields)}
}

func (s *Store) coll(name string) map[string]docstore.Fields {
	c, ok := s.collections[name]
	if !ok {
		c = make(map[string]docstore.Fields)
		s.collections[name] = c
	}
	return c
}

func (s *Store) Get(_ context.Context, collection, id string) (docstore.Doc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, ok := s.coll(collection)[id]
	if !ok {
		return docstore.Doc{}, docstore.ErrNotFound
	}
	return docstore.Doc{ID: id, Fields: fields.Clone()}, nil
}

func (s *Store) GetAll(_ context.Context, collection string, limit int) ([]docstore.Doc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]docstore.Doc, 0, len(s.coll(collection)))
	for id, fields := range s.coll(collection) {
		docs = append(docs, docstore.Doc{ID: id, Fields: fields.Clone()})
	}
	sortDocs(docs)
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (s *Store) Where(_ context.Context, collection, field string, op docstore.Op, value any) ([]docstore.Doc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []docstore.Doc
	for id, fields := range s.coll(collection) {
		if matchesOp(fields[field], op, value) {
			docs = append(docs, docstore.Doc{ID: id, Fields: fields.Clone()})
		}
	}
	sortDocs(docs)
	return docs, nil
}

func (s *Store) Match(_ context.Context, collection string, criteria docstore.Fields) ([]docstore.Doc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []docstore.Doc
	for id, fields := range s.coll(collection) {
		ok := true
		for k, v := range criteria {
			if !matchesOp(fields[k], docstore.OpEq, v) {
				ok = false
				break
			}
		}
		if ok {
			docs = append(docs, docstore.Doc{ID: id, Fields: fields.Clone()})
		}
	}
	sortDocs(docs)
	return docs, nil
}

func (s *Store) Create(_ context.Context, collection, id string, fields docstore.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(collection, id, fields)
}

func (s *Store) createLocked(collection, id string, fields docstore.Fields) error {
	c := s.coll(collection)
	if _, exists := c[id]; exists {
		return docstore.ErrExists
	}
	c[id] = fields.Clone()
	return nil
}

func (s *Store) Update(_ context.Context, collection, id string, patch docstore.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(collection, id, patch)
}

func (s *Store) updateLocked(collection, id string, patch docstore.Fields) error {
	c := s.coll(collection)
	existing, ok := c[id]
	if !ok {
		return docstore.ErrNotFound
	}
	merged := existing.Clone()
	for k, v := range patch {
		merged[k] = v
	}
	c[id] = merged
	return nil
}

func (s *Store) UpdateIf(_ context.Context, collection, id string, patch, expect docstore.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(collection)
	existing, ok := c[id]
	if !ok {
		return docstore.ErrNotFound
	}
	for k, v := range expect {
		if !matchesOp(existing[k], docstore.OpEq, v) {
			return docstore.ErrCASMismatch
		}
	}
	merged := existing.Clone()
	for k, v := range patch {
		merged[k] = v
	}
	c[id] = merged
	return nil
}

func (s *Store) Upsert(_ context.Context, collection, id string, fields docstore.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coll(collection)[id] = fields.Clone()
	return nil
}

func (s *Store) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.coll(collection), id)
	return nil
}

func (s *Store) DeleteMany(_ context.Context, collection string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.coll(collection), id)
	}
	return nil
}

func (s *Store) MaxID(_ context.Context, collection, idField string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var max int64
	for _, fields := range s.coll(collection) {
		if n, ok := asInt64(fields[idField]); ok && n > max {
			max = n
		}
	}
	return max, nil
}

// BatchWrite applies all writes atomically.
// Simulated with a snapshot + rollback on error, like a transaction.
func (s *Store) BatchWrite(_ context.Context, writes []docstore.Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot()
	for _, w := range writes {
		var err error
		switch w.Kind {
		case docstore.WriteCreate:
			err = s.createLocked(w.Collection, w.ID, w.Fields)
		case docstore.WriteUpdate:
			err = s.updateLocked(w.Collection, w.ID, w.Fields)
		case docstore.WriteUpsert:
			s.coll(w.Collection)[w.ID] = w.Fields.Clone()
		case docstore.WriteDelete:
			delete(s.coll(w.Collection), w.ID)
		}
		if err != nil {
			s.restore(snapshot)
			return err
		}
	}
	return nil
}

func (s *Store) snapshot() map[string]map[string]docstore.Fields {
	snap := make(map[string]map[string]docstore.Fields, len(s.collections))
	for name, c := range s.collections {
		cc := make(map[string]docstore.Fields, len(c))
		for id, fields := range c {
			cc[id] = fields.Clone()
		}
		snap[name] = cc
	}
	return snap
}

func (s *Store) restore(snap map[string]map[string]docstore.Fields) {
	s.collections = snap
}

// =============================================================================
// VALUE COMPARISON
// =============================================================================

func sortDocs(docs []docstore.Doc) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
}

// matchesOp compares a stored value against a query value.
// Numbers compare numerically across int/int64/float64; times compare as
// instants; everything else compares by string form.
func matchesOp(stored any, op docstore.Op, value any) bool {
	cmp, comparable := compare(stored, value)
	switch op {
	case docstore.OpEq:
		return comparable && cmp == 0
	case docstore.OpNeq:
		return !comparable || cmp != 0
	case docstore.OpLt:
		return comparable && cmp < 0
	case docstore.OpLte:
		return comparable && cmp <= 0
	case docstore.OpGt:
		return comparable && cmp > 0
	case docstore.OpGte:
		return comparable && cmp >= 0
	}
	return false
}

func compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		if a == nil && b == nil {
			return 0, true
		}
		return 0, false
	}

	if af, aok := asFloat64(a); aok {
		bf, bok := asFloat64(b)
		if !bok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}

	if at, aok := a.(time.Time); aok {
		bt, bok := b.(time.Time)
		if !bok {
			return 0, false
		}
		switch {
		case at.Before(bt):
			return -1, true
		case at.After(bt):
			return 1, true
		}
		return 0, true
	}

	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}

	ab, aok := a.(bool)
	bb, bok := b.(bool)
	if aok && bok {
		if ab == bb {
			return 0, true
		}
		if !ab {
			return -1, true
		}
		return 1, true
	}

	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}
