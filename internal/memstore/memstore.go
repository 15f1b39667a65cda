// Package memstore provides an in-memory record store that implements the
// traversal fetch boundary. It backs tests and the simulation paths of the
// CLI, and doubles as a clone target: records can be inserted, primary
// keys allocated, and many-to-many links rewritten without a database.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dbsmedya/graphwalk/internal/classify"
	"github.com/dbsmedya/graphwalk/internal/schema"
)

// Store holds records grouped by type, in insertion order, plus the link
// rows of many-to-many relationships. All operations are safe for
// concurrent use; the walker may resolve several edges of one level
// against the store at once.
type Store struct {
	mu  sync.RWMutex
	reg *schema.Registry

	tables map[string][]*schema.Record
	index  map[schema.Key]*schema.Record

	// links maps "Type.field" of the forward m2m side to source pk to
	// target pks, preserving link insertion order.
	links map[string]map[any][]any

	nextPK map[string]int64
}

// New creates an empty store over the given registry.
func New(reg *schema.Registry) *Store {
	return &Store{
		reg:    reg,
		tables: make(map[string][]*schema.Record),
		index:  make(map[schema.Key]*schema.Record),
		links:  make(map[string]map[any][]any),
		nextPK: make(map[string]int64),
	}
}

// Insert adds a record to the store. Inserting a key that already exists
// replaces the stored record in place.
func (s *Store) Insert(rec *schema.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.reg.Has(rec.Type.Name) {
		return &schema.SchemaError{Type: rec.Type.Name, Reason: "type is not registered"}
	}
	key := rec.Key()
	if existing, ok := s.index[key]; ok {
		rows := s.tables[rec.Type.Name]
		for i := range rows {
			if rows[i] == existing {
				rows[i] = rec
				break
			}
		}
		s.index[key] = rec
		return nil
	}
	s.tables[rec.Type.Name] = append(s.tables[rec.Type.Name], rec)
	s.index[key] = rec

	if pk, ok := toInt64(rec.PK); ok && pk >= s.nextPK[rec.Type.Name] {
		s.nextPK[rec.Type.Name] = pk + 1
	}
	return nil
}

// MustInsert is Insert that panics on error. Intended for tests and
// fixture construction.
func (s *Store) MustInsert(rec *schema.Record) *schema.Record {
	if err := s.Insert(rec); err != nil {
		panic(err)
	}
	return rec
}

// Get returns the stored record for a key.
func (s *Store) Get(key schema.Key) (*schema.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.index[key]
	return rec, ok
}

// All returns the records of one type in insertion order.
func (s *Store) All(typeName string) []*schema.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.tables[typeName]
	out := make([]*schema.Record, len(rows))
	copy(out, rows)
	return out
}

// Count returns the number of stored records of one type.
func (s *Store) Count(typeName string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[typeName])
}

// AllocatePK returns a fresh primary key for the given type: a
// monotonically increasing integer one past the largest integer key seen,
// or a random UUID string when the type's existing keys are strings.
func (s *Store) AllocatePK(typeName string) any {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rows := s.tables[typeName]; len(rows) > 0 {
		if _, ok := rows[0].PK.(string); ok {
			return uuid.NewString()
		}
	}
	if s.nextPK[typeName] == 0 {
		s.nextPK[typeName] = 1
	}
	pk := s.nextPK[typeName]
	s.nextPK[typeName]++
	return pk
}

func linkKey(typeName, field string) string {
	return typeName + "." + field
}

// SetLinks replaces the many-to-many link rows of one forward m2m field
// for one source record.
func (s *Store) SetLinks(typeName, field string, sourcePK any, targetPKs []any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := linkKey(typeName, field)
	if s.links[key] == nil {
		s.links[key] = make(map[any][]any)
	}
	s.links[key][sourcePK] = append([]any(nil), targetPKs...)
}

// Links returns the target pks linked to one source record through a
// forward m2m field, in link insertion order.
func (s *Store) Links(typeName, field string, sourcePK any) []any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	targets := s.links[linkKey(typeName, field)][sourcePK]
	out := make([]any, len(targets))
	copy(out, targets)
	return out
}

// FetchRelated resolves one classified edge for a batch of source
// records. The whole batch is resolved in one pass over the store,
// mirroring the batched IN-clause shape of the SQL backend.
func (s *Store) FetchRelated(_ context.Context, batch []*schema.Record, edge classify.Edge) (map[schema.Key][]*schema.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[schema.Key][]*schema.Record)

	switch edge.Kind {
	case schema.KindFK, schema.KindO2O:
		for _, parent := range batch {
			pk := parent.Ref(edge.Field)
			if pk == nil {
				continue
			}
			if rec, ok := s.index[schema.Key{Type: edge.Target, PK: pk}]; ok {
				out[parent.Key()] = append(out[parent.Key()], rec)
			}
		}

	case schema.KindGenericFK:
		for _, parent := range batch {
			ref, ok := parent.GenericTarget(edge.Field)
			if !ok {
				continue
			}
			if rec, found := s.index[schema.Key{Type: ref.Type, PK: ref.PK}]; found {
				out[parent.Key()] = append(out[parent.Key()], rec)
			}
		}

	case schema.KindReverseFK, schema.KindReverseO2O:
		remote, err := s.remoteField(edge)
		if err != nil {
			return nil, err
		}
		parents := batchByPK(batch)
		for _, cand := range s.tables[edge.Target] {
			if parent, ok := parents[cand.Ref(remote)]; ok {
				out[parent.Key()] = append(out[parent.Key()], cand)
			}
		}

	case schema.KindM2M:
		rows := s.links[linkKey(edge.Source.Name, edge.Field)]
		for _, parent := range batch {
			for _, targetPK := range rows[parent.PK] {
				if rec, ok := s.index[schema.Key{Type: edge.Target, PK: targetPK}]; ok {
					out[parent.Key()] = append(out[parent.Key()], rec)
				}
			}
		}

	case schema.KindReverseM2M:
		remote, err := s.remoteField(edge)
		if err != nil {
			return nil, err
		}
		rows := s.links[linkKey(edge.Target, remote)]
		parents := batchByPK(batch)
		for _, cand := range s.tables[edge.Target] {
			for _, linkedPK := range rows[cand.PK] {
				if parent, ok := parents[linkedPK]; ok {
					out[parent.Key()] = append(out[parent.Key()], cand)
				}
			}
		}

	case schema.KindGenericRel:
		remote, err := s.remoteField(edge)
		if err != nil {
			return nil, err
		}
		parents := batchByPK(batch)
		for _, cand := range s.tables[edge.Target] {
			ref, ok := cand.GenericTarget(remote)
			if !ok || ref.Type != edge.Source.Name {
				continue
			}
			if parent, found := parents[ref.PK]; found {
				out[parent.Key()] = append(out[parent.Key()], cand)
			}
		}

	default:
		return nil, fmt.Errorf("edge %s.%s has non-relational kind %s", edge.Source.Name, edge.Field, edge.Kind)
	}

	return out, nil
}

// remoteField resolves the forward field name a reverse edge inverts.
func (s *Store) remoteField(edge classify.Edge) (string, error) {
	f, ok := edge.Source.Field(edge.Field)
	if !ok || f.RemoteField == "" {
		return "", &schema.SchemaError{
			Type:   edge.Source.Name,
			Field:  edge.Field,
			Reason: "reverse field declares no remote field",
		}
	}
	return f.RemoteField, nil
}

func batchByPK(batch []*schema.Record) map[any]*schema.Record {
	m := make(map[any]*schema.Record, len(batch))
	for _, rec := range batch {
		m[rec.PK] = rec
	}
	return m
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}
