package walker

import (
	"github.com/elliotchance/orderedmap/v2"

	"github.com/dbsmedya/graphwalk/internal/graph"
	"github.com/dbsmedya/graphwalk/internal/schema"
)

// Result contains all records collected during a walk, deduplicated by
// (type, pk). It is append-only while the walk runs and read-only after
// the walk returns. Insertion order is preserved for display purposes;
// TopologicalOrder is authoritative for dependency purposes.
type Result struct {
	visited *orderedmap.OrderedMap[schema.Key, *schema.Record]
	frozen  bool
}

func newResult() *Result {
	return &Result{
		visited: orderedmap.NewOrderedMap[schema.Key, *schema.Record](),
	}
}

// ResultOf builds a frozen Result from existing records, deduplicated by
// key in argument order. Used by consumers that derive new record sets
// from a walk (cloning) and by tests.
func ResultOf(recs ...*schema.Record) *Result {
	r := newResult()
	for _, rec := range recs {
		r.insert(rec)
	}
	r.freeze()
	return r
}

// insert adds a record unless its key is already present. Returns true if
// the record was admitted.
func (r *Result) insert(rec *schema.Record) bool {
	if r.frozen {
		return false
	}
	key := rec.Key()
	if _, exists := r.visited.Get(key); exists {
		return false
	}
	r.visited.Set(key, rec)
	return true
}

func (r *Result) freeze() {
	r.frozen = true
}

// InstanceCount returns the number of collected records.
func (r *Result) InstanceCount() int {
	return r.visited.Len()
}

// TypeCount returns the number of distinct record types in the result.
func (r *Result) TypeCount() int {
	seen := make(map[string]bool)
	for el := r.visited.Front(); el != nil; el = el.Next() {
		seen[el.Key.Type] = true
	}
	return len(seen)
}

// Contains reports whether a record with the same (type, pk) identity was
// collected.
func (r *Result) Contains(rec *schema.Record) bool {
	return r.ContainsKey(rec.Key())
}

// ContainsKey reports whether the given key was collected.
func (r *Result) ContainsKey(key schema.Key) bool {
	_, ok := r.visited.Get(key)
	return ok
}

// Get returns the collected record for a key.
func (r *Result) Get(key schema.Key) (*schema.Record, bool) {
	return r.visited.Get(key)
}

// All returns every collected record in visitation order.
func (r *Result) All() []*schema.Record {
	out := make([]*schema.Record, 0, r.visited.Len())
	for el := r.visited.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value)
	}
	return out
}

// Keys returns every visited key in visitation order.
func (r *Result) Keys() []schema.Key {
	out := make([]schema.Key, 0, r.visited.Len())
	for el := r.visited.Front(); el != nil; el = el.Next() {
		out = append(out, el.Key)
	}
	return out
}

// TypeNames returns the distinct type names in first-visited order.
func (r *Result) TypeNames() []string {
	seen := make(map[string]bool)
	var out []string
	for el := r.visited.Front(); el != nil; el = el.Next() {
		if !seen[el.Key.Type] {
			seen[el.Key.Type] = true
			out = append(out, el.Key.Type)
		}
	}
	return out
}

// ByType groups the collected records by type name, each group in
// first-visited order.
func (r *Result) ByType() map[string][]*schema.Record {
	groups := make(map[string][]*schema.Record)
	for el := r.visited.Front(); el != nil; el = el.Next() {
		groups[el.Key.Type] = append(groups[el.Key.Type], el.Value)
	}
	return groups
}

// RecordsOf returns the collected records of one type in first-visited
// order.
func (r *Result) RecordsOf(typeName string) []*schema.Record {
	var out []*schema.Record
	for el := r.visited.Front(); el != nil; el = el.Next() {
		if el.Key.Type == typeName {
			out = append(out, el.Value)
		}
	}
	return out
}

// Union produces a new Result whose key set is the union of both results.
// On a key present in both, the receiver's record wins (first-wins).
// The receiver and argument are unchanged.
func (r *Result) Union(other *Result) *Result {
	out := newResult()
	for el := r.visited.Front(); el != nil; el = el.Next() {
		out.insert(el.Value)
	}
	for el := other.visited.Front(); el != nil; el = el.Next() {
		out.insert(el.Value)
	}
	out.freeze()
	return out
}

// dependencyGraph builds the type-level dependency graph of the result:
// an edge target -> source for every non-nullable forward single-valued
// reference between types present in the result. Self-references and
// nullable references are excluded so they cannot manufacture cycles.
func (r *Result) dependencyGraph() *graph.Graph {
	present := make(map[string]bool)
	for el := r.visited.Front(); el != nil; el = el.Next() {
		present[el.Key.Type] = true
	}

	g := graph.New()
	seenType := make(map[string]bool)
	for el := r.visited.Front(); el != nil; el = el.Next() {
		rt := el.Value.Type
		if seenType[rt.Name] {
			continue
		}
		seenType[rt.Name] = true
		g.AddNode(rt.Name)

		for _, f := range rt.RelationFields() {
			if f.Kind != schema.KindFK && f.Kind != schema.KindO2O {
				continue
			}
			if f.Nullable || f.Target == rt.Name || !present[f.Target] {
				continue
			}
			g.AddEdgeWithMeta(f.Target, rt.Name, f.Name, f.Nullable)
		}
	}
	return g
}

// TopologicalOrder returns the result's type names in dependency order:
// every type a record depends on through a mandatory reference appears
// before its dependent. When the mandatory references among the present
// types form a genuine cycle, the cycle members are appended in
// first-visited order after the orderable prefix; use
// TopologicalOrderStrict to treat that condition as an error instead.
func (r *Result) TopologicalOrder() []string {
	order, _ := r.dependencyGraph().TopologicalSortWithFallback()
	return order
}

// TopologicalOrderStrict is TopologicalOrder that fails with a
// *graph.CycleError when mandatory references among the present types
// cannot be linearized.
func (r *Result) TopologicalOrderStrict() ([]string, error) {
	return r.dependencyGraph().TopologicalSort()
}
