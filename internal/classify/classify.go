// Package classify maps a record type's declared relationship fields onto
// the fixed taxonomy of traversal edges. Classification is a pure function
// of (record type, scope spec, registry): it performs no data access, so
// results may be cached for the duration of a walk.
package classify

import (
	"github.com/dbsmedya/graphwalk/internal/schema"
	"github.com/dbsmedya/graphwalk/internal/scope"
)

// Edge is a classified relationship of a record type: the source type, the
// declaring field, the target type (empty for late-bound generic
// references), and scope membership of the target.
type Edge struct {
	Source *schema.RecordType
	Field  string
	Target string
	Kind   schema.FieldKind

	// Nullable marks a forward reference that may be absent.
	Nullable bool

	// InScope reports whether the target type is a member of the scope.
	// Always true for late-bound edges, whose membership is re-evaluated
	// per resolved record by the walker.
	InScope bool

	// LateBound marks a generic_fk edge: the concrete target type is only
	// known per record, so scope membership must be checked at resolution.
	LateBound bool
}

// Forward reports whether the edge is declared on its source type (as
// opposed to being the inverse side of a relation declared elsewhere).
func (e Edge) Forward() bool {
	switch e.Kind {
	case schema.KindFK, schema.KindO2O, schema.KindM2M, schema.KindGenericFK:
		return true
	default:
		return false
	}
}

// Multi reports whether the edge can surface more than one target per
// source record.
func (e Edge) Multi() bool {
	switch e.Kind {
	case schema.KindM2M, schema.KindReverseFK, schema.KindReverseM2M, schema.KindGenericRel:
		return true
	default:
		return false
	}
}

// Classify returns the ordered edge set of a record type under the given
// scope. Every relationship field yields exactly one edge. A field whose
// target type cannot be resolved fails with a *schema.SchemaError; this is
// fatal for the whole type, not recoverable per edge.
func Classify(rt *schema.RecordType, spec *scope.Spec, reg *schema.Registry) ([]Edge, error) {
	var edges []Edge
	for _, f := range rt.RelationFields() {
		e := Edge{
			Source:   rt,
			Field:    f.Name,
			Target:   f.Target,
			Kind:     f.Kind,
			Nullable: f.Nullable,
		}

		if f.Kind == schema.KindGenericFK {
			// Target varies per record; surface the edge and let the
			// walker re-check scope per resolved instance.
			e.LateBound = true
			e.InScope = true
			edges = append(edges, e)
			continue
		}

		if f.Target == "" {
			return nil, &schema.SchemaError{Type: rt.Name, Field: f.Name, Reason: "relationship field has no target type"}
		}
		if !reg.Has(f.Target) {
			return nil, &schema.SchemaError{Type: rt.Name, Field: f.Name, Reason: "target type " + f.Target + " is not registered"}
		}
		e.InScope = spec.Contains(f.Target)
		edges = append(edges, e)
	}
	return edges, nil
}

// Traversable reports whether the walker should follow the edge, applying
// override precedence: Ignore > Follow > default classification. Out-of-
// scope edges are never traversable regardless of overrides; late-bound
// edges are traversable here and filtered per instance at resolution.
func Traversable(e Edge, spec *scope.Spec) bool {
	ov, ok := spec.Override(e.Source.Name, e.Field)
	if ok {
		if _, ignored := ov.(scope.Ignore); ignored {
			return false
		}
	}
	return e.InScope || e.LateBound
}

// Cache memoizes Classify results per record type for one (spec, registry)
// pair. Not safe for concurrent use; a walker owns one cache per walk.
type Cache struct {
	spec  *scope.Spec
	reg   *schema.Registry
	edges map[string][]Edge
}

// NewCache creates an empty classification cache.
func NewCache(spec *scope.Spec, reg *schema.Registry) *Cache {
	return &Cache{
		spec:  spec,
		reg:   reg,
		edges: make(map[string][]Edge),
	}
}

// Edges returns the classified edge set of a type, computing it on first use.
func (c *Cache) Edges(rt *schema.RecordType) ([]Edge, error) {
	if cached, ok := c.edges[rt.Name]; ok {
		return cached, nil
	}
	edges, err := Classify(rt, c.spec, c.reg)
	if err != nil {
		return nil, err
	}
	c.edges[rt.Name] = edges
	return edges, nil
}
