// Package scope declares which record types a graph walk may traverse into
// and how individual fields are treated. A Spec is an immutable value;
// composition (Merge, Exclude) always produces a new Spec.
package scope

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dbsmedya/graphwalk/internal/schema"
)

// Overrides maps field names to their override directives.
type Overrides map[string]FieldOverride

// Spec is the scope declaration for a walk: the set of in-scope type names
// and, per type, field-level overrides. A type present with an empty
// override map is in scope; a type absent entirely is out of scope.
type Spec struct {
	types map[string]Overrides
	order []string
}

// New creates a Spec containing the given types with no overrides.
func New(types ...string) *Spec {
	s := &Spec{types: make(map[string]Overrides, len(types))}
	for _, t := range types {
		s.add(t, nil)
	}
	return s
}

// WithOverrides creates a Spec from a full type -> overrides mapping.
func WithOverrides(m map[string]Overrides) *Spec {
	names := make([]string, 0, len(m))
	for t := range m {
		names = append(names, t)
	}
	sort.Strings(names)

	s := &Spec{types: make(map[string]Overrides, len(m))}
	for _, t := range names {
		s.add(t, m[t])
	}
	return s
}

// FromRegistry creates a Spec containing every registered type.
func FromRegistry(reg *schema.Registry) *Spec {
	return New(reg.TypeNames()...)
}

func (s *Spec) add(t string, ov Overrides) {
	if _, exists := s.types[t]; !exists {
		s.order = append(s.order, t)
	}
	merged := s.types[t]
	if merged == nil {
		merged = make(Overrides)
	}
	for f, o := range ov {
		merged[f] = o
	}
	s.types[t] = merged
}

// Contains reports whether the given type is in scope.
func (s *Spec) Contains(typeName string) bool {
	_, ok := s.types[typeName]
	return ok
}

// Types returns the in-scope type names in declaration order.
func (s *Spec) Types() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of in-scope types.
func (s *Spec) Len() int {
	return len(s.types)
}

// OverridesFor returns the field overrides declared for a type. The result
// may be nil for a type with no overrides and must not be mutated.
func (s *Spec) OverridesFor(typeName string) Overrides {
	return s.types[typeName]
}

// Override returns the override declared for a single field, if any.
func (s *Spec) Override(typeName, field string) (FieldOverride, bool) {
	ov, ok := s.types[typeName][field]
	return ov, ok
}

// Merge composes two specs into a new one. Type sets union; per-type
// override maps union; on a field present in both, other's override wins.
func (s *Spec) Merge(other *Spec) *Spec {
	out := &Spec{types: make(map[string]Overrides, len(s.types)+len(other.types))}
	for _, t := range s.order {
		out.add(t, s.types[t])
	}
	for _, t := range other.order {
		out.add(t, other.types[t])
	}
	return out
}

// Exclude returns a new Spec with the given types removed.
func (s *Spec) Exclude(types ...string) *Spec {
	drop := make(map[string]bool, len(types))
	for _, t := range types {
		drop[t] = true
	}
	out := &Spec{types: make(map[string]Overrides, len(s.types))}
	for _, t := range s.order {
		if !drop[t] {
			out.add(t, s.types[t])
		}
	}
	return out
}

// Validate checks that every in-scope type is registered and every override
// names a declared field of its type. Violations are reported as a
// *ScopeConflictError at construction time rather than mid-walk.
func (s *Spec) Validate(reg *schema.Registry) error {
	for _, t := range s.order {
		rt, err := reg.Resolve(t)
		if err != nil {
			return &ScopeConflictError{Type: t, Reason: "in-scope type is not registered"}
		}
		fields := make([]string, 0, len(s.types[t]))
		for f := range s.types[t] {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			if _, ok := rt.Field(f); !ok {
				return &ScopeConflictError{
					Type:   t,
					Field:  f,
					Reason: fmt.Sprintf("no such field (declared: %s)", strings.Join(fieldNames(rt), ", ")),
				}
			}
		}
	}
	return nil
}

func fieldNames(rt *schema.RecordType) []string {
	out := make([]string, 0, len(rt.Fields))
	for i := range rt.Fields {
		out = append(out, rt.Fields[i].Name)
	}
	return out
}

// ScopeConflictError reports an override that references a type or field
// not declared anywhere in the composed spec or registry.
type ScopeConflictError struct {
	Type   string
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ScopeConflictError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("scope conflict: override for %s.%s: %s", e.Type, e.Field, e.Reason)
	}
	return fmt.Sprintf("scope conflict: %s: %s", e.Type, e.Reason)
}
