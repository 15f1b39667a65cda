// Package schema provides the record type registry that describes the
// relational domain model: record types, their primary keys, and their
// declared relationship fields. The registry is built once (from code or
// configuration) and is immutable afterwards.
package schema

import "fmt"

// FieldKind classifies a declared field for graph walking purposes.
type FieldKind int

const (
	// KindValue is a plain data field with no relationship semantics.
	KindValue FieldKind = iota
	// KindFK is a forward single-valued reference to another type.
	KindFK
	// KindO2O is a forward single-valued reference with a unique constraint.
	KindO2O
	// KindM2M is a forward multi-valued reference through a join table.
	KindM2M
	// KindReverseFK is the inverse side of a KindFK declared on another type.
	KindReverseFK
	// KindReverseO2O is the inverse side of a KindO2O declared on another type.
	KindReverseO2O
	// KindReverseM2M is the inverse side of a KindM2M declared on another type.
	KindReverseM2M
	// KindGenericFK is a polymorphic single-valued reference whose target
	// type varies per record and is only known at resolution time.
	KindGenericFK
	// KindGenericRel is the inverse side of a KindGenericFK: all records of
	// a fixed type whose generic reference points at the parent.
	KindGenericRel
)

// String returns the configuration spelling of the kind.
func (k FieldKind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindFK:
		return "fk"
	case KindO2O:
		return "o2o"
	case KindM2M:
		return "m2m"
	case KindReverseFK:
		return "reverse_fk"
	case KindReverseO2O:
		return "reverse_o2o"
	case KindReverseM2M:
		return "reverse_m2m"
	case KindGenericFK:
		return "generic_fk"
	case KindGenericRel:
		return "generic_rel"
	default:
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
}

// Relational reports whether the field declares a relationship edge.
func (k FieldKind) Relational() bool {
	return k != KindValue
}

// Field describes one declared field of a RecordType.
type Field struct {
	Name string
	Kind FieldKind

	// Target is the referenced type name. For reverse kinds it is the type
	// that declares the forward side. Empty for KindGenericFK, whose target
	// is late-bound.
	Target string

	// RemoteField names the forward field on Target that a reverse field
	// inverts (reverse_fk/reverse_o2o/reverse_m2m/generic_rel only).
	RemoteField string

	// Nullable marks a forward reference that may be absent. Nullable
	// references are excluded from dependency ordering.
	Nullable bool

	// Column is the storage column backing the field. Defaults to the field
	// name for value fields and "<name>_id" for forward references.
	Column string

	// TypeColumn is the storage column holding the concrete type name of a
	// generic reference (generic_fk only).
	TypeColumn string

	// JoinTable, SourceColumn and TargetColumn describe the join table of a
	// KindM2M field.
	JoinTable    string
	SourceColumn string
	TargetColumn string
}

// StorageColumn returns the column backing this field, applying defaults.
func (f *Field) StorageColumn() string {
	if f.Column != "" {
		return f.Column
	}
	switch f.Kind {
	case KindFK, KindO2O, KindGenericFK:
		return f.Name + "_id"
	default:
		return f.Name
	}
}

// RecordType describes one type of the domain model.
type RecordType struct {
	Name    string
	Table   string // storage table; defaults to Name if empty
	PKField string // primary key column; defaults to "id" if empty
	Fields  []Field

	fieldIndex map[string]int
}

// NewRecordType creates a RecordType and indexes its fields.
func NewRecordType(name string, fields ...Field) *RecordType {
	rt := &RecordType{Name: name, Fields: fields}
	rt.buildIndex()
	return rt
}

func (rt *RecordType) buildIndex() {
	rt.fieldIndex = make(map[string]int, len(rt.Fields))
	for i := range rt.Fields {
		rt.fieldIndex[rt.Fields[i].Name] = i
	}
}

// Field returns the declared field with the given name.
func (rt *RecordType) Field(name string) (*Field, bool) {
	if rt.fieldIndex == nil {
		rt.buildIndex()
	}
	i, ok := rt.fieldIndex[name]
	if !ok {
		return nil, false
	}
	return &rt.Fields[i], true
}

// StorageTable returns the table backing this type, applying defaults.
func (rt *RecordType) StorageTable() string {
	if rt.Table != "" {
		return rt.Table
	}
	return rt.Name
}

// PKColumn returns the primary key column, applying the "id" default.
func (rt *RecordType) PKColumn() string {
	if rt.PKField != "" {
		return rt.PKField
	}
	return "id"
}

// RelationFields returns the declared relationship fields in declaration order.
func (rt *RecordType) RelationFields() []*Field {
	var out []*Field
	for i := range rt.Fields {
		if rt.Fields[i].Kind.Relational() {
			out = append(out, &rt.Fields[i])
		}
	}
	return out
}

// ValueFields returns the declared value fields in declaration order.
func (rt *RecordType) ValueFields() []*Field {
	var out []*Field
	for i := range rt.Fields {
		if rt.Fields[i].Kind == KindValue {
			out = append(out, &rt.Fields[i])
		}
	}
	return out
}

// Registry maps type names to their RecordType descriptors. Registration
// order is preserved for deterministic iteration.
type Registry struct {
	types map[string]*RecordType
	order []string
}

// NewRegistry creates a Registry from the given types.
// Duplicate type names are rejected.
func NewRegistry(types ...*RecordType) (*Registry, error) {
	r := &Registry{types: make(map[string]*RecordType, len(types))}
	for _, rt := range types {
		if _, exists := r.types[rt.Name]; exists {
			return nil, fmt.Errorf("record type %q registered more than once", rt.Name)
		}
		rt.buildIndex()
		r.types[rt.Name] = rt
		r.order = append(r.order, rt.Name)
	}
	return r, nil
}

// MustNewRegistry is NewRegistry that panics on error. Intended for tests
// and static schema declarations.
func MustNewRegistry(types ...*RecordType) *Registry {
	r, err := NewRegistry(types...)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve returns the RecordType with the given name, or a *SchemaError.
func (r *Registry) Resolve(name string) (*RecordType, error) {
	rt, ok := r.types[name]
	if !ok {
		return nil, &SchemaError{Type: name, Reason: "type is not registered"}
	}
	return rt, nil
}

// Has reports whether a type with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.types[name]
	return ok
}

// Types returns all registered types in registration order.
func (r *Registry) Types() []*RecordType {
	out := make([]*RecordType, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.types[name])
	}
	return out
}

// TypeNames returns all registered type names in registration order.
func (r *Registry) TypeNames() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	return len(r.types)
}
