package schema

import "fmt"

// Key is the deduplication identity of a record: (type name, primary key).
// Two records with the same Key are the same node regardless of field
// contents. PK values must be comparable (integers, strings).
type Key struct {
	Type string
	PK   any
}

// String formats the key as "Type:pk".
func (k Key) String() string {
	return fmt.Sprintf("%s:%v", k.Type, k.PK)
}

// GenericRef is the value of a KindGenericFK field: a reference whose
// concrete target type is carried per record.
type GenericRef struct {
	Type string
	PK   any
}

// Record is one fetched instance of a RecordType.
//
// Values holds value-field data keyed by field name. Refs holds forward
// reference data keyed by field name: the target PK for fk/o2o fields
// (nil when the reference is absent) and a GenericRef for generic_fk
// fields. Multi-valued and reverse relationships are not stored on the
// record; they are resolved through the fetch boundary.
type Record struct {
	Type   *RecordType
	PK     any
	Values map[string]any
	Refs   map[string]any
}

// NewRecord creates a Record with empty value and reference maps.
func NewRecord(rt *RecordType, pk any) *Record {
	return &Record{
		Type:   rt,
		PK:     pk,
		Values: make(map[string]any),
		Refs:   make(map[string]any),
	}
}

// Key returns the record's deduplication identity.
func (r *Record) Key() Key {
	return Key{Type: r.Type.Name, PK: r.PK}
}

// Ref returns the target PK stored for a forward reference field,
// or nil when the reference is absent.
func (r *Record) Ref(field string) any {
	if r.Refs == nil {
		return nil
	}
	return r.Refs[field]
}

// GenericTarget returns the GenericRef stored for a generic_fk field.
func (r *Record) GenericTarget(field string) (GenericRef, bool) {
	v, ok := r.Refs[field]
	if !ok || v == nil {
		return GenericRef{}, false
	}
	ref, ok := v.(GenericRef)
	return ref, ok
}

// SetValue sets a value field.
func (r *Record) SetValue(field string, v any) *Record {
	r.Values[field] = v
	return r
}

// SetRef sets a forward reference field to the given target PK.
func (r *Record) SetRef(field string, targetPK any) *Record {
	r.Refs[field] = targetPK
	return r
}

// SetGenericRef sets a generic_fk field to the given concrete target.
func (r *Record) SetGenericRef(field, targetType string, targetPK any) *Record {
	r.Refs[field] = GenericRef{Type: targetType, PK: targetPK}
	return r
}
