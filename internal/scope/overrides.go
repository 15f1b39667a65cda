package scope

import (
	"github.com/dbsmedya/graphwalk/internal/schema"
)

// Ctx is the opaque caller context threaded through every override
// evaluation during a walk. It is never stored globally.
type Ctx map[string]any

// FieldOverride modulates how a single field of an in-scope type is treated
// during walking and at consumption time (export, clone).
//
// Override precedence on an edge is Ignore > Follow > default classification.
// SetValue, KeepOriginal and Anonymize never affect traversal, and no
// override makes an out-of-scope edge traversable.
type FieldOverride interface {
	isOverride()
}

// FilterFunc decides whether a candidate record surfaced by an edge should
// be followed. It receives the walk context and the candidate.
type FilterFunc func(ctx Ctx, rec *schema.Record) bool

// Follow forces traversal of an edge and optionally restricts it.
//
// Filter is applied per candidate record; Limit truncates the filtered
// candidate set per parent record, preserving fetch order. FetchHint is an
// opaque string passed through to the fetch boundary (for example a
// prefetch or index hint).
type Follow struct {
	Filter    FilterFunc
	FetchHint string
	Limit     int // 0 means unlimited
}

func (Follow) isOverride() {}

// Ignore suppresses traversal of an edge that classification would
// otherwise mark traversable.
type Ignore struct{}

func (Ignore) isOverride() {}

// ValueFunc computes a replacement field value from a record and context.
type ValueFunc func(rec *schema.Record, ctx Ctx) any

// SetValue replaces a field's value at consumption time (clone, export).
// Either Value or Func is set; Func wins when both are present.
// It has no effect on traversal.
type SetValue struct {
	Value any
	Func  ValueFunc
}

func (SetValue) isOverride() {}

// Resolve returns the replacement value for the given record.
func (o SetValue) Resolve(rec *schema.Record, ctx Ctx) any {
	if o.Func != nil {
		return o.Func(rec, ctx)
	}
	return o.Value
}

// WhenFunc conditions a KeepOriginal override on the record being consumed.
type WhenFunc func(rec *schema.Record, ctx Ctx) bool

// KeepOriginal directs consumers (cloning) to reference the original target
// of an in-scope forward reference instead of its cloned counterpart.
// When, if set, restricts this to records for which it returns true.
// It has no effect on traversal.
type KeepOriginal struct {
	When WhenFunc
}

func (KeepOriginal) isOverride() {}

// Applies reports whether the override applies to the given record.
func (o KeepOriginal) Applies(rec *schema.Record, ctx Ctx) bool {
	return o.When == nil || o.When(rec, ctx)
}

// Anonymize marks a field for replacement with a generated value at export
// or clone time. Provider names a generator (resolved by the consumer);
// Func computes the value directly and wins when both are present.
// It has no effect on traversal.
type Anonymize struct {
	Provider string
	Func     ValueFunc
}

func (Anonymize) isOverride() {}
