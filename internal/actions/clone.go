package actions

import (
	"context"
	"fmt"

	"github.com/dbsmedya/graphwalk/internal/classify"
	"github.com/dbsmedya/graphwalk/internal/logger"
	"github.com/dbsmedya/graphwalk/internal/schema"
	"github.com/dbsmedya/graphwalk/internal/scope"
	"github.com/dbsmedya/graphwalk/internal/walker"
)

// Store is the write boundary cloning targets: allocate a fresh primary
// key, insert a record, and rewrite the link rows of a forward m2m field.
type Store interface {
	AllocatePK(typeName string) any
	Insert(rec *schema.Record) error
	SetLinks(typeName, field string, sourcePK any, targetPKs []any)
}

// Cloner duplicates a walked subgraph into a Store: new primary keys for
// every record, in-scope forward references remapped to the clones, and
// many-to-many links rewritten in a second pass once every clone exists.
//
// The spec's consumption overrides apply per field: SetValue and
// Anonymize replace values, KeepOriginal pins a reference to the original
// target instead of its clone. None of them affect which records were
// walked.
type Cloner struct {
	spec    *scope.Spec
	fetcher walker.Fetcher
	log     *logger.Logger
}

// CloneOption configures a Cloner.
type CloneOption func(*Cloner)

// WithCloneLogger sets the cloner's logger.
func WithCloneLogger(log *logger.Logger) CloneOption {
	return func(c *Cloner) { c.log = log }
}

// NewCloner creates a Cloner. The fetcher resolves the original
// many-to-many links during the second pass; it should read the same
// dataset the result was walked from.
func NewCloner(spec *scope.Spec, fetcher walker.Fetcher, opts ...CloneOption) *Cloner {
	c := &Cloner{spec: spec, fetcher: fetcher}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.NewDefault()
	}
	return c
}

// CloneResult maps original record keys to their clones.
type CloneResult struct {
	Mapping map[schema.Key]*schema.Record

	order []*schema.Record
}

// Clone returns the clone of one original record.
func (cr *CloneResult) Clone(rec *schema.Record) (*schema.Record, bool) {
	c, ok := cr.Mapping[rec.Key()]
	return c, ok
}

// Count returns the number of cloned records.
func (cr *CloneResult) Count() int {
	return len(cr.Mapping)
}

// Result returns the clones as a walk result, in clone order.
func (cr *CloneResult) Result() *walker.Result {
	return walker.ResultOf(cr.order...)
}

// Execute clones every record of the result into the store. Records are
// cloned in dependency order so forward references can be remapped as
// they are encountered; references to records outside the result keep
// their original targets.
func (c *Cloner) Execute(ctx context.Context, result *walker.Result, store Store, wctx scope.Ctx) (*CloneResult, error) {
	pkMap := make(map[schema.Key]any, result.InstanceCount())
	cr := &CloneResult{Mapping: make(map[schema.Key]*schema.Record, result.InstanceCount())}

	order := result.TopologicalOrder()

	for _, typeName := range order {
		for _, rec := range sortByPK(result.RecordsOf(typeName)) {
			clone, err := c.cloneRecord(rec, store, pkMap, wctx)
			if err != nil {
				return nil, err
			}
			if err := store.Insert(clone); err != nil {
				return nil, fmt.Errorf("failed to insert clone of %s: %w", rec.Key(), err)
			}
			pkMap[rec.Key()] = clone.PK
			cr.Mapping[rec.Key()] = clone
			cr.order = append(cr.order, clone)
		}
	}

	for _, typeName := range order {
		if err := c.cloneLinks(ctx, result, typeName, store, pkMap, cr); err != nil {
			return nil, err
		}
	}

	c.log.Infof("Cloned %d records across %d types", cr.Count(), len(order))
	return cr, nil
}

// cloneRecord builds one clone: fresh pk, overridden or copied values,
// remapped forward references.
func (c *Cloner) cloneRecord(rec *schema.Record, store Store, pkMap map[schema.Key]any, wctx scope.Ctx) (*schema.Record, error) {
	rt := rec.Type
	clone := schema.NewRecord(rt, store.AllocatePK(rt.Name))

	for i := range rt.Fields {
		f := &rt.Fields[i]
		ov, hasOv := c.spec.Override(rt.Name, f.Name)

		switch f.Kind {
		case schema.KindValue:
			value := rec.Values[f.Name]
			if hasOv {
				switch o := ov.(type) {
				case scope.SetValue:
					value = o.Resolve(rec, wctx)
				case scope.Anonymize:
					v, err := resolveAnonymize(o, rec, wctx)
					if err != nil {
						return nil, fmt.Errorf("clone of %s.%s: %w", rt.Name, f.Name, err)
					}
					value = v
				}
			}
			clone.SetValue(f.Name, value)

		case schema.KindFK, schema.KindO2O:
			pk := rec.Ref(f.Name)
			if pk == nil {
				continue
			}
			if keep, isKeep := ov.(scope.KeepOriginal); hasOv && isKeep && keep.Applies(rec, wctx) {
				clone.SetRef(f.Name, pk)
				continue
			}
			// Remap to the clone when the target was walked; references
			// leaving the result keep their original target.
			if newPK, cloned := pkMap[schema.Key{Type: f.Target, PK: pk}]; cloned {
				clone.SetRef(f.Name, newPK)
			} else {
				clone.SetRef(f.Name, pk)
			}

		case schema.KindGenericFK:
			ref, ok := rec.GenericTarget(f.Name)
			if !ok {
				continue
			}
			if keep, isKeep := ov.(scope.KeepOriginal); hasOv && isKeep && keep.Applies(rec, wctx) {
				clone.SetGenericRef(f.Name, ref.Type, ref.PK)
				continue
			}
			if newPK, cloned := pkMap[schema.Key{Type: ref.Type, PK: ref.PK}]; cloned {
				clone.SetGenericRef(f.Name, ref.Type, newPK)
			} else {
				clone.SetGenericRef(f.Name, ref.Type, ref.PK)
			}
		}
	}
	return clone, nil
}

// cloneLinks rewrites the m2m links of one type's clones. The original
// link targets are read through the fetch boundary in one batched call
// per field.
func (c *Cloner) cloneLinks(ctx context.Context, result *walker.Result, typeName string, store Store, pkMap map[schema.Key]any, cr *CloneResult) error {
	originals := sortByPK(result.RecordsOf(typeName))
	if len(originals) == 0 {
		return nil
	}
	rt := originals[0].Type

	for i := range rt.Fields {
		f := &rt.Fields[i]
		if f.Kind != schema.KindM2M {
			continue
		}
		if ov, ok := c.spec.Override(rt.Name, f.Name); ok {
			if _, ignored := ov.(scope.Ignore); ignored {
				continue
			}
		}

		edge := classify.Edge{
			Source:  rt,
			Field:   f.Name,
			Target:  f.Target,
			Kind:    schema.KindM2M,
			InScope: c.spec.Contains(f.Target),
		}
		related, err := c.fetcher.FetchRelated(ctx, originals, edge)
		if err != nil {
			return fmt.Errorf("failed to read links %s.%s: %w", typeName, f.Name, err)
		}

		for _, orig := range originals {
			targets := related[orig.Key()]
			if len(targets) == 0 {
				continue
			}
			newPKs := make([]any, 0, len(targets))
			for _, target := range targets {
				if newPK, cloned := pkMap[target.Key()]; cloned {
					newPKs = append(newPKs, newPK)
				} else {
					newPKs = append(newPKs, target.PK)
				}
			}
			clone := cr.Mapping[orig.Key()]
			store.SetLinks(typeName, f.Name, clone.PK, newPKs)
		}
	}
	return nil
}
