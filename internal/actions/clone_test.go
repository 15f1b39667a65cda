package actions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/graphwalk/internal/logger"
	"github.com/dbsmedya/graphwalk/internal/memstore"
	"github.com/dbsmedya/graphwalk/internal/schema"
	"github.com/dbsmedya/graphwalk/internal/scope"
	"github.com/dbsmedya/graphwalk/internal/walker"
)

// cloneFixture builds a store with one category, one article carrying two
// tags, and the walked result covering all of them.
func cloneFixture(t *testing.T, reg *schema.Registry) (*memstore.Store, *walker.Result) {
	t.Helper()
	store := memstore.New(reg)

	category, err := reg.Resolve("Category")
	require.NoError(t, err)
	article, err := reg.Resolve("Article")
	require.NoError(t, err)
	tag, err := reg.Resolve("Tag")
	require.NoError(t, err)

	c := store.MustInsert(schema.NewRecord(category, int64(1)).SetValue("name", "news"))
	a := store.MustInsert(schema.NewRecord(article, int64(10)).
		SetValue("title", "original").
		SetRef("category", int64(1)))
	t1 := store.MustInsert(schema.NewRecord(tag, int64(100)).SetValue("name", "go"))
	t2 := store.MustInsert(schema.NewRecord(tag, int64(101)).SetValue("name", "sql"))
	store.SetLinks("Article", "tags", int64(10), []any{int64(100), int64(101)})

	return store, walker.ResultOf(a, c, t1, t2)
}

func TestClone_RemapsForwardReferences(t *testing.T) {
	reg := newsRegistry()
	store, result := cloneFixture(t, reg)

	spec := scope.New("Category", "Article", "Tag")
	cloner := NewCloner(spec, store, WithCloneLogger(logger.Nop()))

	cr, err := cloner.Execute(context.Background(), result, store, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, cr.Count())

	category, _ := reg.Resolve("Category")
	article, _ := reg.Resolve("Article")

	categoryClone, ok := cr.Clone(schema.NewRecord(category, int64(1)))
	require.True(t, ok)
	assert.NotEqual(t, int64(1), categoryClone.PK)

	articleClone, ok := cr.Clone(schema.NewRecord(article, int64(10)))
	require.True(t, ok)
	assert.NotEqual(t, int64(10), articleClone.PK)
	assert.Equal(t, categoryClone.PK, articleClone.Ref("category"))
	assert.Equal(t, "original", articleClone.Values["title"])

	// Clones were inserted into the store.
	_, found := store.Get(articleClone.Key())
	assert.True(t, found)
}

func TestClone_RewritesM2MLinksToClones(t *testing.T) {
	reg := newsRegistry()
	store, result := cloneFixture(t, reg)

	spec := scope.New("Category", "Article", "Tag")
	cloner := NewCloner(spec, store, WithCloneLogger(logger.Nop()))

	cr, err := cloner.Execute(context.Background(), result, store, nil)
	require.NoError(t, err)

	article, _ := reg.Resolve("Article")
	tag, _ := reg.Resolve("Tag")

	articleClone, ok := cr.Clone(schema.NewRecord(article, int64(10)))
	require.True(t, ok)
	t1Clone, ok := cr.Clone(schema.NewRecord(tag, int64(100)))
	require.True(t, ok)
	t2Clone, ok := cr.Clone(schema.NewRecord(tag, int64(101)))
	require.True(t, ok)

	links := store.Links("Article", "tags", articleClone.PK)
	assert.Equal(t, []any{t1Clone.PK, t2Clone.PK}, links)

	// The original article's links are untouched.
	assert.Equal(t, []any{int64(100), int64(101)}, store.Links("Article", "tags", int64(10)))
}

func TestClone_KeepOriginalPinsReference(t *testing.T) {
	reg := newsRegistry()
	store, result := cloneFixture(t, reg)

	spec := scope.WithOverrides(map[string]scope.Overrides{
		"Category": nil,
		"Article":  {"category": scope.KeepOriginal{}},
		"Tag":      nil,
	})
	cloner := NewCloner(spec, store, WithCloneLogger(logger.Nop()))

	cr, err := cloner.Execute(context.Background(), result, store, nil)
	require.NoError(t, err)

	article, _ := reg.Resolve("Article")
	articleClone, ok := cr.Clone(schema.NewRecord(article, int64(10)))
	require.True(t, ok)
	assert.Equal(t, int64(1), articleClone.Ref("category"))
}

func TestClone_ConditionalKeepOriginal(t *testing.T) {
	reg := newsRegistry()
	store, result := cloneFixture(t, reg)

	spec := scope.WithOverrides(map[string]scope.Overrides{
		"Category": nil,
		"Article": {"category": scope.KeepOriginal{
			When: func(rec *schema.Record, ctx scope.Ctx) bool { return false },
		}},
		"Tag": nil,
	})
	cloner := NewCloner(spec, store, WithCloneLogger(logger.Nop()))

	cr, err := cloner.Execute(context.Background(), result, store, nil)
	require.NoError(t, err)

	// The condition never holds, so the reference is remapped normally.
	category, _ := reg.Resolve("Category")
	article, _ := reg.Resolve("Article")
	categoryClone, _ := cr.Clone(schema.NewRecord(category, int64(1)))
	articleClone, _ := cr.Clone(schema.NewRecord(article, int64(10)))
	assert.Equal(t, categoryClone.PK, articleClone.Ref("category"))
}

func TestClone_ReferenceOutsideResultKeepsOriginal(t *testing.T) {
	reg := newsRegistry()
	store, _ := cloneFixture(t, reg)

	// Result contains only the article: its category was not walked.
	article, _ := reg.Resolve("Article")
	orig, ok := store.Get(schema.Key{Type: "Article", PK: int64(10)})
	require.True(t, ok)
	result := walker.ResultOf(orig)

	spec := scope.New("Category", "Article", "Tag")
	cloner := NewCloner(spec, store, WithCloneLogger(logger.Nop()))

	cr, err := cloner.Execute(context.Background(), result, store, nil)
	require.NoError(t, err)

	articleClone, ok := cr.Clone(schema.NewRecord(article, int64(10)))
	require.True(t, ok)
	assert.Equal(t, int64(1), articleClone.Ref("category"))
}

func TestClone_AppliesValueOverrides(t *testing.T) {
	reg := newsRegistry()
	store, result := cloneFixture(t, reg)

	spec := scope.WithOverrides(map[string]scope.Overrides{
		"Category": nil,
		"Article":  {"title": scope.SetValue{Value: "copy"}},
		"Tag": {"name": scope.Anonymize{
			Func: func(rec *schema.Record, ctx scope.Ctx) any { return "tag-x" },
		}},
	})
	cloner := NewCloner(spec, store, WithCloneLogger(logger.Nop()))

	cr, err := cloner.Execute(context.Background(), result, store, nil)
	require.NoError(t, err)

	article, _ := reg.Resolve("Article")
	tag, _ := reg.Resolve("Tag")

	articleClone, _ := cr.Clone(schema.NewRecord(article, int64(10)))
	assert.Equal(t, "copy", articleClone.Values["title"])

	tagClone, _ := cr.Clone(schema.NewRecord(tag, int64(100)))
	assert.Equal(t, "tag-x", tagClone.Values["name"])
}

func TestClone_IgnoredM2MFieldNotLinked(t *testing.T) {
	reg := newsRegistry()
	store, result := cloneFixture(t, reg)

	spec := scope.WithOverrides(map[string]scope.Overrides{
		"Category": nil,
		"Article":  {"tags": scope.Ignore{}},
		"Tag":      nil,
	})
	cloner := NewCloner(spec, store, WithCloneLogger(logger.Nop()))

	cr, err := cloner.Execute(context.Background(), result, store, nil)
	require.NoError(t, err)

	article, _ := reg.Resolve("Article")
	articleClone, _ := cr.Clone(schema.NewRecord(article, int64(10)))
	assert.Empty(t, store.Links("Article", "tags", articleClone.PK))
}

func TestClone_GenericReferenceRemapped(t *testing.T) {
	reg := newsRegistry()
	store := memstore.New(reg)

	article, _ := reg.Resolve("Article")
	attachment, _ := reg.Resolve("Attachment")

	a := store.MustInsert(schema.NewRecord(article, int64(10)).SetValue("title", "host"))
	att := store.MustInsert(schema.NewRecord(attachment, int64(5)).
		SetGenericRef("owner", "Article", int64(10)))
	result := walker.ResultOf(a, att)

	spec := scope.New("Article", "Attachment")
	cloner := NewCloner(spec, store, WithCloneLogger(logger.Nop()))

	cr, err := cloner.Execute(context.Background(), result, store, nil)
	require.NoError(t, err)

	articleClone, _ := cr.Clone(a)
	attClone, _ := cr.Clone(att)
	ref, ok := attClone.GenericTarget("owner")
	require.True(t, ok)
	assert.Equal(t, "Article", ref.Type)
	assert.Equal(t, articleClone.PK, ref.PK)
}

func TestCloneResult_AsWalkResult(t *testing.T) {
	reg := newsRegistry()
	store, result := cloneFixture(t, reg)

	spec := scope.New("Category", "Article", "Tag")
	cloner := NewCloner(spec, store, WithCloneLogger(logger.Nop()))

	cr, err := cloner.Execute(context.Background(), result, store, nil)
	require.NoError(t, err)

	cloned := cr.Result()
	assert.Equal(t, 4, cloned.InstanceCount())
	assert.Equal(t, 3, cloned.TypeCount())
	for _, rec := range cloned.All() {
		assert.False(t, result.Contains(rec), "clone %s collides with an original", rec.Key())
	}
}
