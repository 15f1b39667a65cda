package walker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/graphwalk/internal/graph"
	"github.com/dbsmedya/graphwalk/internal/schema"
)

func mustType(t *testing.T, reg *schema.Registry, name string) *schema.RecordType {
	t.Helper()
	rt, err := reg.Resolve(name)
	require.NoError(t, err)
	return rt
}

func TestResult_InsertDeduplicatesByKey(t *testing.T) {
	reg := blogRegistry(t)
	tagType := mustType(t, reg, "Tag")

	first := schema.NewRecord(tagType, int64(1)).SetValue("name", "first")
	second := schema.NewRecord(tagType, int64(1)).SetValue("name", "second")

	r := newResult()
	assert.True(t, r.insert(first))
	assert.False(t, r.insert(second))
	assert.Equal(t, 1, r.InstanceCount())

	got, ok := r.Get(schema.Key{Type: "Tag", PK: int64(1)})
	require.True(t, ok)
	assert.Equal(t, "first", got.Values["name"])
}

func TestResult_FrozenRejectsInserts(t *testing.T) {
	reg := blogRegistry(t)
	tagType := mustType(t, reg, "Tag")

	r := ResultOf(schema.NewRecord(tagType, int64(1)))
	assert.False(t, r.insert(schema.NewRecord(tagType, int64(2))))
	assert.Equal(t, 1, r.InstanceCount())
}

func TestResult_OrderingAccessors(t *testing.T) {
	reg := blogRegistry(t)
	tagType := mustType(t, reg, "Tag")
	categoryType := mustType(t, reg, "Category")

	r := ResultOf(
		schema.NewRecord(tagType, int64(2)),
		schema.NewRecord(categoryType, int64(1)),
		schema.NewRecord(tagType, int64(1)),
	)

	assert.Equal(t, []string{"Tag", "Category"}, r.TypeNames())
	assert.Equal(t, []schema.Key{
		{Type: "Tag", PK: int64(2)},
		{Type: "Category", PK: int64(1)},
		{Type: "Tag", PK: int64(1)},
	}, r.Keys())

	tags := r.RecordsOf("Tag")
	require.Len(t, tags, 2)
	assert.Equal(t, int64(2), tags[0].PK)
	assert.Equal(t, int64(1), tags[1].PK)

	byType := r.ByType()
	assert.Len(t, byType["Tag"], 2)
	assert.Len(t, byType["Category"], 1)
}

func TestResult_UnionIdempotent(t *testing.T) {
	reg := blogRegistry(t)
	tagType := mustType(t, reg, "Tag")

	a := ResultOf(
		schema.NewRecord(tagType, int64(1)),
		schema.NewRecord(tagType, int64(2)),
	)

	union := a.Union(a)
	assert.Equal(t, a.Keys(), union.Keys())
}

func TestResult_UnionFirstWins(t *testing.T) {
	reg := blogRegistry(t)
	tagType := mustType(t, reg, "Tag")

	mine := schema.NewRecord(tagType, int64(1)).SetValue("name", "mine")
	theirs := schema.NewRecord(tagType, int64(1)).SetValue("name", "theirs")

	a := ResultOf(mine)
	b := ResultOf(theirs, schema.NewRecord(tagType, int64(2)))

	union := a.Union(b)
	assert.Equal(t, 2, union.InstanceCount())

	got, ok := union.Get(schema.Key{Type: "Tag", PK: int64(1)})
	require.True(t, ok)
	assert.Equal(t, "mine", got.Values["name"])

	// Disjoint key sets commute as sets.
	c := ResultOf(schema.NewRecord(tagType, int64(3)))
	assert.ElementsMatch(t, a.Union(c).Keys(), c.Union(a).Keys())
}

func TestResult_TopologicalOrderRespectsMandatoryRefs(t *testing.T) {
	reg := blogRegistry(t)
	categoryType := mustType(t, reg, "Category")
	articleType := mustType(t, reg, "Article")
	tagType := mustType(t, reg, "Tag")

	// Insert the dependent type first to prove ordering is not insertion
	// order.
	r := ResultOf(
		schema.NewRecord(articleType, int64(10)).SetRef("category", int64(1)),
		schema.NewRecord(categoryType, int64(1)),
		schema.NewRecord(tagType, int64(100)),
	)

	order, err := r.TopologicalOrderStrict()
	require.NoError(t, err)
	assert.Less(t, indexOf(order, "Category"), indexOf(order, "Article"))
	assert.Equal(t, order, r.TopologicalOrder())
}

func TestResult_TopologicalOrderIgnoresNullableAndSelfRefs(t *testing.T) {
	reg := blogRegistry(t)
	categoryType := mustType(t, reg, "Category")

	// Two categories chained through the nullable self-referential parent
	// field: no dependency edge, order follows insertion.
	r := ResultOf(
		schema.NewRecord(categoryType, int64(2)).SetRef("parent", int64(1)),
		schema.NewRecord(categoryType, int64(1)),
	)

	order, err := r.TopologicalOrderStrict()
	require.NoError(t, err)
	assert.Equal(t, []string{"Category"}, order)
}

func TestResult_TopologicalOrderCycleFallback(t *testing.T) {
	owner := schema.NewRecordType("Owner",
		schema.Field{Name: "pet", Kind: schema.KindFK, Target: "Pet"},
	)
	pet := schema.NewRecordType("Pet",
		schema.Field{Name: "owner", Kind: schema.KindFK, Target: "Owner"},
	)
	schema.MustNewRegistry(owner, pet)

	r := ResultOf(
		schema.NewRecord(owner, int64(1)).SetRef("pet", int64(1)),
		schema.NewRecord(pet, int64(1)).SetRef("owner", int64(1)),
	)

	// Fallback appends the cycle members in first-visited order.
	assert.Equal(t, []string{"Owner", "Pet"}, r.TopologicalOrder())

	_, err := r.TopologicalOrderStrict()
	require.Error(t, err)
	var cycleErr *graph.CycleError
	assert.ErrorAs(t, err, &cycleErr)
}
