package actions

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/graphwalk/internal/schema"
	"github.com/dbsmedya/graphwalk/internal/scope"
	"github.com/dbsmedya/graphwalk/internal/walker"
)

func TestSchemaDOT(t *testing.T) {
	reg := newsRegistry()
	spec := scope.New("Category", "Article", "Tag")

	dot, err := NewVisualizer().SchemaDOT(spec, reg)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(dot, "digraph SchemaGraph {"))
	assert.True(t, strings.HasSuffix(dot, "}"))

	assert.Contains(t, dot, `Article [label="Article"`)
	assert.Contains(t, dot, `Category [label="Category"`)

	// Forward fk draws solid, m2m dashed and bidirectional.
	assert.Contains(t, dot, `Article -> Category [`)
	assert.Contains(t, dot, `label="category"`)
	assert.Contains(t, dot, `Article -> Tag [`)
	assert.Contains(t, dot, `style="dashed"`)
	assert.Contains(t, dot, `dir="both"`)
}

func TestSchemaDOT_OmitsOutOfScopeTargets(t *testing.T) {
	reg := newsRegistry()
	spec := scope.New("Article", "Category")

	dot, err := NewVisualizer().SchemaDOT(spec, reg)
	require.NoError(t, err)
	assert.NotContains(t, dot, "Tag")
}

func TestSchemaDOT_FieldLabelsOptional(t *testing.T) {
	reg := newsRegistry()
	spec := scope.New("Article", "Category")

	v := &Visualizer{ShowFieldNames: false}
	dot, err := v.SchemaDOT(spec, reg)
	require.NoError(t, err)
	assert.NotContains(t, dot, `label="category"`)
}

func TestInstanceDOT(t *testing.T) {
	reg := newsRegistry()
	category, _ := reg.Resolve("Category")
	article, _ := reg.Resolve("Article")

	result := walker.ResultOf(
		schema.NewRecord(article, int64(10)).SetRef("category", int64(1)),
		schema.NewRecord(category, int64(1)),
	)

	dot := NewVisualizer().InstanceDOT(result)

	assert.Contains(t, dot, "subgraph cluster_Article {")
	assert.Contains(t, dot, "subgraph cluster_Category {")
	assert.Contains(t, dot, `Article_10 [label="Article:10"`)
	assert.Contains(t, dot, `Article_10 -> Category_1 [`)
}

func TestInstanceDOT_SkipsEdgesToUnvisitedRecords(t *testing.T) {
	reg := newsRegistry()
	article, _ := reg.Resolve("Article")

	result := walker.ResultOf(
		schema.NewRecord(article, int64(10)).SetRef("category", int64(1)),
	)

	dot := NewVisualizer().InstanceDOT(result)
	assert.NotContains(t, dot, "Category_1")
}

func TestSchemaDict(t *testing.T) {
	reg := newsRegistry()
	spec := scope.New("Category", "Article", "Tag")

	g, err := NewVisualizer().SchemaDict(spec, reg)
	require.NoError(t, err)

	require.Len(t, g.Nodes, 3)
	byName := make(map[string]SchemaNode)
	for _, n := range g.Nodes {
		byName[n.Name] = n
	}
	assert.Equal(t, []string{"title"}, byName["Article"].Fields)
	assert.NotEmpty(t, byName["Article"].Color)

	require.Len(t, g.Edges, 2)
	kinds := make(map[string]string)
	for _, e := range g.Edges {
		kinds[e.Field] = e.Kind
	}
	assert.Equal(t, "fk", kinds["category"])
	assert.Equal(t, "m2m", kinds["tags"])
}

func TestInstanceDict(t *testing.T) {
	reg := newsRegistry()
	category, _ := reg.Resolve("Category")
	article, _ := reg.Resolve("Article")
	attachment, _ := reg.Resolve("Attachment")

	result := walker.ResultOf(
		schema.NewRecord(category, int64(1)),
		schema.NewRecord(article, int64(10)).SetRef("category", int64(1)),
		schema.NewRecord(attachment, int64(5)).SetGenericRef("owner", "Article", int64(10)),
	)

	g := NewVisualizer().InstanceDict(result)
	require.Len(t, g.Nodes, 3)
	assert.Equal(t, "Category_1", g.Nodes[0].ID)

	require.Len(t, g.Edges, 2)
	assert.Equal(t, InstanceEdgeDict{Source: "Article_10", Target: "Category_1", Field: "category"}, g.Edges[0])
	assert.Equal(t, InstanceEdgeDict{Source: "Attachment_5", Target: "Article_10", Field: "owner"}, g.Edges[1])
}

func TestEscapeDOT(t *testing.T) {
	assert.Equal(t, `say \"hi\"`, escapeDOT(`say "hi"`))
	assert.Equal(t, `line\nbreak`, escapeDOT("line\nbreak"))
}
