package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/graphwalk/internal/schema"
	"github.com/dbsmedya/graphwalk/internal/scope"
)

func libraryRegistry() *schema.Registry {
	return schema.MustNewRegistry(
		schema.NewRecordType("Author",
			schema.Field{Name: "name", Kind: schema.KindValue},
		),
		schema.NewRecordType("Book",
			schema.Field{Name: "title", Kind: schema.KindValue},
			schema.Field{Name: "author", Kind: schema.KindFK, Target: "Author"},
			schema.Field{Name: "editor", Kind: schema.KindFK, Target: "Author", Nullable: true},
			schema.Field{Name: "sequel", Kind: schema.KindFK, Target: "Book", Nullable: true},
		),
		schema.NewRecordType("Review",
			schema.Field{Name: "book", Kind: schema.KindFK, Target: "Book"},
			schema.Field{Name: "reviewer", Kind: schema.KindFK, Target: "User"},
		),
	)
}

func TestDependencyGraph(t *testing.T) {
	reg := libraryRegistry()
	spec := scope.New("Author", "Book", "Review")

	g, err := dependencyGraph(spec, reg)
	require.NoError(t, err)

	// Only the mandatory in-scope references constrain the order: the
	// nullable editor, the self-referential sequel, and the out-of-scope
	// reviewer do not.
	assert.Equal(t, []string{"Author"}, g.Parents("Book"))
	assert.Equal(t, []string{"Book"}, g.Parents("Review"))
	assert.Equal(t, 2, g.EdgeCount())

	order, err := g.TopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, []string{"Author", "Book", "Review"}, order)
}

func TestDependencyGraph_ScopeRestrictsEdges(t *testing.T) {
	reg := libraryRegistry()
	spec := scope.New("Book", "Review")

	g, err := dependencyGraph(spec, reg)
	require.NoError(t, err)

	// Author is out of scope, so Book has no dependencies left.
	assert.Empty(t, g.Parents("Book"))
	assert.Equal(t, []string{"Book"}, g.Parents("Review"))
}
