package actions

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dbsmedya/graphwalk/internal/logger"
	"github.com/dbsmedya/graphwalk/internal/schema"
	"github.com/dbsmedya/graphwalk/internal/scope"
	"github.com/dbsmedya/graphwalk/internal/walker"
)

func newsRegistry() *schema.Registry {
	return schema.MustNewRegistry(
		schema.NewRecordType("Category",
			schema.Field{Name: "name", Kind: schema.KindValue},
		),
		schema.NewRecordType("Article",
			schema.Field{Name: "title", Kind: schema.KindValue},
			schema.Field{Name: "category", Kind: schema.KindFK, Target: "Category"},
			schema.Field{Name: "tags", Kind: schema.KindM2M, Target: "Tag",
				JoinTable: "article_tags", SourceColumn: "article_id", TargetColumn: "tag_id"},
		),
		schema.NewRecordType("Tag",
			schema.Field{Name: "name", Kind: schema.KindValue},
		),
		schema.NewRecordType("Attachment",
			schema.Field{Name: "owner", Kind: schema.KindGenericFK, TypeColumn: "owner_type"},
		),
	)
}

func newsResult(t *testing.T, reg *schema.Registry) *walker.Result {
	t.Helper()
	category, err := reg.Resolve("Category")
	require.NoError(t, err)
	article, err := reg.Resolve("Article")
	require.NoError(t, err)

	// Articles first and out of pk order: the fixture must reorder both.
	return walker.ResultOf(
		schema.NewRecord(article, int64(11)).SetValue("title", "second").SetRef("category", int64(1)),
		schema.NewRecord(article, int64(10)).SetValue("title", "first").SetRef("category", int64(1)),
		schema.NewRecord(category, int64(1)).SetValue("name", "news"),
	)
}

func TestExport_DependencyOrderedAndPKSorted(t *testing.T) {
	reg := newsRegistry()
	result := newsResult(t, reg)

	exporter := NewExporter(scope.New("Category", "Article"), WithExportLogger(logger.Nop()))
	data, err := exporter.ToFixture(result, nil)
	require.NoError(t, err)

	var items []FixtureRecord
	require.NoError(t, json.Unmarshal(data, &items))
	require.Len(t, items, 3)

	assert.Equal(t, "Category", items[0].Type)
	assert.Equal(t, "Article", items[1].Type)
	assert.Equal(t, float64(10), items[1].PK)
	assert.Equal(t, float64(11), items[2].PK)

	assert.Equal(t, "news", items[0].Fields["name"])
	assert.Equal(t, float64(1), items[1].Fields["category"])
	// Multi-valued relationships are carried by the referencing side.
	assert.NotContains(t, items[1].Fields, "tags")
}

func TestExport_AppliesValueOverrides(t *testing.T) {
	reg := newsRegistry()
	result := newsResult(t, reg)

	spec := scope.WithOverrides(map[string]scope.Overrides{
		"Category": nil,
		"Article": {
			"title": scope.Anonymize{
				Func: func(rec *schema.Record, ctx scope.Ctx) any { return "redacted" },
			},
		},
	})

	exporter := NewExporter(spec, WithExportLogger(logger.Nop()))
	data, err := exporter.ToFixture(result, nil)
	require.NoError(t, err)

	var items []FixtureRecord
	require.NoError(t, json.Unmarshal(data, &items))
	for _, item := range items {
		if item.Type == "Article" {
			assert.Equal(t, "redacted", item.Fields["title"])
		}
	}
}

func TestExport_NamedProviderReplacesValue(t *testing.T) {
	reg := newsRegistry()
	result := newsResult(t, reg)

	spec := scope.WithOverrides(map[string]scope.Overrides{
		"Category": {"name": scope.Anonymize{Provider: "word"}},
		"Article":  nil,
	})

	exporter := NewExporter(spec, WithExportLogger(logger.Nop()))
	data, err := exporter.ToFixture(result, nil)
	require.NoError(t, err)

	var items []FixtureRecord
	require.NoError(t, json.Unmarshal(data, &items))
	name, ok := items[0].Fields["name"].(string)
	require.True(t, ok)
	assert.NotEmpty(t, name)
	assert.NotEqual(t, "news", name)
}

func TestExport_UnknownProviderFails(t *testing.T) {
	reg := newsRegistry()
	result := newsResult(t, reg)

	spec := scope.WithOverrides(map[string]scope.Overrides{
		"Category": {"name": scope.Anonymize{Provider: "telepathy"}},
		"Article":  nil,
	})

	exporter := NewExporter(spec, WithExportLogger(logger.Nop()))
	_, err := exporter.ToFixture(result, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telepathy")
}

func TestExport_SetValueWithContext(t *testing.T) {
	reg := newsRegistry()
	result := newsResult(t, reg)

	spec := scope.WithOverrides(map[string]scope.Overrides{
		"Category": nil,
		"Article": {
			"title": scope.SetValue{
				Func: func(rec *schema.Record, ctx scope.Ctx) any { return ctx["stamp"] },
			},
		},
	})

	exporter := NewExporter(spec, WithExportLogger(logger.Nop()))
	data, err := exporter.ToFixture(result, scope.Ctx{"stamp": "imported"})
	require.NoError(t, err)

	var items []FixtureRecord
	require.NoError(t, json.Unmarshal(data, &items))
	assert.Equal(t, "imported", items[1].Fields["title"])
}

func TestExport_GenericReferenceSerializesTypeAndPK(t *testing.T) {
	reg := newsRegistry()
	attachment, err := reg.Resolve("Attachment")
	require.NoError(t, err)
	article, err := reg.Resolve("Article")
	require.NoError(t, err)

	result := walker.ResultOf(
		schema.NewRecord(article, int64(10)).SetValue("title", "first"),
		schema.NewRecord(attachment, int64(5)).SetGenericRef("owner", "Article", int64(10)),
	)

	exporter := NewExporter(scope.New("Article", "Attachment"), WithExportLogger(logger.Nop()))
	data, err := exporter.ToFixture(result, nil)
	require.NoError(t, err)

	var items []FixtureRecord
	require.NoError(t, json.Unmarshal(data, &items))

	var owner map[string]any
	for _, item := range items {
		if item.Type == "Attachment" {
			owner, _ = item.Fields["owner"].(map[string]any)
		}
	}
	require.NotNil(t, owner)
	assert.Equal(t, "Article", owner["type"])
	assert.Equal(t, float64(10), owner["pk"])
}

func TestExport_MsgpackRoundtrip(t *testing.T) {
	reg := newsRegistry()
	result := newsResult(t, reg)

	exporter := NewExporter(scope.New("Category", "Article"),
		WithFormat(FormatMsgpack), WithExportLogger(logger.Nop()))
	data, err := exporter.ToFixture(result, nil)
	require.NoError(t, err)

	var items []FixtureRecord
	require.NoError(t, msgpack.Unmarshal(data, &items))
	require.Len(t, items, 3)
	assert.Equal(t, "Category", items[0].Type)
}

func TestExport_UnknownFormatFails(t *testing.T) {
	reg := newsRegistry()
	result := newsResult(t, reg)

	exporter := NewExporter(scope.New("Category", "Article"),
		WithFormat("yaml"), WithExportLogger(logger.Nop()))
	_, err := exporter.ToFixture(result, nil)
	assert.Error(t, err)
}

func TestExport_ToFileCreatesDirectories(t *testing.T) {
	reg := newsRegistry()
	result := newsResult(t, reg)

	path := filepath.Join(t.TempDir(), "fixtures", "news.json")
	exporter := NewExporter(scope.New("Category", "Article"), WithExportLogger(logger.Nop()))
	require.NoError(t, exporter.ToFile(result, path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}

func TestSortByPK(t *testing.T) {
	rt := schema.NewRecordType("Thing")
	recs := []*schema.Record{
		schema.NewRecord(rt, int64(3)),
		schema.NewRecord(rt, int64(1)),
		schema.NewRecord(rt, int64(2)),
	}
	sorted := sortByPK(recs)
	assert.Equal(t, int64(1), sorted[0].PK)
	assert.Equal(t, int64(3), sorted[2].PK)
	// Input untouched.
	assert.Equal(t, int64(3), recs[0].PK)

	mixed := sortByPK([]*schema.Record{
		schema.NewRecord(rt, "b"),
		schema.NewRecord(rt, int64(9)),
		schema.NewRecord(rt, "a"),
	})
	// Integer keys sort before string keys.
	assert.Equal(t, int64(9), mixed[0].PK)
	assert.Equal(t, "a", mixed[1].PK)
	assert.Equal(t, "b", mixed[2].PK)
}
