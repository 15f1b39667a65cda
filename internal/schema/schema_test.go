package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_RejectsDuplicateTypes(t *testing.T) {
	_, err := NewRegistry(
		NewRecordType("User"),
		NewRecordType("User"),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "User")
}

func TestRegistry_ResolveUnknownType(t *testing.T) {
	reg := MustNewRegistry(NewRecordType("User"))

	_, err := reg.Resolve("Ghost")
	require.Error(t, err)

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "Ghost", schemaErr.Type)
}

func TestRegistry_PreservesRegistrationOrder(t *testing.T) {
	reg := MustNewRegistry(
		NewRecordType("Zebra"),
		NewRecordType("Apple"),
		NewRecordType("Mango"),
	)
	assert.Equal(t, []string{"Zebra", "Apple", "Mango"}, reg.TypeNames())
	assert.Equal(t, 3, reg.Len())
	assert.True(t, reg.Has("Apple"))
	assert.False(t, reg.Has("apple"))
}

func TestField_StorageColumnDefaults(t *testing.T) {
	tests := []struct {
		name  string
		field Field
		want  string
	}{
		{"value field uses its name", Field{Name: "title", Kind: KindValue}, "title"},
		{"fk appends _id", Field{Name: "author", Kind: KindFK, Target: "User"}, "author_id"},
		{"o2o appends _id", Field{Name: "profile", Kind: KindO2O, Target: "Profile"}, "profile_id"},
		{"generic fk appends _id", Field{Name: "object", Kind: KindGenericFK}, "object_id"},
		{"explicit column wins", Field{Name: "author", Kind: KindFK, Column: "writer_fk"}, "writer_fk"},
		{"reverse field uses its name", Field{Name: "posts", Kind: KindReverseFK, Target: "Post"}, "posts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.field.StorageColumn())
		})
	}
}

func TestRecordType_StorageDefaults(t *testing.T) {
	rt := NewRecordType("User")
	assert.Equal(t, "User", rt.StorageTable())
	assert.Equal(t, "id", rt.PKColumn())

	custom := &RecordType{Name: "User", Table: "auth_user", PKField: "user_id"}
	assert.Equal(t, "auth_user", custom.StorageTable())
	assert.Equal(t, "user_id", custom.PKColumn())
}

func TestRecordType_FieldPartitions(t *testing.T) {
	rt := NewRecordType("Post",
		Field{Name: "title", Kind: KindValue},
		Field{Name: "author", Kind: KindFK, Target: "User"},
		Field{Name: "body", Kind: KindValue},
		Field{Name: "comments", Kind: KindReverseFK, Target: "Comment", RemoteField: "post"},
	)

	rel := rt.RelationFields()
	require.Len(t, rel, 2)
	assert.Equal(t, "author", rel[0].Name)
	assert.Equal(t, "comments", rel[1].Name)

	vals := rt.ValueFields()
	require.Len(t, vals, 2)
	assert.Equal(t, "title", vals[0].Name)

	f, ok := rt.Field("author")
	require.True(t, ok)
	assert.Equal(t, KindFK, f.Kind)
	_, ok = rt.Field("missing")
	assert.False(t, ok)
}

func TestFieldKind_Strings(t *testing.T) {
	assert.Equal(t, "fk", KindFK.String())
	assert.Equal(t, "reverse_m2m", KindReverseM2M.String())
	assert.Equal(t, "generic_fk", KindGenericFK.String())
	assert.False(t, KindValue.Relational())
	assert.True(t, KindGenericRel.Relational())
}

func TestRecord_KeyAndRefs(t *testing.T) {
	user := NewRecordType("User")
	comment := NewRecordType("Comment",
		Field{Name: "target", Kind: KindGenericFK, TypeColumn: "target_type"},
	)

	rec := NewRecord(user, int64(7))
	assert.Equal(t, Key{Type: "User", PK: int64(7)}, rec.Key())
	assert.Equal(t, "User:7", rec.Key().String())
	assert.Nil(t, rec.Ref("anything"))

	c := NewRecord(comment, int64(1)).SetGenericRef("target", "User", int64(7))
	ref, ok := c.GenericTarget("target")
	require.True(t, ok)
	assert.Equal(t, GenericRef{Type: "User", PK: int64(7)}, ref)

	_, ok = c.GenericTarget("missing")
	assert.False(t, ok)
}
