package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldsKeepInsertionOrderThroughJSON(t *testing.T) {
	var f Fields
	require.NoError(t, json.Unmarshal([]byte(`{"zeta":"z","alpha":1,"mid":["a","b"]}`), &f))
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, f.Keys())

	out, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":"z","alpha":1,"mid":["a","b"]}`, string(out))
}

func TestFieldsDecodeIntegersAsInt(t *testing.T) {
	original := NewFields("age", 14, "score", 87.5, "marks", []interface{}{1, 2.5}, "big", int64(1)<<40)
	raw, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Fields
	require.NoError(t, json.Unmarshal(raw, &decoded))
	age, _ := decoded.Get("age")
	assert.Equal(t, 14, age)
	score, _ := decoded.Get("score")
	assert.Equal(t, 87.5, score)
	marks, _ := decoded.Get("marks")
	assert.Equal(t, []interface{}{1, 2.5}, marks)
	big, _ := decoded.Get("big")
	assert.Equal(t, 1<<40, big)
}

func TestFieldsMergeReplacesOnlySuppliedKeys(t *testing.T) {
	base := NewFields("name", "Ama Owusu", "course", "Science", "email", "ama@school.test")
	merged := base.Merge(NewFields("course", "Arts", "phone", "0244"))

	assert.Equal(t, []string{"name", "course", "email", "phone"}, merged.Keys())
	assert.Equal(t, "Arts", merged.String("course"))
	assert.Equal(t, "Science", base.String("course"))
}

func TestFieldsDeleteAndClone(t *testing.T) {
	f := NewFields("a", 1, "b", []interface{}{"x"}, "c", 3)
	clone := f.Clone()
	f.Delete("b")

	assert.Equal(t, []string{"a", "c"}, f.Keys())
	assert.Equal(t, []string{"a", "b", "c"}, clone.Keys())
	assert.Equal(t, "x", clone.String("b"))
}

func TestFieldsFromMapOrdering(t *testing.T) {
	f := FieldsFromMap(map[string]interface{}{"b": 1, "a": 2, "name": "x"}, []string{"name"})
	assert.Equal(t, []string{"name", "a", "b"}, f.Keys())
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "12", Stringify(float64(12)))
	assert.Equal(t, "Math, Science", Stringify([]interface{}{"Math", "Science"}))
	assert.Equal(t, "", Stringify(nil))
}

func TestQueryMatches(t *testing.T) {
	jhs := "JHS 1"
	rec := &Record{ID: "1", Category: "JHS 1", Fields: NewFields("uid", "u-1", "age", float64(12))}

	assert.True(t, Query{Category: &jhs}.Matches(rec))
	assert.True(t, Query{Equals: map[string]interface{}{"uid": "u-1", "age": 12}}.Matches(rec))
	assert.False(t, Query{Equals: map[string]interface{}{"uid": "u-2"}}.Matches(rec))
}

func TestSchemaRegistryResolvesByRoot(t *testing.T) {
	reg := DefaultSchemas()
	s, err := reg.Resolve("students/levels/JHS 1")
	require.NoError(t, err)
	assert.Equal(t, "students", s.Name)
	assert.True(t, s.Searchable("studentId"))
	assert.True(t, s.Searchable(FieldID))
	assert.False(t, s.Searchable("salary"))

	_, err = reg.Resolve("grades")
	assert.Error(t, err)
}

func TestNormalizeCollection(t *testing.T) {
	assert.Equal(t, "students/levels/JHS 1", NormalizeCollection(" /students//levels/ JHS 1 /"))
	assert.Equal(t, "students", CollectionRoot("students/levels/JHS 1"))
}
