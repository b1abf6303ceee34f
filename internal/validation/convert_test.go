package validation

import (
	"strings"
	"testing"

	"github.com/rendis/appspec/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParam(t *testing.T, raw map[string]any) *schema.ParameterSchema {
	t.Helper()
	p, err := schema.ParseParameter(raw)
	require.NoError(t, err)
	return p
}

func TestConvertArray_NoItemsPassesThrough(t *testing.T) {
	p := mustParam(t, map[string]any{"name": "list", "type": "array"})
	in := []any{"1", map[string]any{"x": 1}}
	got, err := ConvertArray(p, in, "ctx")
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestConvertArray_PrimitiveItems(t *testing.T) {
	p := mustParam(t, map[string]any{"name": "ids", "type": "array", "items": map[string]any{"type": "integer"}})

	got, err := ConvertArray(p, []any{"1", 2.0, 3}, "ctx")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, got)

	got, err = ConvertArray(p, "[4, 5]", "ctx")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(4), int64(5)}, got)
}

func TestConvertArray_BadElement(t *testing.T) {
	p := mustParam(t, map[string]any{"name": "ids", "type": "array", "items": map[string]any{"type": "integer"}})

	_, err := ConvertArray(p, []any{"1", "2", "x"}, "app A action B parameter ids")
	require.Error(t, err)
	assert.True(t, schema.IsInvalidArgument(err))
	assert.Contains(t, err.Error(), `app A action B parameter ids has invalid input. Input ["1","2","x"] could not be converted to array with type "integer"`)
}

func TestConvertArray_BadElementTruncated(t *testing.T) {
	p := mustParam(t, map[string]any{"name": "ids", "type": "array", "items": map[string]any{"type": "integer"}})

	values := make([]any, 20)
	for i := range values {
		values[i] = "bad"
	}
	_, err := ConvertArray(p, values, "ctx")
	require.Error(t, err)

	rendered := `["bad","bad","bad","bad","bad",`[:30] + "...]"
	assert.Contains(t, err.Error(), "Input "+rendered+" could not be converted")
	assert.NotContains(t, err.Error(), strings.Repeat(`"bad",`, 20))
}

func TestConvertArray_NotAnArray(t *testing.T) {
	p := mustParam(t, map[string]any{"name": "ids", "type": "array", "items": map[string]any{"type": "integer"}})
	_, err := ConvertArray(p, "not json", "ctx")
	require.Error(t, err)
	assert.True(t, schema.IsInvalidArgument(err))
}

func TestConvertArray_ObjectItems(t *testing.T) {
	p := mustParam(t, map[string]any{
		"name": "rows",
		"type": "array",
		"items": map[string]any{
			"type":       "object",
			"properties": map[string]any{"n": map[string]any{"type": "integer"}},
		},
	})
	got, err := ConvertArray(p, []any{map[string]any{"n": "1"}, `{"n": 2}`}, "ctx")
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"n": int64(1)}, map[string]any{"n": int64(2)}}, got)
}

func TestConvertObject_StringAndMappingAgree(t *testing.T) {
	p := mustParam(t, map[string]any{
		"name": "obj",
		"type": "object",
		"properties": map[string]any{
			"a":    map[string]any{"type": "integer"},
			"b":    map[string]any{"type": "string"},
			"tags": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
	})

	fromText, err := ConvertObject(p, `{"a": "1", "b": "x", "tags": ["t1", 2]}`, "ctx")
	require.NoError(t, err)
	fromMap, err := ConvertObject(p, map[string]any{"a": "1", "b": "x", "tags": []any{"t1", 2}}, "ctx")
	require.NoError(t, err)

	assert.Equal(t, fromMap, fromText)
	assert.Equal(t, map[string]any{"a": int64(1), "b": "x", "tags": []any{"t1", "2"}}, fromMap)
}

func TestConvertObject_UnknownKey(t *testing.T) {
	p := mustParam(t, map[string]any{
		"name":       "obj",
		"type":       "object",
		"properties": map[string]any{"a": map[string]any{"type": "integer"}},
	})
	_, err := ConvertObject(p, map[string]any{"a": 1, "c": 2}, "ctx")
	require.Error(t, err)
	assert.True(t, schema.IsInvalidArgument(err))
	assert.Contains(t, err.Error(), "ctx Input has unknown parameter c")
}

func TestConvertObject_NoPropertiesPassesThrough(t *testing.T) {
	p := mustParam(t, map[string]any{"name": "obj", "type": "object"})
	got, err := ConvertObject(p, `{"anything": [1, 2]}`, "ctx")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"anything": []any{float64(1), float64(2)}}, got)
}

func TestConvertObject_NotAnObject(t *testing.T) {
	p := mustParam(t, map[string]any{"name": "obj", "type": "object"})
	for _, in := range []any{"[1,2]", "{broken", 5} {
		_, err := ConvertObject(p, in, "ctx")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ctx A JSON object was expected")
	}
}

func TestConvertJSON_NestedSchema(t *testing.T) {
	p := mustParam(t, map[string]any{
		"name": "body",
		"schema": map[string]any{
			"type":       "object",
			"properties": map[string]any{"flag": map[string]any{"type": "boolean"}},
		},
	})
	got, err := ConvertJSON(p, `{"flag": "true"}`, "ctx")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"flag": true}, got)
}
