package validation

import (
	"sync"
	"testing"

	"github.com/rendis/appspec/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateParameter_OptionalAbsent(t *testing.T) {
	v := NewValidator(nil)
	for _, raw := range []map[string]any{
		{"name": "a", "type": "integer"},
		{"name": "b", "type": "array", "items": map[string]any{"type": "string"}},
		{"name": "c", "schema": map[string]any{"type": "object"}},
	} {
		got, err := v.ValidateParameter(nil, mustParam(t, raw), "ctx")
		require.NoError(t, err)
		assert.Nil(t, got)
	}
}

func TestValidateParameter_RequiredAbsent(t *testing.T) {
	v := NewValidator(nil)
	p := mustParam(t, map[string]any{"name": "a", "type": "integer", "required": true})

	_, err := v.ValidateParameter(nil, p, "app A action B")
	require.Error(t, err)
	assert.True(t, schema.IsInvalidArgument(err))
	assert.Contains(t, err.Error(), "In app A action B: Missing primitive parameter 'a'")
}

func TestValidateParameter_Primitive(t *testing.T) {
	v := NewValidator(nil)
	p := mustParam(t, map[string]any{"name": "n", "type": "integer", "minimum": 2, "maximum": 10})

	got, err := v.ValidateParameter("4", p, "ctx")
	require.NoError(t, err)
	assert.Equal(t, int64(4), got)

	_, err = v.ValidateParameter("11", p, "ctx")
	require.Error(t, err)
	assert.True(t, schema.IsInvalidArgument(err))
	assert.Contains(t, err.Error(), `ctx has invalid input. Input "11" with type integer does not conform to validators`)

	_, err = v.ValidateParameter("eleven", p, "ctx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `ctx has invalid input. Input "eleven" could not be converted to type integer`)
}

func TestValidateParameter_Format(t *testing.T) {
	v := NewValidator(nil)
	p := mustParam(t, map[string]any{"name": "to", "type": "string", "format": "email"})

	got, err := v.ValidateParameter("ada@example.com", p, "ctx")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", got)

	_, err = v.ValidateParameter("not-an-address", p, "ctx")
	require.Error(t, err)
	assert.True(t, schema.IsInvalidArgument(err))
}

func TestValidateParameter_IdentifierMinimum(t *testing.T) {
	v := NewValidator(nil)
	for _, typ := range []string{"user", "role"} {
		p := mustParam(t, map[string]any{"name": "who", "type": typ})

		_, err := v.ValidateParameter(0, p, "ctx")
		require.Error(t, err, typ)
		assert.True(t, schema.IsInvalidArgument(err))

		got, err := v.ValidateParameter("3", p, "ctx")
		require.NoError(t, err, typ)
		assert.Equal(t, int64(3), got)
	}
}

func TestValidateParameter_IdentifierExplicitMinimum(t *testing.T) {
	v := NewValidator(nil)
	p := mustParam(t, map[string]any{"name": "who", "type": "user", "minimum": 0})

	got, err := v.ValidateParameter(0, p, "ctx")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func TestValidateParameter_IdentifierArrayItems(t *testing.T) {
	v := NewValidator(nil)
	p := mustParam(t, map[string]any{"name": "roles", "type": "array", "items": map[string]any{"type": "role"}})

	got, err := v.ValidateParameter([]any{"1", 2}, p, "ctx")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2)}, got)

	_, err = v.ValidateParameter([]any{"1", "0"}, p, "ctx")
	require.Error(t, err)
	assert.True(t, schema.IsInvalidArgument(err))
}

func TestValidateParameter_ArrayConstraints(t *testing.T) {
	v := NewValidator(nil)
	p := mustParam(t, map[string]any{
		"name":     "ids",
		"type":     "array",
		"items":    map[string]any{"type": "integer"},
		"minItems": 2,
	})

	_, err := v.ValidateParameter([]any{1}, p, "ctx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ctx has invalid input. Input [1] does not conform to validators")

	_, err = v.ValidateParameter([]any{"1", "2", "x"}, p, "ctx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `Input ["1","2","x"] could not be converted`)
}

func TestValidateParameter_ObjectSchema(t *testing.T) {
	v := NewValidator(nil)
	p := mustParam(t, map[string]any{
		"name":     "body",
		"required": true,
		"schema": map[string]any{
			"type":     "object",
			"required": []any{"n"},
			"properties": map[string]any{
				"n": map[string]any{"type": "integer", "minimum": 5},
			},
		},
	})

	got, err := v.ValidateParameter(`{"n": "7"}`, p, "ctx")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": int64(7)}, got)

	_, err = v.ValidateParameter(map[string]any{"n": 2}, p, "ctx")
	require.Error(t, err)
	assert.True(t, schema.IsInvalidArgument(err))

	_, err = v.ValidateParameter(map[string]any{}, p, "ctx")
	require.Error(t, err)
	assert.True(t, schema.IsInvalidArgument(err))
}

func TestValidateParameter_ObjectRoundTrip(t *testing.T) {
	v := NewValidator(nil)
	p := mustParam(t, map[string]any{
		"name": "cfg",
		"type": "object",
		"properties": map[string]any{
			"retries": map[string]any{"type": "integer"},
			"owner":   map[string]any{"type": "user"},
		},
	})

	fromText, err := v.ValidateParameter(`{"retries": "3", "owner": 4}`, p, "ctx")
	require.NoError(t, err)
	fromMap, err := v.ValidateParameter(map[string]any{"retries": "3", "owner": 4}, p, "ctx")
	require.NoError(t, err)
	assert.Equal(t, fromMap, fromText)

	_, err = v.ValidateParameter(map[string]any{"owner": 0}, p, "ctx")
	require.Error(t, err)
}

func TestValidateParameter_EncryptedHidesValue(t *testing.T) {
	v := NewValidator(nil)
	p := mustParam(t, map[string]any{"name": "password", "type": "string", "minLength": 12, "encrypted": true})

	_, err := v.validatePrimitive("hunter2", p, "ctx", p.Encrypted)
	require.Error(t, err)
	assert.True(t, schema.IsInvalidArgument(err))
	assert.NotContains(t, err.Error(), "hunter2")
	assert.Contains(t, err.Error(), "ctx has invalid input. string does not conform to validators")

	p = mustParam(t, map[string]any{"name": "pin", "type": "integer", "encrypted": true})
	_, err = v.validatePrimitive("12ab", p, "ctx", p.Encrypted)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "12ab")
}

func TestValidateParameter_InvalidConstraints(t *testing.T) {
	v := NewValidator(nil)
	p := mustParam(t, map[string]any{"name": "n", "type": "integer", "minimum": "low"})

	_, err := v.ValidateParameter(1, p, "ctx")
	require.Error(t, err)
	assert.True(t, schema.IsInvalidApi(err))

	err = v.CheckDeclaration(p, "ctx")
	require.Error(t, err)
	assert.True(t, schema.IsInvalidApi(err))
}

func TestValidateParameter_Concurrent(t *testing.T) {
	v := NewValidator(nil)
	p := mustParam(t, map[string]any{"name": "who", "type": "user"})

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = v.ValidateParameter(i%3, p, "ctx")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, "user", p.Type)
	assert.Equal(t, map[string]any{"type": "user"}, p.Fragment())
}

func TestWithIdentifierDefaults(t *testing.T) {
	in := map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "user"},
		"properties": map[string]any{
			"boss":  map[string]any{"type": "role", "minimum": 5},
			"count": map[string]any{"type": "integer"},
		},
	}
	out := WithIdentifierDefaults(in)

	assert.Equal(t, map[string]any{"type": "integer", "minimum": 1}, out["items"])
	props := out["properties"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "integer", "minimum": 5}, props["boss"])
	assert.Equal(t, map[string]any{"type": "integer"}, props["count"])

	assert.Equal(t, map[string]any{"type": "user"}, in["items"])
	assert.Equal(t, "role", in["properties"].(map[string]any)["boss"].(map[string]any)["type"])

	assert.Equal(t, map[string]any{}, WithIdentifierDefaults(nil))
}
