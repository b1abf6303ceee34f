package actions

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rendis/appspec/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Register_Success(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(Callable{App: "HelloWorld", Kind: KindAction, Name: "greet", ArgNames: []string{"name"}})
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Count())
	assert.True(t, reg.Has("HelloWorld", KindAction, "greet"))
	assert.False(t, reg.Has("HelloWorld", KindCondition, "greet"))
}

func TestRegistry_Register_Duplicate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Callable{App: "a", Kind: KindAction, Name: "dup"}))

	err := reg.Register(Callable{App: "a", Kind: KindAction, Name: "dup"})
	require.Error(t, err)

	var appErr *schema.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, schema.ErrCodeConflict, appErr.Code)
}

func TestRegistry_Register_SameNameDifferentKind(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Callable{App: "a", Kind: KindAction, Name: "x"}))
	require.NoError(t, reg.Register(Callable{App: "a", Kind: KindTransform, Name: "x"}))
	assert.Equal(t, 2, reg.Count())
}

func TestRegistry_Register_Invalid(t *testing.T) {
	reg := NewRegistry()

	for _, c := range []Callable{
		{Kind: KindAction, Name: "x"},
		{App: "a", Kind: KindAction},
		{App: "a", Kind: "widget", Name: "x"},
	} {
		err := reg.Register(c)
		require.Error(t, err)
		assert.True(t, schema.IsInvalidApi(err))
	}
}

func TestRegistry_Resolve_NotFound(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.ResolveAction("a", "missing")
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestRegistry_Resolve_ReturnsCopy(t *testing.T) {
	reg := NewRegistry()
	args := []string{"event", "x"}
	require.NoError(t, reg.Register(Callable{App: "a", Kind: KindAction, Name: "wait", ArgNames: args, EventName: "tick"}))
	args[0] = "mutated"

	got, err := reg.ResolveAction("a", "wait")
	require.NoError(t, err)
	assert.Equal(t, []string{"event", "x"}, got.ArgNames)
	assert.Equal(t, "tick", got.EventName)

	got.ArgNames[1] = "changed"
	again, err := reg.ResolveAction("a", "wait")
	require.NoError(t, err)
	assert.Equal(t, []string{"event", "x"}, again.ArgNames)
}

func TestRegistry_ResolveConditionAndTransform(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Callable{App: "a", Kind: KindCondition, Name: "top_level_flag"}))
	require.NoError(t, reg.Register(Callable{App: "a", Kind: KindTransform, Name: "length"}))

	_, err := reg.ResolveCondition("a", "top_level_flag")
	require.NoError(t, err)
	_, err = reg.ResolveTransform("a", "length")
	require.NoError(t, err)
	_, err = reg.ResolveTransform("a", "top_level_flag")
	require.Error(t, err)
}

func TestRegistry_ListDeclared_Sorted(t *testing.T) {
	reg := NewRegistry()
	n, err := reg.RegisterApp("a", []Callable{
		{Kind: KindAction, Name: "z"},
		{Kind: KindAction, Name: "b"},
		{Kind: KindCondition, Name: "c"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, reg.Register(Callable{App: "other", Kind: KindAction, Name: "q"}))

	assert.Equal(t, []string{"b", "z"}, reg.ListDeclared("a", KindAction))
	assert.Equal(t, []string{"c"}, reg.ListDeclared("a", KindCondition))
	assert.Empty(t, reg.ListDeclared("a", KindTransform))
	assert.Empty(t, reg.ListDeclared("missing", KindAction))
}

func TestRegistry_List_Sorted(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Callable{App: "b", Kind: KindAction, Name: "x"}))
	require.NoError(t, reg.Register(Callable{App: "a", Kind: KindTransform, Name: "y"}))
	require.NoError(t, reg.Register(Callable{App: "a", Kind: KindAction, Name: "z"}))

	infos := reg.List()
	require.Len(t, infos, 3)
	assert.Equal(t, CallableInfo{App: "a", Kind: KindAction, Name: "z"}, infos[0])
	assert.Equal(t, CallableInfo{App: "a", Kind: KindTransform, Name: "y"}, infos[1])
	assert.Equal(t, CallableInfo{App: "b", Kind: KindAction, Name: "x"}, infos[2])
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = reg.Register(Callable{App: "a", Kind: KindAction, Name: fmt.Sprintf("act-%d", i)})
		}(i)
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = reg.ListDeclared("a", KindAction)
			_ = reg.Count()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, reg.Count())
}

func TestKind_Label(t *testing.T) {
	assert.Equal(t, "Action", KindAction.Label())
	assert.Equal(t, "Condition", KindCondition.Label())
	assert.Equal(t, "Transform", KindTransform.Label())
}
