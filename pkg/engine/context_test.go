package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskContext_SetGet(t *testing.T) {
	tc := NewTaskContext()
	key := NewToken("camera")

	_, ok := tc.Get(key)
	assert.False(t, ok, "never-set key must be absent")

	tc.Set(key, NewValue("persp"))
	v, ok := tc.Get(key)
	require.True(t, ok)
	assert.Equal(t, "persp", v.Any())

	tc.Set(key, NewValue("ortho"))
	v, _ = tc.Get(key)
	assert.Equal(t, "ortho", v.Any())
	assert.Equal(t, 1, tc.Len(), "overwrite must not add an entry")
}

func TestTaskContext_Remove(t *testing.T) {
	tc := NewTaskContext()
	key := NewToken("camera")

	tc.Remove(key)
	assert.Equal(t, 0, tc.Len())

	tc.SetAny(key, 1)
	tc.Remove(key)
	_, ok := tc.Get(key)
	assert.False(t, ok)
}

func TestTaskContext_Clear(t *testing.T) {
	tc := NewTaskContext()
	keys := []Token{NewToken("a"), NewToken("b"), NewToken("c")}
	for i, k := range keys {
		tc.SetAny(k, i)
	}

	tc.Clear()
	for _, k := range keys {
		_, ok := tc.Get(k)
		assert.False(t, ok, "key %s survived Clear", k)
	}
	assert.Equal(t, 0, tc.Len())
}

func TestTaskContext_Keys(t *testing.T) {
	tc := NewTaskContext()
	tc.SetAny(NewToken("zeta"), 1)
	tc.SetAny(NewToken("alpha"), 2)
	tc.SetAny(NewToken("mid"), 3)

	var names []string
	for _, k := range tc.Keys() {
		names = append(names, k.String())
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

func TestGetAs(t *testing.T) {
	tc := NewTaskContext()
	key := NewToken("samples")
	tc.SetAny(key, 16)

	n, ok, err := GetAs[int](tc, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 16, n)

	_, ok, err = GetAs[string](tc, key)
	assert.True(t, ok)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.True(t, IsUsage(err))

	var e *EngineError
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "samples", e.Details["key"])

	_, ok, err = GetAs[int](tc, NewToken("missing"))
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestGetAs_Interface(t *testing.T) {
	type tracker interface{ SceneStateVersion() uint64 }
	tc := NewTaskContext()
	key := NewToken("tracker")
	tc.SetAny(key, &mockTracker{version: 3})

	tr, ok, err := GetAs[tracker](tc, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(3), tr.SceneStateVersion())
}
