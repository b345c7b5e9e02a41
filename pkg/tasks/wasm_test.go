package tasks

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/hydra/pkg/engine"
)

// markModule imports hydra.mark(i32) and exports prepare, which calls
// mark(1), and execute, which calls mark(2).
var markModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type section: () -> (), (i32) -> ()
	0x01, 0x08, 0x02, 0x60, 0x00, 0x00, 0x60, 0x01, 0x7f, 0x00,
	// import section: hydra.mark, type 1
	0x02, 0x0e, 0x01, 0x05, 0x68, 0x79, 0x64, 0x72, 0x61,
	0x04, 0x6d, 0x61, 0x72, 0x6b, 0x00, 0x01,
	// function section: two functions of type 0
	0x03, 0x03, 0x02, 0x00, 0x00,
	// export section
	0x07, 0x15, 0x02,
	0x07, 0x70, 0x72, 0x65, 0x70, 0x61, 0x72, 0x65, 0x00, 0x01,
	0x07, 0x65, 0x78, 0x65, 0x63, 0x75, 0x74, 0x65, 0x00, 0x02,
	// code section
	0x0a, 0x0f, 0x02,
	0x06, 0x00, 0x41, 0x01, 0x10, 0x00, 0x0b,
	0x06, 0x00, 0x41, 0x02, 0x10, 0x00, 0x0b,
}

func newMarkTask(t *testing.T) *Wasm {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()
	w, err := NewWasm(ctx, "marker", markModule, &WasmConfig{Logger: &logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close(ctx) })
	return w
}

func TestWasm_Phases(t *testing.T) {
	w := newMarkTask(t)
	ctx := context.Background()
	tc := engine.NewTaskContext()

	dirty := engine.AllDirty
	w.Sync(ctx, tc, &dirty)
	assert.True(t, dirty.IsClean(), "missing sync export still clears bits")

	w.Prepare(ctx, tc, nil)
	marks, ok, err := engine.GetAs[[]int32](tc, w.MarksKey())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []int32{1}, marks)

	w.Execute(ctx, tc)
	marks, _, _ = engine.GetAs[[]int32](tc, w.MarksKey())
	assert.Equal(t, []int32{1, 2}, marks)
	assert.NoError(t, w.LastError())
}

func TestWasm_ThroughEngine(t *testing.T) {
	w := newMarkTask(t)
	x, _ := newScene(t)
	eng := newEngine()

	require.NoError(t, eng.Execute(context.Background(), x, []engine.Task{w}))
	require.NoError(t, eng.Execute(context.Background(), x, []engine.Task{w}))

	marks, _, err := engine.GetAs[[]int32](eng.TaskContext(), w.MarksKey())
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 1, 2}, marks)
	assert.Equal(t, engine.NewToken("wasm.marker.marks"), w.MarksKey())
}

func TestWasm_MarksKeyHoldsOtherType(t *testing.T) {
	w := newMarkTask(t)
	tc := engine.NewTaskContext()
	tc.SetAny(w.MarksKey(), "not marks")

	w.Prepare(context.Background(), tc, nil)
	require.Error(t, w.LastError())
	assert.True(t, engine.IsUsage(w.LastError()))
}

func TestNewWasm_InvalidModule(t *testing.T) {
	_, err := NewWasm(context.Background(), "junk", []byte("not wasm"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "junk")
}
