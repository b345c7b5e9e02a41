package scene

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/hydra/pkg/delegate"
	"github.com/openfroyo/hydra/pkg/engine"
)

type syncTask struct {
	mu    sync.Mutex
	seen  []engine.DirtyBits
	leave engine.DirtyBits
}

func (s *syncTask) Sync(_ context.Context, _ *engine.TaskContext, dirty *engine.DirtyBits) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, *dirty)
	*dirty = s.leave
}
func (s *syncTask) Prepare(context.Context, *engine.TaskContext, engine.SceneIndex) {}
func (s *syncTask) Execute(context.Context, *engine.TaskContext)                    {}

type failingPrim struct{ calls int }

func (f *failingPrim) Sync(context.Context, delegate.Requester, engine.DirtyBits) error {
	f.calls++
	return errors.New("no data")
}

func newIndex(t *testing.T) (*RenderIndex, *delegate.MemoryDelegate) {
	t.Helper()
	d := delegate.NewMemoryDelegate(delegate.WithLogger(zerolog.Nop()))
	drivers := engine.DriverVector{{Name: engine.NewToken("cpu")}}
	return NewRenderIndex(d, drivers, WithLogger(zerolog.Nop()), WithSyncConcurrency(2)), d
}

func TestRenderIndex_TaskRegistry(t *testing.T) {
	x, _ := newIndex(t)
	task := &syncTask{}

	require.NoError(t, x.InsertTask("/Tasks/Render", task))
	require.NoError(t, x.InsertTask("/Tasks/Aov", &syncTask{}))

	err := x.InsertTask("/Tasks/Render", &syncTask{})
	require.Error(t, err)
	assert.True(t, engine.IsUsage(err))

	err = x.InsertTask("Tasks/Bad", &syncTask{})
	assert.True(t, engine.HasCode(err, engine.ErrCodeInvalidPath))

	err = x.InsertTask("/Tasks/Nil", nil)
	assert.ErrorIs(t, err, engine.ErrNilArgument)

	got, ok := x.Task("/Tasks/Render")
	require.True(t, ok)
	assert.Same(t, task, got)
	assert.Equal(t, []engine.Path{"/Tasks/Aov", "/Tasks/Render"}, x.TaskPaths())

	x.RemoveTask("/Tasks/Render")
	_, ok = x.Task("/Tasks/Render")
	assert.False(t, ok)
	x.RemoveTask("/Tasks/Render")
}

func TestRenderIndex_TaskLivesAtOnePath(t *testing.T) {
	x, _ := newIndex(t)
	task := &syncTask{}
	require.NoError(t, x.InsertTask("/A", task))

	err := x.InsertTask("/B", task)
	require.Error(t, err)
	assert.True(t, engine.IsUsage(err))
	assert.Contains(t, err.Error(), "/A")
	_, ok := x.Task("/B")
	assert.False(t, ok)

	// The task stays change tracked at /A.
	tc := engine.NewTaskContext()
	for i := 0; i < 3; i++ {
		x.SyncAll(context.Background(), []engine.Task{task}, tc)
	}
	assert.Equal(t, []engine.DirtyBits{engine.AllDirty}, task.seen, "clean task must not sync")

	// Once removed it can be inserted elsewhere and is tracked there.
	x.RemoveTask("/A")
	require.NoError(t, x.InsertTask("/B", task))
	for i := 0; i < 3; i++ {
		x.SyncAll(context.Background(), []engine.Task{task}, tc)
	}
	assert.Len(t, task.seen, 2)
}

func TestRenderIndex_SyncAllTaskDirtyBits(t *testing.T) {
	x, _ := newIndex(t)
	task := &syncTask{}
	require.NoError(t, x.InsertTask("/Tasks/Render", task))
	tc := engine.NewTaskContext()
	ctx := context.Background()

	x.SyncAll(ctx, []engine.Task{task}, tc)
	x.SyncAll(ctx, []engine.Task{task}, tc)
	assert.Equal(t, []engine.DirtyBits{engine.AllDirty}, task.seen, "clean task must not sync")

	x.Tracker().MarkTaskDirty("/Tasks/Render", engine.DirtyCollection)
	x.SyncAll(ctx, []engine.Task{task}, tc)
	assert.Equal(t, engine.DirtyCollection, task.seen[1])
	assert.Equal(t, 1, x.LastSync().DirtyTasks)
}

func TestRenderIndex_SyncAllKeepsUnhandledBits(t *testing.T) {
	x, _ := newIndex(t)
	task := &syncTask{leave: engine.DirtyRenderTags}
	require.NoError(t, x.InsertTask("/Tasks/Render", task))

	x.SyncAll(context.Background(), []engine.Task{task}, engine.NewTaskContext())
	assert.Equal(t, engine.DirtyRenderTags, x.Tracker().TaskDirtyBits("/Tasks/Render"))
}

func TestRenderIndex_SyncAllUntrackedTask(t *testing.T) {
	x, _ := newIndex(t)
	task := &syncTask{}
	tc := engine.NewTaskContext()

	x.SyncAll(context.Background(), []engine.Task{task}, tc)
	x.SyncAll(context.Background(), []engine.Task{task}, tc)
	assert.Equal(t, []engine.DirtyBits{engine.AllDirty, engine.AllDirty}, task.seen)
}

func TestRenderIndex_SyncAllRprims(t *testing.T) {
	x, d := newIndex(t)
	meshes := map[engine.Path]*Mesh{
		"/World/A": NewMesh("/World/A", []float32{1, 2, 3}),
		"/World/B": NewMesh("/World/B", []float32{4}),
		"/World/C": NewMesh("/World/C", nil),
	}
	for path, m := range meshes {
		require.NoError(t, x.InsertRprim(path, m))
	}
	assert.Equal(t, []engine.Path{"/World/A", "/World/B", "/World/C"}, x.RprimPaths())

	ctx := context.Background()
	x.SyncAll(ctx, []engine.Task{}, engine.NewTaskContext())
	assert.Equal(t, 3, x.LastSync().Rprims)
	assert.Equal(t, []string{"/World/A/points", "/World/B/points", "/World/C/points"}, d.Registry().Pending())

	d.CommitResources(ctx, x.ChangeTracker())
	buf, ok := d.Registry().Buffer("/World/A/points")
	require.True(t, ok)
	assert.Len(t, buf.Data, 12)

	// Clean prims do no work.
	x.SyncAll(ctx, []engine.Task{}, engine.NewTaskContext())
	assert.Equal(t, 0, x.LastSync().Rprims)
	assert.Equal(t, 1, meshes["/World/A"].Syncs())

	meshes["/World/B"].SetPoints([]float32{5, 6})
	x.Tracker().MarkRprimDirty("/World/B", engine.DirtyPrimvar)
	x.SyncAll(ctx, []engine.Task{}, engine.NewTaskContext())
	assert.Equal(t, 1, x.LastSync().Rprims)
	assert.Equal(t, 2, meshes["/World/B"].Syncs())
	assert.Equal(t, 1, meshes["/World/A"].Syncs())
}

func TestRenderIndex_RprimErrorsAreLoggedNotReturned(t *testing.T) {
	x, _ := newIndex(t)
	bad := &failingPrim{}
	require.NoError(t, x.InsertRprim("/World/Bad", bad))
	require.NoError(t, x.InsertRprim("/World/Good", NewMesh("/World/Good", []float32{1})))

	x.SyncAll(context.Background(), []engine.Task{}, engine.NewTaskContext())
	assert.Equal(t, 1, x.LastSync().RprimErrors)
	assert.False(t, x.Tracker().RprimDirtyBits("/World/Bad").IsClean(), "failed prim stays dirty")
	assert.True(t, x.Tracker().RprimDirtyBits("/World/Good").IsClean())

	x.SyncAll(context.Background(), []engine.Task{}, engine.NewTaskContext())
	assert.Equal(t, 2, bad.calls)
}

func TestRenderIndex_Drivers(t *testing.T) {
	x, _ := newIndex(t)
	assert.Equal(t, []string{"cpu"}, x.Drivers().Names())

	x.SetDrivers(engine.DriverVector{{Name: engine.NewToken("gpu")}})
	assert.Equal(t, []string{"gpu"}, x.Drivers().Names())
}

func TestTracker_Version(t *testing.T) {
	tr := NewTracker()
	assert.Zero(t, tr.SceneStateVersion())

	tr.MarkRprimDirty("/a", engine.Clean)
	assert.Zero(t, tr.SceneStateVersion(), "marking clean bits is not a change")

	tr.MarkRprimDirty("/a", engine.DirtyParams)
	tr.MarkRprimDirty("/a", engine.DirtyPrimvar)
	assert.Equal(t, uint64(2), tr.SceneStateVersion())
	assert.True(t, tr.RprimDirtyBits("/a").Has(engine.DirtyParams))
	assert.True(t, tr.RprimDirtyBits("/a").Has(engine.DirtyPrimvar))

	tr.MarkRprimClean("/a", engine.Clean)
	assert.Empty(t, tr.DirtyRprims())
}

func TestRenderIndex_EngineFrame(t *testing.T) {
	x, d := newIndex(t)
	require.NoError(t, x.InsertRprim("/World/A", NewMesh("/World/A", []float32{1, 2})))
	task := &syncTask{}
	require.NoError(t, x.InsertTask("/Tasks/T", task))

	eng := engine.New(engine.WithLogger(zerolog.Nop()))
	require.NoError(t, eng.ExecutePaths(context.Background(), x, []engine.Path{"/Tasks/T"}))

	assert.Len(t, task.seen, 1)
	assert.Equal(t, uint64(1), d.Commits())
	rec, _ := d.LastCommit()
	assert.Equal(t, x.Tracker().SceneStateVersion(), rec.SceneStateVersion)
	_, ok := d.Registry().Buffer("/World/A/points")
	assert.True(t, ok)
}
