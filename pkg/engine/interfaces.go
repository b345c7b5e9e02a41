package engine

import (
	"context"
)

// Task is a unit of render work. Tasks are shared: the same task may be held
// by the scene index and appear in task lists of several engines.
//
// The context carries tracing and logging values only. The engine never
// cancels a frame through it.
type Task interface {
	// Sync pulls changed scene data into the task. It is called by the scene
	// index during data discovery, never by the engine, and only does work
	// when dirty is not Clean. Implementations clear the bits they handled.
	Sync(ctx context.Context, taskCtx *TaskContext, dirty *DirtyBits)

	// Prepare resolves bindings to data published by other tasks and
	// reserves resources for Execute. It runs every frame regardless of
	// dirty state. A task only sees entries published by tasks that come
	// earlier in the list.
	Prepare(ctx context.Context, taskCtx *TaskContext, index SceneIndex)

	// Execute dispatches the task's work. All committed resources are
	// visible by the time it is called.
	Execute(ctx context.Context, taskCtx *TaskContext)
}

// SceneIndex owns scene state, change tracking, drivers and task lookup.
// The engine borrows it for the duration of one Execute call; the caller
// keeps it valid for that long.
type SceneIndex interface {
	// SyncAll runs data discovery for tasks and for every dirty prim, and
	// queues resource requests on the render delegate. It may parallelize
	// internally but returns only when discovery is complete.
	SyncAll(ctx context.Context, tasks []Task, taskCtx *TaskContext)

	// RenderDelegate returns the delegate that commits resources.
	RenderDelegate() RenderDelegate

	// Task resolves a scene path to a task.
	Task(path Path) (Task, bool)

	// Drivers returns the current driver set.
	Drivers() DriverVector

	// ChangeTracker returns the tracker handed to CommitResources.
	ChangeTracker() ChangeTracker
}

// RenderDelegate owns CPU and GPU resource commitment.
type RenderDelegate interface {
	// CommitResources flushes every request accumulated during Sync and
	// Prepare into resident resources.
	CommitResources(ctx context.Context, tracker ChangeTracker)
}

// ChangeTracker records which scene data is dirty. The engine passes it
// through to the render delegate without looking at it.
type ChangeTracker interface {
	// SceneStateVersion increases whenever any tracked data changes.
	SceneStateVersion() uint64
}

// Driver is a handle to a graphics or compute context shared between the
// render delegate and tasks.
type Driver struct {
	// Name identifies the driver kind, e.g. "gpu" or "cpu".
	Name Token

	// Handle is the driver object itself.
	Handle any
}

// DriverVector is the driver set of a scene index.
type DriverVector []*Driver

// Find returns the first driver with the given name.
func (dv DriverVector) Find(name Token) (*Driver, bool) {
	for _, d := range dv {
		if d != nil && d.Name == name {
			return d, true
		}
	}
	return nil, false
}

// Names returns the driver names in order.
func (dv DriverVector) Names() []string {
	names := make([]string, 0, len(dv))
	for _, d := range dv {
		if d != nil {
			names = append(names, d.Name.String())
		}
	}
	return names
}

// DirtyBits flags which parts of a prim or task changed since its last sync.
type DirtyBits uint32

const (
	// Clean means nothing changed.
	Clean DirtyBits = 0

	// DirtyParams means task or prim parameters changed.
	DirtyParams DirtyBits = 1 << (iota - 1)

	// DirtyCollection means the set of prims a task draws changed.
	DirtyCollection

	// DirtyRenderTags means the render tags filter changed.
	DirtyRenderTags

	// DirtyPrimvar means per-prim data (points, normals, ...) changed.
	DirtyPrimvar

	// AllDirty marks everything.
	AllDirty DirtyBits = ^DirtyBits(0)
)

// Has reports whether any of the given bits are set.
func (b DirtyBits) Has(bits DirtyBits) bool {
	return b&bits != 0
}

// IsClean reports whether no bits are set.
func (b DirtyBits) IsClean() bool {
	return b == Clean
}
