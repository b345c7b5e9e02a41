package scene

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/openfroyo/hydra/pkg/delegate"
	"github.com/openfroyo/hydra/pkg/engine"
)

// Rprim is a renderable prim. Sync pulls its changed data and queues the
// resources it needs on the requester.
type Rprim interface {
	Sync(ctx context.Context, requester delegate.Requester, dirty engine.DirtyBits) error
}

// SyncStats summarizes one SyncAll call.
type SyncStats struct {
	Tasks        int           `json:"tasks"`
	DirtyTasks   int           `json:"dirty_tasks"`
	Rprims       int           `json:"rprims"`
	RprimErrors  int           `json:"rprim_errors"`
	Duration     time.Duration `json:"duration"`
	StateVersion uint64        `json:"state_version"`
}

// RenderIndex is a scene index holding tasks and rprims by path. It
// implements engine.SceneIndex.
type RenderIndex struct {
	delegate    engine.RenderDelegate
	requester   delegate.Requester
	tracker     *Tracker
	logger      zerolog.Logger
	concurrency int

	mu        sync.RWMutex
	drivers   engine.DriverVector
	tasks     map[engine.Path]engine.Task
	taskPaths map[engine.Task]engine.Path
	rprims    map[engine.Path]Rprim
	lastSync  SyncStats
}

// Option configures a RenderIndex.
type Option func(*RenderIndex)

// WithLogger sets the index logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(x *RenderIndex) {
		x.logger = logger
	}
}

// WithSyncConcurrency bounds the number of rprims synced at once. Values
// <= 0 select 4.
func WithSyncConcurrency(n int) Option {
	return func(x *RenderIndex) {
		x.concurrency = n
	}
}

// WithRequester sets where rprims queue resource requests. By default the
// render delegate is used when it implements delegate.Requester.
func WithRequester(r delegate.Requester) Option {
	return func(x *RenderIndex) {
		x.requester = r
	}
}

// NewRenderIndex creates an index over the given delegate and drivers.
func NewRenderIndex(rd engine.RenderDelegate, drivers engine.DriverVector, opts ...Option) *RenderIndex {
	x := &RenderIndex{
		delegate:  rd,
		tracker:   NewTracker(),
		logger:    log.With().Str("component", "scene").Logger(),
		drivers:   drivers,
		tasks:     make(map[engine.Path]engine.Task),
		taskPaths: make(map[engine.Task]engine.Path),
		rprims:    make(map[engine.Path]Rprim),
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.concurrency <= 0 {
		x.concurrency = 4
	}
	if x.requester == nil {
		if r, ok := rd.(delegate.Requester); ok {
			x.requester = r
		} else {
			x.requester = discardRequester{}
		}
	}
	return x
}

// InsertTask registers task at path and marks it fully dirty. Tasks must
// be of a comparable type, usually a pointer, and live at a single path:
// inserting a task that is already registered elsewhere is an error.
func (x *RenderIndex) InsertTask(path engine.Path, task engine.Task) error {
	if _, err := engine.ParsePath(path.String()); err != nil {
		return err
	}
	if task == nil {
		return engine.NewUsageError("nil task", nil).
			WithCode(engine.ErrCodeNilArgument).
			WithPath(path)
	}
	if !reflect.TypeOf(task).Comparable() {
		return engine.NewUsageError(fmt.Sprintf("task type %T is not comparable", task), nil).
			WithPath(path)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if _, exists := x.tasks[path]; exists {
		return engine.NewUsageError(fmt.Sprintf("task already inserted at %s", path), nil).
			WithPath(path)
	}
	if other, exists := x.taskPaths[task]; exists {
		return engine.NewUsageError(fmt.Sprintf("task already inserted at %s", other), nil).
			WithPath(path)
	}
	x.tasks[path] = task
	x.taskPaths[task] = path
	x.tracker.MarkTaskDirty(path, engine.AllDirty)
	return nil
}

// RemoveTask unregisters the task at path, if any.
func (x *RenderIndex) RemoveTask(path engine.Path) {
	x.mu.Lock()
	defer x.mu.Unlock()
	task, ok := x.tasks[path]
	if !ok {
		return
	}
	delete(x.tasks, path)
	if x.taskPaths[task] == path {
		delete(x.taskPaths, task)
	}
	x.tracker.removeTask(path)
}

// Task implements engine.SceneIndex.
func (x *RenderIndex) Task(path engine.Path) (engine.Task, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	task, ok := x.tasks[path]
	return task, ok
}

// TaskPaths returns registered task paths, sorted.
func (x *RenderIndex) TaskPaths() []engine.Path {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return sortedPaths(x.tasks)
}

// InsertRprim registers an rprim at path and marks it fully dirty.
func (x *RenderIndex) InsertRprim(path engine.Path, prim Rprim) error {
	if _, err := engine.ParsePath(path.String()); err != nil {
		return err
	}
	if prim == nil {
		return engine.NewUsageError("nil rprim", nil).
			WithCode(engine.ErrCodeNilArgument).
			WithPath(path)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if _, exists := x.rprims[path]; exists {
		return engine.NewUsageError(fmt.Sprintf("rprim already inserted at %s", path), nil).
			WithPath(path)
	}
	x.rprims[path] = prim
	x.tracker.MarkRprimDirty(path, engine.AllDirty)
	return nil
}

// RemoveRprim unregisters the rprim at path, if any.
func (x *RenderIndex) RemoveRprim(path engine.Path) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.rprims[path]; !ok {
		return
	}
	delete(x.rprims, path)
	x.tracker.removeRprim(path)
}

// RprimPaths returns registered rprim paths, sorted.
func (x *RenderIndex) RprimPaths() []engine.Path {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return sortedPaths(x.rprims)
}

// Tracker returns the index's change tracker.
func (x *RenderIndex) Tracker() *Tracker {
	return x.tracker
}

// ChangeTracker implements engine.SceneIndex.
func (x *RenderIndex) ChangeTracker() engine.ChangeTracker {
	return x.tracker
}

// RenderDelegate implements engine.SceneIndex.
func (x *RenderIndex) RenderDelegate() engine.RenderDelegate {
	return x.delegate
}

// Drivers implements engine.SceneIndex.
func (x *RenderIndex) Drivers() engine.DriverVector {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.drivers
}

// SetDrivers replaces the driver set seeded into the next frame.
func (x *RenderIndex) SetDrivers(drivers engine.DriverVector) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.drivers = drivers
}

// LastSync returns statistics of the most recent SyncAll.
func (x *RenderIndex) LastSync() SyncStats {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.lastSync
}

// SyncAll implements engine.SceneIndex. Tasks are synced in list order with
// their tracked dirty bits; tasks that were never inserted are treated as
// fully dirty on every frame. Dirty rprims are then synced in parallel. Rprim
// errors are logged and leave the rprim dirty for the next frame.
func (x *RenderIndex) SyncAll(ctx context.Context, tasks []engine.Task, taskCtx *engine.TaskContext) {
	start := time.Now()
	stats := SyncStats{Tasks: len(tasks)}

	for _, task := range tasks {
		path, tracked := x.pathOf(task)
		dirty := engine.AllDirty
		if tracked {
			dirty = x.tracker.TaskDirtyBits(path)
		}
		if dirty.IsClean() {
			continue
		}
		stats.DirtyTasks++
		task.Sync(ctx, taskCtx, &dirty)
		if tracked {
			x.tracker.MarkTaskClean(path, dirty)
		}
	}

	dirtyPrims := x.tracker.DirtyRprims()
	sort.Slice(dirtyPrims, func(i, j int) bool { return dirtyPrims[i] < dirtyPrims[j] })
	stats.Rprims = len(dirtyPrims)

	var failed int
	var failMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.concurrency)
	for _, path := range dirtyPrims {
		x.mu.RLock()
		prim, ok := x.rprims[path]
		x.mu.RUnlock()
		if !ok {
			continue
		}
		g.Go(func() error {
			dirty := x.tracker.RprimDirtyBits(path)
			if err := prim.Sync(gctx, x.requester, dirty); err != nil {
				x.logger.Error().Err(err).Str("path", path.String()).Msg("Rprim sync failed")
				failMu.Lock()
				failed++
				failMu.Unlock()
				return nil
			}
			x.tracker.MarkRprimClean(path, engine.Clean)
			return nil
		})
	}
	_ = g.Wait()

	stats.RprimErrors = failed
	stats.Duration = time.Since(start)
	stats.StateVersion = x.tracker.SceneStateVersion()

	x.mu.Lock()
	x.lastSync = stats
	x.mu.Unlock()

	x.logger.Debug().
		Int("tasks", stats.Tasks).
		Int("dirty_tasks", stats.DirtyTasks).
		Int("rprims", stats.Rprims).
		Int("rprim_errors", stats.RprimErrors).
		Dur("duration", stats.Duration).
		Msg("Scene synced")
}

func (x *RenderIndex) pathOf(task engine.Task) (engine.Path, bool) {
	if !reflect.TypeOf(task).Comparable() {
		return "", false
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	path, ok := x.taskPaths[task]
	return path, ok
}

func sortedPaths[V any](m map[engine.Path]V) []engine.Path {
	paths := make([]engine.Path, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	return paths
}

type discardRequester struct{}

func (discardRequester) RequestBuffer(string, int, delegate.SourceFunc) {}

var _ engine.SceneIndex = (*RenderIndex)(nil)
