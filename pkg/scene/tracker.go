package scene

import (
	"sync"

	"github.com/openfroyo/hydra/pkg/engine"
)

// Tracker records dirty state for tasks and rprims. Every change bumps the
// scene state version. It is safe for concurrent use; rprims are synced in
// parallel.
type Tracker struct {
	mu      sync.RWMutex
	tasks   map[engine.Path]engine.DirtyBits
	rprims  map[engine.Path]engine.DirtyBits
	version uint64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		tasks:  make(map[engine.Path]engine.DirtyBits),
		rprims: make(map[engine.Path]engine.DirtyBits),
	}
}

// SceneStateVersion implements engine.ChangeTracker.
func (t *Tracker) SceneStateVersion() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// MarkTaskDirty ORs bits into the task's dirty state.
func (t *Tracker) MarkTaskDirty(path engine.Path, bits engine.DirtyBits) {
	t.mark(t.tasks, path, bits)
}

// MarkRprimDirty ORs bits into the rprim's dirty state.
func (t *Tracker) MarkRprimDirty(path engine.Path, bits engine.DirtyBits) {
	t.mark(t.rprims, path, bits)
}

// TaskDirtyBits returns the task's dirty state.
func (t *Tracker) TaskDirtyBits(path engine.Path) engine.DirtyBits {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tasks[path]
}

// RprimDirtyBits returns the rprim's dirty state.
func (t *Tracker) RprimDirtyBits(path engine.Path) engine.DirtyBits {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rprims[path]
}

// MarkTaskClean sets the task's dirty state to remaining, the bits its Sync
// left unhandled.
func (t *Tracker) MarkTaskClean(path engine.Path, remaining engine.DirtyBits) {
	t.clean(t.tasks, path, remaining)
}

// MarkRprimClean sets the rprim's dirty state to remaining.
func (t *Tracker) MarkRprimClean(path engine.Path, remaining engine.DirtyBits) {
	t.clean(t.rprims, path, remaining)
}

// DirtyRprims returns the paths of rprims with any dirty bit set.
func (t *Tracker) DirtyRprims() []engine.Path {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var paths []engine.Path
	for path, bits := range t.rprims {
		if !bits.IsClean() {
			paths = append(paths, path)
		}
	}
	return paths
}

func (t *Tracker) mark(m map[engine.Path]engine.DirtyBits, path engine.Path, bits engine.DirtyBits) {
	if bits.IsClean() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	m[path] |= bits
	t.version++
}

func (t *Tracker) clean(m map[engine.Path]engine.DirtyBits, path engine.Path, remaining engine.DirtyBits) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := m[path]; ok {
		m[path] = remaining
	}
}

func (t *Tracker) remove(m map[engine.Path]engine.DirtyBits, path engine.Path) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(m, path)
	t.version++
}

func (t *Tracker) removeTask(path engine.Path)  { t.remove(t.tasks, path) }
func (t *Tracker) removeRprim(path engine.Path) { t.remove(t.rprims, path) }

var _ engine.ChangeTracker = (*Tracker)(nil)
