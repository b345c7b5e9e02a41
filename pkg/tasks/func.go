package tasks

import (
	"context"

	"github.com/openfroyo/hydra/pkg/engine"
)

// Func is a task built from closures. Nil closures do nothing; a nil SyncFn
// clears the dirty bits.
type Func struct {
	SyncFn    func(ctx context.Context, tc *engine.TaskContext, dirty *engine.DirtyBits)
	PrepareFn func(ctx context.Context, tc *engine.TaskContext, index engine.SceneIndex)
	ExecuteFn func(ctx context.Context, tc *engine.TaskContext)
}

// Sync implements engine.Task.
func (f *Func) Sync(ctx context.Context, tc *engine.TaskContext, dirty *engine.DirtyBits) {
	if f.SyncFn != nil {
		f.SyncFn(ctx, tc, dirty)
		return
	}
	*dirty = engine.Clean
}

// Prepare implements engine.Task.
func (f *Func) Prepare(ctx context.Context, tc *engine.TaskContext, index engine.SceneIndex) {
	if f.PrepareFn != nil {
		f.PrepareFn(ctx, tc, index)
	}
}

// Execute implements engine.Task.
func (f *Func) Execute(ctx context.Context, tc *engine.TaskContext) {
	if f.ExecuteFn != nil {
		f.ExecuteFn(ctx, tc)
	}
}

var _ engine.Task = (*Func)(nil)
