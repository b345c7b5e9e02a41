package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openfroyo/hydra/pkg/config"
	"github.com/openfroyo/hydra/pkg/delegate"
	"github.com/openfroyo/hydra/pkg/engine"
	"github.com/openfroyo/hydra/pkg/scene"
	"github.com/openfroyo/hydra/pkg/tasks"
)

// gcInterval is how many commits pass between registry collections.
const gcInterval = 8

// sceneBuild is a pipeline turned into a render index and its tasks.
type sceneBuild struct {
	index    *scene.RenderIndex
	delegate *delegate.MemoryDelegate
	factory  *tasks.Factory

	// tasks is the frame task list when the pipeline has no execute list.
	tasks []engine.Task
	// paths is the execute list.
	paths []engine.Path

	presents []*tasks.Present
}

// buildScene creates the delegate, render index and tasks of p. Commit
// hooks are registered on the delegate.
func buildScene(ctx context.Context, p *config.Pipeline, logger zerolog.Logger, hooks ...delegate.CommitHook) (*sceneBuild, error) {
	opts := []delegate.Option{
		delegate.WithLogger(logger.With().Str("component", "delegate").Logger()),
		delegate.WithGCInterval(gcInterval),
	}
	for _, h := range hooks {
		opts = append(opts, delegate.WithCommitHook(h))
	}
	d := delegate.NewMemoryDelegate(opts...)

	drivers := make(engine.DriverVector, 0, len(p.Drivers))
	for _, dc := range p.Drivers {
		drivers = append(drivers, &engine.Driver{Name: engine.NewToken(dc.Name), Handle: dc.Device})
	}

	index := scene.NewRenderIndex(d, drivers,
		scene.WithLogger(logger.With().Str("component", "scene").Logger()))

	b := &sceneBuild{
		index:    index,
		delegate: d,
		factory:  tasks.NewFactory(logger),
	}

	for _, rc := range p.Rprims {
		path := engine.Path(rc.Path)
		if err := index.InsertRprim(path, scene.NewMesh(path, rc.Points)); err != nil {
			_ = b.Close(ctx)
			return nil, fmt.Errorf("rprim %s: %w", rc.Path, err)
		}
	}

	for _, tc := range p.Tasks {
		t, err := b.factory.Build(ctx, p, tc)
		if err != nil {
			_ = b.Close(ctx)
			return nil, err
		}
		if err := index.InsertTask(engine.Path(tc.Path), t); err != nil {
			_ = b.Close(ctx)
			return nil, fmt.Errorf("task %s: %w", tc.Path, err)
		}
		b.tasks = append(b.tasks, t)
		if present, ok := t.(*tasks.Present); ok {
			b.presents = append(b.presents, present)
		}
	}

	for _, path := range p.Execute {
		b.paths = append(b.paths, engine.Path(path))
	}

	return b, nil
}

// runFrame runs one frame in the pipeline's form: over the execute list
// when it has one, over its tasks otherwise.
func (b *sceneBuild) runFrame(ctx context.Context, eng *engine.Engine) error {
	if b.paths != nil {
		return eng.ExecutePaths(ctx, b.index, b.paths)
	}
	list := b.tasks
	if list == nil {
		list = []engine.Task{}
	}
	return eng.Execute(ctx, b.index, list)
}

// lastPresent returns the most recent present of the first present task.
func (b *sceneBuild) lastPresent() (tasks.PresentRecord, bool) {
	if len(b.presents) == 0 {
		return tasks.PresentRecord{}, false
	}
	records := b.presents[0].Presents()
	if len(records) == 0 {
		return tasks.PresentRecord{}, false
	}
	return records[len(records)-1], true
}

// Close releases task runtimes.
func (b *sceneBuild) Close(ctx context.Context) error {
	return b.factory.Close(ctx)
}

// newEngine creates an engine reporting through logger and observers. The
// pipeline viewport, if any, is seeded on the blackboard.
func newEngine(p *config.Pipeline, logger zerolog.Logger, tracer engine.Option, observers ...engine.Observer) *engine.Engine {
	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithObserver(engine.Observers(observers)),
	}
	if tracer != nil {
		opts = append(opts, tracer)
	}
	eng := engine.New(opts...)
	if len(p.Viewport) == 4 {
		eng.SetContextData(engine.TokenViewport, engine.NewValue([4]int{
			p.Viewport[0], p.Viewport[1], p.Viewport[2], p.Viewport[3],
		}))
	}
	return eng
}
