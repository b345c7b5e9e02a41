package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/openfroyo/hydra/pkg/engine"

// Engine drives render tasks through the per-frame phase protocol and owns
// the blackboard they share. The blackboard outlives individual frames:
// entries written in one frame are visible in the next until removed.
//
// An Engine is not safe for concurrent use. Calling Execute or ExecutePaths
// from inside a task of the same engine panics before the nested call
// touches the blackboard.
type Engine struct {
	taskCtx     *TaskContext
	logger      zerolog.Logger
	tracer      trace.Tracer
	observer    Observer
	diagnostics Diagnostics
	banners     bool

	phases    *phaseMachine
	sequence  uint64
	lastFrame *FrameReport
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTracer sets the tracer used for frame and phase spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithObserver registers an observer for frame lifecycle notifications.
func WithObserver(observer Observer) Option {
	return func(e *Engine) {
		e.observer = observer
	}
}

// WithDiagnostics sets the channel usage errors are reported on. The default
// writes them to the engine logger.
func WithDiagnostics(d Diagnostics) Option {
	return func(e *Engine) {
		e.diagnostics = d
	}
}

// WithPhaseBanners logs a debug banner at the start of every phase.
func WithPhaseBanners(enabled bool) Option {
	return func(e *Engine) {
		e.banners = enabled
	}
}

// New creates an engine with an empty blackboard.
func New(opts ...Option) *Engine {
	e := &Engine{
		taskCtx:  NewTaskContext(),
		logger:   log.With().Str("component", "engine").Logger(),
		tracer:   otel.Tracer(tracerName),
		observer: NopObserver{},
		phases:   newPhaseMachine(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.diagnostics == nil {
		e.diagnostics = LogDiagnostics{Logger: e.logger}
	}
	return e
}

// SetContextData upserts a blackboard entry.
func (e *Engine) SetContextData(key Token, value Value) {
	e.taskCtx.Set(key, value)
}

// GetContextData returns a blackboard entry and whether it was present.
func (e *Engine) GetContextData(key Token) (Value, bool) {
	return e.taskCtx.Get(key)
}

// RemoveContextData deletes a blackboard entry if present.
func (e *Engine) RemoveContextData(key Token) {
	e.taskCtx.Remove(key)
}

// ClearContextData removes every blackboard entry.
func (e *Engine) ClearContextData() {
	e.taskCtx.Clear()
}

// TaskContext returns the engine's blackboard.
func (e *Engine) TaskContext() *TaskContext {
	return e.taskCtx
}

// Phase returns the phase of the frame in flight, PhaseIdle between frames.
func (e *Engine) Phase() Phase {
	return e.phases.current
}

// LastFrame returns the report of the most recent completed frame.
func (e *Engine) LastFrame() (FrameReport, bool) {
	if e.lastFrame == nil {
		return FrameReport{}, false
	}
	return *e.lastFrame, true
}

// Execute runs one frame over tasks:
//
//  1. seed: the drivers entry is replaced with index.Drivers()
//  2. sync: index.SyncAll runs data discovery
//  3. prepare: every task's Prepare, in list order
//  4. commit: the render delegate's CommitResources, exactly once
//  5. execute: every task's Execute, in list order
//
// Each step completes for all tasks before the next begins. A nil index, a
// nil task slice or a nil task entry is a usage error: it is reported, the
// frame is not started and nothing is mutated. An empty non-nil slice runs
// every step, with the task loops doing nothing.
//
// Execute does not inspect what tasks, the scene index or the render delegate
// do; a panic in any of them propagates to the caller unchanged. tasks is
// read once per phase and never modified.
func (e *Engine) Execute(ctx context.Context, index SceneIndex, tasks []Task) error {
	e.refuseReentry("Execute")
	return e.execute(ctx, index, tasks, uuid.NewString())
}

// ExecutePaths resolves paths to tasks through index and runs one frame over
// the resolved tasks. Empty and unresolvable paths are reported as usage
// errors and skipped; the remaining tasks keep their relative order. The
// frame runs even when no path resolves.
//
// The frame's ID is assigned before resolution, so the errors reported for
// its paths carry it in EngineError.Frame.
func (e *Engine) ExecutePaths(ctx context.Context, index SceneIndex, paths []Path) error {
	e.refuseReentry("ExecutePaths")
	if index == nil {
		return e.usageError(ctx, NewUsageError("nil scene index passed to Engine.ExecutePaths", nil).
			WithCode(ErrCodeNilArgument))
	}

	frameID := uuid.NewString()
	tasks := make([]Task, 0, len(paths))
	for _, path := range paths {
		if path.IsEmpty() {
			_ = e.usageError(ctx, NewUsageError("empty task path given to Engine.ExecutePaths", nil).
				WithCode(ErrCodeEmptyPath).
				WithFrame(frameID))
			continue
		}
		task, ok := index.Task(path)
		if !ok || task == nil {
			_ = e.usageError(ctx, NewUsageError(fmt.Sprintf("no task at %s in render index", path), nil).
				WithCode(ErrCodeTaskNotFound).
				WithPath(path).
				WithFrame(frameID))
			continue
		}
		tasks = append(tasks, task)
	}

	return e.execute(ctx, index, tasks, frameID)
}

// refuseReentry panics when a frame is already in flight, before anything
// is touched. This only happens when a collaborator calls back into the
// engine running it.
func (e *Engine) refuseReentry(method string) {
	if e.phases.current != PhaseIdle {
		panic(NewInternalError(
			fmt.Sprintf("Engine.%s called during the %s phase of another frame", method, e.phases.current), nil,
		).WithCode(ErrCodeReentrantExecute).WithPhase(e.phases.current))
	}
}

func (e *Engine) execute(ctx context.Context, index SceneIndex, tasks []Task, frameID string) error {
	if index == nil || tasks == nil {
		return e.usageError(ctx, NewUsageError("nil scene index or task list passed to Engine.Execute", nil).
			WithCode(ErrCodeNilArgument))
	}
	for i, t := range tasks {
		if t == nil {
			return e.usageError(ctx, NewUsageError(fmt.Sprintf("nil task at position %d passed to Engine.Execute", i), nil).
				WithCode(ErrCodeNilArgument).
				WithDetail("position", i))
		}
	}

	e.runFrame(ctx, index, tasks, frameID)
	return nil
}

func (e *Engine) runFrame(ctx context.Context, index SceneIndex, tasks []Task, frameID string) {
	e.sequence++
	frame := FrameInfo{
		ID:        frameID,
		Sequence:  e.sequence,
		TaskCount: len(tasks),
		StartedAt: time.Now(),
	}

	ctx, span := e.tracer.Start(ctx, "engine.Execute", trace.WithAttributes(
		attribute.String("frame.id", frame.ID),
		attribute.Int64("frame.sequence", int64(frame.Sequence)),
		attribute.Int("frame.task_count", frame.TaskCount),
	))
	defer span.End()

	// A panicking collaborator must not leave the next frame stuck mid-protocol.
	defer func() {
		e.phases.current = PhaseIdle
	}()

	logger := e.logger.With().Str("frame_id", frame.ID).Logger()
	e.observer.FrameStarted(ctx, frame)

	report := FrameReport{
		FrameInfo: frame,
		Phases:    make([]PhaseTiming, 0, len(framePhases)-1),
	}

	e.runPhase(ctx, logger, &report, PhaseSeeded, func(context.Context) {
		e.taskCtx.Set(TokenDrivers, NewValue(index.Drivers()))
	})

	e.runPhase(ctx, logger, &report, PhaseSynced, func(ctx context.Context) {
		index.SyncAll(ctx, tasks, e.taskCtx)
	})

	e.runPhase(ctx, logger, &report, PhasePrepared, func(ctx context.Context) {
		for _, task := range tasks {
			task.Prepare(ctx, e.taskCtx, index)
		}
	})

	e.runPhase(ctx, logger, &report, PhaseCommitted, func(ctx context.Context) {
		index.RenderDelegate().CommitResources(ctx, index.ChangeTracker())
	})

	e.runPhase(ctx, logger, &report, PhaseExecuted, func(ctx context.Context) {
		for _, task := range tasks {
			task.Execute(ctx, e.taskCtx)
		}
	})

	e.phases.advance(PhaseIdle)
	report.CompletedAt = time.Now()
	e.lastFrame = &report

	logger.Debug().
		Int("tasks", frame.TaskCount).
		Dur("duration", report.Duration()).
		Msg("Frame completed")

	e.observer.FrameCompleted(ctx, report)
}

func (e *Engine) runPhase(
	ctx context.Context,
	logger zerolog.Logger,
	report *FrameReport,
	phase Phase,
	work func(context.Context),
) {
	step := phase.Step()
	if e.banners {
		logger.Debug().Str("phase", step).Msg(phaseBanners[phase])
	}

	ctx, span := e.tracer.Start(ctx, "engine."+step, trace.WithAttributes(
		attribute.String("phase", step),
	))
	defer span.End()

	e.observer.PhaseStarted(ctx, report.FrameInfo, phase)
	start := time.Now()
	work(ctx)
	elapsed := time.Since(start)

	e.phases.advance(phase)
	report.Phases = append(report.Phases, PhaseTiming{Phase: phase, Duration: elapsed})
	e.observer.PhaseCompleted(ctx, report.FrameInfo, phase, elapsed)
}

func (e *Engine) usageError(ctx context.Context, err *EngineError) error {
	if e.phases.current != PhaseIdle {
		err.WithPhase(e.phases.current)
	}
	e.diagnostics.CodingError(ctx, err)
	e.observer.UsageError(ctx, err)
	return err
}

var phaseBanners = map[Phase]string{
	PhaseSeeded:    "Engine [Seed Phase](SceneIndex.Drivers)",
	PhaseSynced:    "Engine [Data Discovery Phase](SceneIndex.SyncAll)",
	PhasePrepared:  "Engine [Prepare Phase](Task.Prepare)",
	PhaseCommitted: "Engine [Data Commit Phase](RenderDelegate.CommitResources)",
	PhaseExecuted:  "Engine [Execute Phase](Task.Execute)",
}
