package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/openfroyo/hydra/pkg/delegate"
	"github.com/openfroyo/hydra/pkg/engine"
)

// EngineObserver reports engine frame notifications as metrics, events and
// log lines. It implements engine.Observer; CommitHook can be registered on
// a delegate to count resource commits.
type EngineObserver struct {
	pipeline string
	logger   *Logger
	metrics  *Metrics
	events   *EventPublisher

	mu    sync.Mutex
	frame engine.FrameInfo
}

var _ engine.Observer = (*EngineObserver)(nil)

// NewEngineObserver creates an observer for the named pipeline. Nil
// components are skipped.
func NewEngineObserver(pipeline string, logger *Logger, metrics *Metrics, events *EventPublisher) *EngineObserver {
	if logger == nil {
		logger = FromContext(context.Background())
	}
	if metrics == nil {
		metrics = &Metrics{}
	}
	if events == nil {
		events = &EventPublisher{}
	}
	return &EngineObserver{
		pipeline: pipeline,
		logger:   logger.Component("engine").Pipeline(pipeline),
		metrics:  metrics,
		events:   events,
	}
}

// FrameStarted implements engine.Observer.
func (o *EngineObserver) FrameStarted(_ context.Context, frame engine.FrameInfo) {
	o.mu.Lock()
	o.frame = frame
	o.mu.Unlock()

	o.metrics.RecordFrameStarted(o.pipeline, frame.TaskCount)
	if err := o.events.PublishFrameStarted(o.pipeline, frame.ID, frame.Sequence, frame.TaskCount); err != nil {
		o.logger.WithError(err).Warn("frame event dropped")
	}
	o.logger.Frame(frame).Debugf("frame started with %d tasks", frame.TaskCount)
}

// PhaseStarted implements engine.Observer.
func (o *EngineObserver) PhaseStarted(context.Context, engine.FrameInfo, engine.Phase) {}

// PhaseCompleted implements engine.Observer.
func (o *EngineObserver) PhaseCompleted(_ context.Context, frame engine.FrameInfo, phase engine.Phase, elapsed time.Duration) {
	o.metrics.RecordPhase(o.pipeline, phase.Step(), elapsed)
	o.logger.Frame(frame).Phase(phase).With("elapsed", elapsed).Debug("phase completed")
}

// FrameCompleted implements engine.Observer.
func (o *EngineObserver) FrameCompleted(_ context.Context, report engine.FrameReport) {
	o.mu.Lock()
	o.frame = engine.FrameInfo{}
	o.mu.Unlock()

	d := report.Duration()
	o.metrics.RecordFrameCompleted(o.pipeline, d)
	if err := o.events.PublishFrameCompleted(o.pipeline, report.ID, report.Sequence, d); err != nil {
		o.logger.WithError(err).Warn("frame event dropped")
	}
	o.logger.Frame(report.FrameInfo).With("duration", d).Debug("frame completed")
}

// UsageError implements engine.Observer.
func (o *EngineObserver) UsageError(_ context.Context, err *engine.EngineError) {
	frameID := err.Frame
	if frameID == "" {
		o.mu.Lock()
		frameID = o.frame.ID
		o.mu.Unlock()
	}

	o.metrics.RecordUsageError(err.Code)
	if pubErr := o.events.PublishUsageError(o.pipeline, frameID, err.Code, err.Path.String(), err.Message); pubErr != nil {
		o.logger.WithError(pubErr).Warn("usage error event dropped")
	}
}

// CommitHook records a delegate commit. Its signature matches
// delegate.CommitHook.
func (o *EngineObserver) CommitHook(_ context.Context, rec delegate.CommitRecord) {
	o.metrics.RecordCommit(rec.Stats.Committed, rec.Stats.Failed, rec.Stats.Bytes, rec.Collected)
	if rec.Err != nil {
		o.logger.WithError(rec.Err).
			With("commit", rec.Sequence).
			Warnf("%d of %d buffer sources failed", rec.Stats.Failed, rec.Stats.Requested)
	}
}

// PolicyViolation records one policy violation found while admitting the
// pipeline.
func (o *EngineObserver) PolicyViolation(taskPath, policyName, severity, reason string) {
	o.metrics.RecordPolicyViolation(policyName, severity)
	if err := o.events.PublishPolicyViolation(o.pipeline, taskPath, policyName, severity, reason); err != nil {
		o.logger.WithError(err).Warn("policy event dropped")
	}
}
