package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// FrameInfo identifies a frame in flight.
type FrameInfo struct {
	// ID is a unique frame identifier.
	ID string `json:"id"`

	// Sequence counts the frames run by the engine, starting at 1.
	Sequence uint64 `json:"sequence"`

	// TaskCount is the number of tasks in the frame's task list.
	TaskCount int `json:"task_count"`

	// StartedAt is when the frame left the idle phase.
	StartedAt time.Time `json:"started_at"`
}

// PhaseTiming is the time spent moving into one phase.
type PhaseTiming struct {
	Phase    Phase         `json:"phase"`
	Duration time.Duration `json:"duration"`
}

// FrameReport summarizes a completed frame.
type FrameReport struct {
	FrameInfo

	// CompletedAt is when the execute phase finished.
	CompletedAt time.Time `json:"completed_at"`

	// Phases holds the timing of every phase in protocol order.
	Phases []PhaseTiming `json:"phases"`
}

// Duration returns the wall time of the whole frame.
func (r FrameReport) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// PhaseDuration returns the time spent moving into phase p.
func (r FrameReport) PhaseDuration(p Phase) time.Duration {
	for _, t := range r.Phases {
		if t.Phase == p {
			return t.Duration
		}
	}
	return 0
}

// Observer receives frame lifecycle notifications. Calls happen on the
// goroutine running Execute, in protocol order.
type Observer interface {
	FrameStarted(ctx context.Context, frame FrameInfo)
	PhaseStarted(ctx context.Context, frame FrameInfo, phase Phase)
	PhaseCompleted(ctx context.Context, frame FrameInfo, phase Phase, elapsed time.Duration)
	FrameCompleted(ctx context.Context, report FrameReport)
	UsageError(ctx context.Context, err *EngineError)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) FrameStarted(context.Context, FrameInfo)                         {}
func (NopObserver) PhaseStarted(context.Context, FrameInfo, Phase)                  {}
func (NopObserver) PhaseCompleted(context.Context, FrameInfo, Phase, time.Duration) {}
func (NopObserver) FrameCompleted(context.Context, FrameReport)                     {}
func (NopObserver) UsageError(context.Context, *EngineError)                        {}

// Observers fans notifications out to several observers in order.
type Observers []Observer

func (o Observers) FrameStarted(ctx context.Context, frame FrameInfo) {
	for _, obs := range o {
		obs.FrameStarted(ctx, frame)
	}
}

func (o Observers) PhaseStarted(ctx context.Context, frame FrameInfo, phase Phase) {
	for _, obs := range o {
		obs.PhaseStarted(ctx, frame, phase)
	}
}

func (o Observers) PhaseCompleted(ctx context.Context, frame FrameInfo, phase Phase, elapsed time.Duration) {
	for _, obs := range o {
		obs.PhaseCompleted(ctx, frame, phase, elapsed)
	}
}

func (o Observers) FrameCompleted(ctx context.Context, report FrameReport) {
	for _, obs := range o {
		obs.FrameCompleted(ctx, report)
	}
}

func (o Observers) UsageError(ctx context.Context, err *EngineError) {
	for _, obs := range o {
		obs.UsageError(ctx, err)
	}
}

// Diagnostics is the channel usage errors are reported on.
type Diagnostics interface {
	CodingError(ctx context.Context, err *EngineError)
}

// LogDiagnostics reports usage errors as zerolog error events.
type LogDiagnostics struct {
	Logger zerolog.Logger
}

// CodingError implements Diagnostics.
func (d LogDiagnostics) CodingError(_ context.Context, err *EngineError) {
	ev := d.Logger.Error().
		Str("class", string(err.Class)).
		Str("code", err.Code)
	if !err.Path.IsEmpty() {
		ev = ev.Str("path", err.Path.String())
	}
	ev.Msg(err.Message)
}
