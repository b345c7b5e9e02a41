package stores

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/hydra/pkg/delegate"
	"github.com/openfroyo/hydra/pkg/engine"
)

// Journal writes engine frames to a Store. It is an engine.Observer; pass
// CommitHook to the render delegate to journal commit statistics with each
// frame.
//
// Observers cannot fail a frame, so write errors are logged and the latest
// one is kept for Err.
type Journal struct {
	store    Store
	pipeline string
	logger   zerolog.Logger

	mu     sync.Mutex
	frame  string
	commit *delegate.CommitRecord
	saved  int
	err    error
}

// NewJournal creates a journal writing frames of the named pipeline.
func NewJournal(store Store, pipeline string, logger zerolog.Logger) *Journal {
	return &Journal{
		store:    store,
		pipeline: pipeline,
		logger:   logger.With().Str("component", "journal").Logger(),
	}
}

// FrameStarted implements engine.Observer.
func (j *Journal) FrameStarted(_ context.Context, frame engine.FrameInfo) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.frame = frame.ID
	j.commit = nil
}

// PhaseStarted implements engine.Observer.
func (j *Journal) PhaseStarted(context.Context, engine.FrameInfo, engine.Phase) {}

// PhaseCompleted implements engine.Observer.
func (j *Journal) PhaseCompleted(context.Context, engine.FrameInfo, engine.Phase, time.Duration) {}

// FrameCompleted implements engine.Observer.
func (j *Journal) FrameCompleted(ctx context.Context, report engine.FrameReport) {
	rec := &FrameRecord{
		ID:          report.ID,
		Sequence:    report.Sequence,
		Pipeline:    j.pipeline,
		TaskCount:   report.TaskCount,
		StartedAt:   report.StartedAt,
		CompletedAt: report.CompletedAt,
		Phases:      make([]PhaseRecord, 0, len(report.Phases)),
	}
	for _, p := range report.Phases {
		rec.Phases = append(rec.Phases, PhaseRecord{Phase: p.Phase.Step(), Duration: p.Duration})
	}

	j.mu.Lock()
	if c := j.commit; c != nil {
		rec.SceneStateVersion = c.SceneStateVersion
		rec.BuffersCommitted = c.Stats.Committed
		rec.BuffersFailed = c.Stats.Failed
		rec.CommitBytes = c.Stats.Bytes
	}
	j.frame = ""
	j.commit = nil
	j.mu.Unlock()

	if err := j.store.SaveFrame(ctx, rec); err != nil {
		j.fail(err, "Failed to journal frame")
		return
	}

	j.mu.Lock()
	j.saved++
	j.mu.Unlock()
}

// UsageError implements engine.Observer. Errors are linked to the frame
// they name, or else to the frame in flight. Errors that kept a frame from
// starting are stored unlinked.
func (j *Journal) UsageError(ctx context.Context, err *engine.EngineError) {
	frame := err.Frame
	if frame == "" {
		j.mu.Lock()
		frame = j.frame
		j.mu.Unlock()
	}

	if saveErr := j.store.SaveUsageError(ctx, frame, err.Code, err.Error()); saveErr != nil {
		j.fail(saveErr, "Failed to journal usage error")
	}
}

// CommitHook records the commit of the frame in flight. It has the
// delegate.CommitHook signature.
func (j *Journal) CommitHook(_ context.Context, rec delegate.CommitRecord) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.commit = &rec
}

// Saved returns the number of frames written.
func (j *Journal) Saved() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.saved
}

// Err returns the most recent write error.
func (j *Journal) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *Journal) fail(err error, msg string) {
	j.mu.Lock()
	j.err = err
	j.mu.Unlock()
	j.logger.Error().Err(err).Msg(msg)
}

var _ engine.Observer = (*Journal)(nil)
