package stores

import (
	"context"
	"errors"
	"time"
)

// ErrFrameNotFound is returned when no frame has the requested ID.
var ErrFrameNotFound = errors.New("frame not found")

// FrameRecord is one journaled frame
type FrameRecord struct {
	ID          string        `json:"id"`
	Sequence    uint64        `json:"sequence"`
	Pipeline    string        `json:"pipeline"`
	TaskCount   int           `json:"task_count"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Phases      []PhaseRecord `json:"phases"`

	// Commit statistics of the frame's CommitResources call.
	SceneStateVersion uint64 `json:"scene_state_version"`
	BuffersCommitted  int    `json:"buffers_committed"`
	BuffersFailed     int    `json:"buffers_failed"`
	CommitBytes       int    `json:"commit_bytes"`
}

// Duration returns the wall time of the frame
func (r *FrameRecord) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// PhaseRecord is the time a frame spent moving into one phase
type PhaseRecord struct {
	Phase    string        `json:"phase"`
	Duration time.Duration `json:"duration"`
}

// UsageErrorRecord is a journaled usage error
type UsageErrorRecord struct {
	ID        int64     `json:"id"`
	FrameID   string    `json:"frame_id,omitempty"` // empty when no frame ran
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Store defines the interface of the frame journal
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Frame operations
	SaveFrame(ctx context.Context, frame *FrameRecord) error
	GetFrame(ctx context.Context, id string) (*FrameRecord, error)
	ListFrames(ctx context.Context, limit int) ([]*FrameRecord, error)

	// Usage error operations
	SaveUsageError(ctx context.Context, frameID, code, message string) error
	UsageErrors(ctx context.Context, frameID string) ([]*UsageErrorRecord, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
