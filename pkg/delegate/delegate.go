package delegate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/hydra/pkg/engine"
)

// CommitRecord describes one CommitResources call.
type CommitRecord struct {
	// Sequence counts commits, starting at 1.
	Sequence uint64 `json:"sequence"`

	// SceneStateVersion is the tracker version seen by the commit.
	SceneStateVersion uint64 `json:"scene_state_version"`

	// Stats are the registry commit statistics.
	Stats CommitStats `json:"stats"`

	// Err is the joined source error, if any source failed.
	Err error `json:"-"`

	// Collected is the number of buffers dropped by garbage collection
	// after this commit.
	Collected int `json:"collected"`

	At time.Time `json:"at"`
}

// CommitHook is notified after every commit.
type CommitHook func(ctx context.Context, rec CommitRecord)

// MemoryDelegate is a render delegate that keeps committed buffers in
// memory. It implements engine.RenderDelegate and Requester.
type MemoryDelegate struct {
	registry   *ResourceRegistry
	logger     zerolog.Logger
	hooks      []CommitHook
	gcInterval uint64

	mu      sync.Mutex
	commits uint64
	last    *CommitRecord
}

// Option configures a MemoryDelegate.
type Option func(*MemoryDelegate)

// WithLogger sets the delegate logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *MemoryDelegate) {
		d.logger = logger
	}
}

// WithRegistry replaces the default registry.
func WithRegistry(r *ResourceRegistry) Option {
	return func(d *MemoryDelegate) {
		d.registry = r
	}
}

// WithCommitHook adds a hook called after every commit.
func WithCommitHook(hook CommitHook) Option {
	return func(d *MemoryDelegate) {
		d.hooks = append(d.hooks, hook)
	}
}

// WithGCInterval garbage collects the registry every n commits. Zero
// disables collection.
func WithGCInterval(n uint64) Option {
	return func(d *MemoryDelegate) {
		d.gcInterval = n
	}
}

// NewMemoryDelegate creates a delegate.
func NewMemoryDelegate(opts ...Option) *MemoryDelegate {
	d := &MemoryDelegate{
		logger: log.With().Str("component", "delegate").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.registry == nil {
		d.registry = NewResourceRegistry(0)
	}
	return d
}

// Registry returns the delegate's resource registry.
func (d *MemoryDelegate) Registry() *ResourceRegistry {
	return d.registry
}

// RequestBuffer queues a request on the registry.
func (d *MemoryDelegate) RequestBuffer(name string, size int, source SourceFunc) {
	d.registry.RequestBuffer(name, size, source)
}

// CommitResources implements engine.RenderDelegate. Source failures are
// logged and recorded; they never stop the frame.
func (d *MemoryDelegate) CommitResources(ctx context.Context, tracker engine.ChangeTracker) {
	stats, err := d.registry.Commit(ctx)

	d.mu.Lock()
	d.commits++
	rec := CommitRecord{
		Sequence: d.commits,
		Stats:    stats,
		Err:      err,
		At:       time.Now(),
	}
	if tracker != nil {
		rec.SceneStateVersion = tracker.SceneStateVersion()
	}
	if d.gcInterval > 0 && d.commits%d.gcInterval == 0 {
		rec.Collected = d.registry.GarbageCollect()
	}
	d.last = &rec
	d.mu.Unlock()

	if err != nil {
		d.logger.Error().Err(err).
			Int("failed", stats.Failed).
			Msg("Resource commit incomplete")
	}
	d.logger.Debug().
		Uint64("commit", rec.Sequence).
		Uint64("scene_state_version", rec.SceneStateVersion).
		Int("committed", stats.Committed).
		Int("bytes", stats.Bytes).
		Int("collected", rec.Collected).
		Dur("duration", stats.Duration).
		Msg("Resources committed")

	for _, hook := range d.hooks {
		hook(ctx, rec)
	}
}

// Commits returns the number of CommitResources calls.
func (d *MemoryDelegate) Commits() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.commits
}

// LastCommit returns the record of the most recent commit.
func (d *MemoryDelegate) LastCommit() (CommitRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return CommitRecord{}, false
	}
	return *d.last, true
}

var (
	_ engine.RenderDelegate = (*MemoryDelegate)(nil)
	_ Requester             = (*MemoryDelegate)(nil)
	_ Requester             = (*ResourceRegistry)(nil)
)
