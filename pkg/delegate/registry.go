package delegate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// SourceFunc produces the contents of a buffer at commit time.
type SourceFunc func(ctx context.Context) ([]byte, error)

// Requester queues resource requests for the next commit. Prims request
// during Sync and tasks during Prepare.
type Requester interface {
	RequestBuffer(name string, size int, source SourceFunc)
}

// Buffer is a committed resource.
type Buffer struct {
	// Name identifies the buffer in the registry.
	Name string

	// Size is the requested size in bytes.
	Size int

	// Data holds the committed contents.
	Data []byte

	// Version increases on every commit that rewrites the buffer.
	Version uint64

	// CommittedAt is when the buffer was last written.
	CommittedAt time.Time

	lastUsed uint64
}

// CommitStats summarizes one commit.
type CommitStats struct {
	Requested int           `json:"requested"`
	Committed int           `json:"committed"`
	Failed    int           `json:"failed"`
	Bytes     int           `json:"bytes"`
	Duration  time.Duration `json:"duration"`
}

type request struct {
	name   string
	size   int
	source SourceFunc
}

// ResourceRegistry accumulates buffer requests and resolves them into
// committed buffers. Requesting and committing may happen from several
// goroutines.
type ResourceRegistry struct {
	maxParallel int

	mu         sync.Mutex
	pending    map[string]request
	buffers    map[string]*Buffer
	generation uint64
}

// NewResourceRegistry creates an empty registry. maxParallel bounds the
// number of sources resolved at once; values <= 0 select 4.
func NewResourceRegistry(maxParallel int) *ResourceRegistry {
	if maxParallel <= 0 {
		maxParallel = 4
	}
	return &ResourceRegistry{
		maxParallel: maxParallel,
		pending:     make(map[string]request),
		buffers:     make(map[string]*Buffer),
	}
}

// RequestBuffer queues a buffer for the next commit. A later request for the
// same name replaces an earlier one. A nil source commits size zero bytes;
// a negative size fails that request at commit time.
func (r *ResourceRegistry) RequestBuffer(name string, size int, source SourceFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[name] = request{name: name, size: size, source: source}
}

// Pending returns the names of queued requests, sorted.
func (r *ResourceRegistry) Pending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.pending))
	for name := range r.pending {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Buffer returns a committed buffer and marks it as in use.
func (r *ResourceRegistry) Buffer(name string) (*Buffer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf, ok := r.buffers[name]
	if ok {
		buf.lastUsed = r.generation
	}
	return buf, ok
}

// Len returns the number of committed buffers.
func (r *ResourceRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffers)
}

type resolved struct {
	req  request
	data []byte
	err  error
}

// Commit resolves every pending request into a committed buffer. Sources run
// on a bounded worker pool. Failed requests leave the previous buffer in
// place; their errors are joined into the returned error.
func (r *ResourceRegistry) Commit(ctx context.Context) (CommitStats, error) {
	start := time.Now()

	r.mu.Lock()
	reqs := make([]request, 0, len(r.pending))
	for _, req := range r.pending {
		reqs = append(reqs, req)
	}
	r.pending = make(map[string]request)
	r.mu.Unlock()

	sort.Slice(reqs, func(i, j int) bool { return reqs[i].name < reqs[j].name })
	stats := CommitStats{Requested: len(reqs)}
	if len(reqs) == 0 {
		stats.Duration = time.Since(start)
		return stats, nil
	}

	workerCount := r.maxParallel
	if len(reqs) < workerCount {
		workerCount = len(reqs)
	}

	workQueue := make(chan int, len(reqs))
	for i := range reqs {
		workQueue <- i
	}
	close(workQueue)

	results := make([]resolved, len(reqs))
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range workQueue {
				req := reqs[idx]
				data, err := resolve(ctx, req)
				results[idx] = resolved{req: req, data: data, err: err}
			}
		}()
	}
	wg.Wait()

	var errs []error
	now := time.Now()

	r.mu.Lock()
	for _, res := range results {
		if res.err != nil {
			stats.Failed++
			errs = append(errs, res.err)
			continue
		}
		buf, ok := r.buffers[res.req.name]
		if !ok {
			buf = &Buffer{Name: res.req.name}
			r.buffers[res.req.name] = buf
		}
		buf.Size = res.req.size
		buf.Data = res.data
		buf.Version++
		buf.CommittedAt = now
		buf.lastUsed = r.generation

		stats.Committed++
		stats.Bytes += len(res.data)
	}
	r.mu.Unlock()

	stats.Duration = time.Since(start)
	return stats, errors.Join(errs...)
}

func resolve(ctx context.Context, req request) ([]byte, error) {
	if req.size < 0 {
		return nil, fmt.Errorf("buffer %s: negative size %d", req.name, req.size)
	}
	if req.source == nil {
		return make([]byte, req.size), nil
	}
	data, err := req.source(ctx)
	if err != nil {
		return nil, fmt.Errorf("buffer %s: %w", req.name, err)
	}
	if req.size > 0 && len(data) != req.size {
		return nil, fmt.Errorf("buffer %s: source returned %d bytes, want %d", req.name, len(data), req.size)
	}
	return data, nil
}

// GarbageCollect drops buffers that were neither committed nor looked up
// since the previous collection and returns how many were dropped.
func (r *ResourceRegistry) GarbageCollect() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for name, buf := range r.buffers {
		if buf.lastUsed < r.generation {
			delete(r.buffers, name)
			dropped++
		}
	}
	r.generation++
	return dropped
}
