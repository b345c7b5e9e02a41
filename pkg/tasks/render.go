package tasks

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/hydra/pkg/delegate"
	"github.com/openfroyo/hydra/pkg/engine"
	"github.com/openfroyo/hydra/pkg/scene"
)

// RenderPassState is published by RenderSetup for the render tasks that
// follow it in the task list.
type RenderPassState struct {
	Camera     engine.Path `json:"camera"`
	Viewport   [4]int      `json:"viewport"`
	ClearColor [4]float64  `json:"clear_color"`

	// Version increases whenever the setup parameters change.
	Version uint64 `json:"version"`
}

// DrawRecord is appended to the draw records entry by each render task
// during Execute.
type DrawRecord struct {
	Task        string      `json:"task"`
	Camera      engine.Path `json:"camera"`
	Viewport    [4]int      `json:"viewport"`
	Prims       int         `json:"prims"`
	Points      int         `json:"points"`
	DrawVersion uint64      `json:"draw_version"`
}

// RenderSetupParams configures a RenderSetup task.
type RenderSetupParams struct {
	Camera     engine.Path
	Viewport   [4]int
	ClearColor [4]float64
}

// RenderSetup publishes the render pass state each frame and resets the
// draw records. A viewport entry on the blackboard overrides the
// configured viewport.
type RenderSetup struct {
	mu      sync.Mutex
	pending RenderSetupParams
	params  RenderSetupParams
	version uint64
}

// NewRenderSetup creates a setup task. The parameters take effect on the
// first sync.
func NewRenderSetup(params RenderSetupParams) *RenderSetup {
	return &RenderSetup{pending: params}
}

// SetParams stages new parameters. They take effect when the task is next
// synced with engine.DirtyParams set.
func (t *RenderSetup) SetParams(params RenderSetupParams) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = params
}

// Sync implements engine.Task.
func (t *RenderSetup) Sync(_ context.Context, _ *engine.TaskContext, dirty *engine.DirtyBits) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if dirty.Has(engine.DirtyParams) {
		t.params = t.pending
		t.version++
	}
	*dirty = engine.Clean
}

// Prepare implements engine.Task.
func (t *RenderSetup) Prepare(_ context.Context, tc *engine.TaskContext, _ engine.SceneIndex) {
	t.mu.Lock()
	state := &RenderPassState{
		Camera:     t.params.Camera,
		Viewport:   t.params.Viewport,
		ClearColor: t.params.ClearColor,
		Version:    t.version,
	}
	t.mu.Unlock()

	if vp, ok := viewportOverride(tc); ok {
		state.Viewport = vp
	}

	tc.Set(engine.TokenRenderPassState, engine.NewValue(state))
	tc.Set(engine.TokenDrawRecords, engine.NewValue([]DrawRecord{}))
}

// Execute implements engine.Task.
func (t *RenderSetup) Execute(context.Context, *engine.TaskContext) {}

func viewportOverride(tc *engine.TaskContext) ([4]int, bool) {
	v, ok := tc.Get(engine.TokenViewport)
	if !ok {
		return [4]int{}, false
	}
	switch vp := v.Any().(type) {
	case [4]int:
		return vp, true
	case []int:
		if len(vp) == 4 {
			return [4]int{vp[0], vp[1], vp[2], vp[3]}, true
		}
	}
	return [4]int{}, false
}

type registryOwner interface {
	Registry() *delegate.ResourceRegistry
}

// Render draws a collection of rprims with the render pass state
// published earlier in the task list.
type Render struct {
	name   string
	logger zerolog.Logger

	mu         sync.Mutex
	pending    []engine.Path
	collection []engine.Path
	pass       *RenderPassState
	registry   *delegate.ResourceRegistry
}

// NewRender creates a render task drawing collection.
func NewRender(name string, collection []engine.Path) *Render {
	return &Render{
		name:    name,
		logger:  log.With().Str("component", "tasks").Str("task", name).Logger(),
		pending: collection,
	}
}

// WithLogger returns t with its logger replaced.
func (t *Render) WithLogger(logger zerolog.Logger) *Render {
	t.logger = logger.With().Str("task", t.name).Logger()
	return t
}

// DrawBuffer names the buffer the task requests each frame.
func (t *Render) DrawBuffer() string {
	return "draw/" + t.name
}

// SetCollection stages a new collection. It takes effect when the task is
// next synced with engine.DirtyCollection set.
func (t *Render) SetCollection(collection []engine.Path) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = collection
}

// Sync implements engine.Task.
func (t *Render) Sync(_ context.Context, _ *engine.TaskContext, dirty *engine.DirtyBits) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if dirty.Has(engine.DirtyCollection) {
		t.collection = append([]engine.Path(nil), t.pending...)
	}
	*dirty = engine.Clean
}

// Prepare implements engine.Task. It reads the render pass state and
// requests a draw buffer holding the viewport.
func (t *Render) Prepare(_ context.Context, tc *engine.TaskContext, index engine.SceneIndex) {
	pass, ok, err := engine.GetAs[*RenderPassState](tc, engine.TokenRenderPassState)
	if err != nil {
		t.logger.Error().Err(err).Msg("Unreadable render pass state")
	} else if !ok {
		t.logger.Warn().Msg("No render pass state published before render task")
	}

	t.mu.Lock()
	t.pass = pass
	t.mu.Unlock()
	if pass == nil {
		return
	}

	rd := index.RenderDelegate()
	if owner, ok := rd.(registryOwner); ok {
		t.mu.Lock()
		t.registry = owner.Registry()
		t.mu.Unlock()
	}
	if req, ok := rd.(delegate.Requester); ok {
		viewport := pass.Viewport
		req.RequestBuffer(t.DrawBuffer(), 16, func(context.Context) ([]byte, error) {
			out := make([]byte, 16)
			for i, v := range viewport {
				binary.LittleEndian.PutUint32(out[i*4:], uint32(v))
			}
			return out, nil
		})
	}
}

// Execute implements engine.Task. It appends a draw record.
func (t *Render) Execute(_ context.Context, tc *engine.TaskContext) {
	t.mu.Lock()
	pass, registry := t.pass, t.registry
	collection := t.collection
	t.mu.Unlock()

	if pass == nil {
		return
	}

	rec := DrawRecord{
		Task:     t.name,
		Camera:   pass.Camera,
		Viewport: pass.Viewport,
		Prims:    len(collection),
	}
	if registry != nil {
		if buf, ok := registry.Buffer(t.DrawBuffer()); ok {
			rec.DrawVersion = buf.Version
		}
		for _, path := range collection {
			if buf, ok := registry.Buffer(scene.PointsBuffer(path)); ok {
				rec.Points += len(buf.Data) / 12
			}
		}
	}

	records, _, err := engine.GetAs[[]DrawRecord](tc, engine.TokenDrawRecords)
	if err != nil {
		t.logger.Error().Err(err).Msg("Unreadable draw records")
		return
	}
	tc.Set(engine.TokenDrawRecords, engine.NewValue(append(records, rec)))
}

// PresentRecord describes one presented frame.
type PresentRecord struct {
	Frame  int    `json:"frame"`
	Draws  int    `json:"draws"`
	Points int    `json:"points"`
	Driver string `json:"driver"`
}

// Present hands the frame's draw records to the first driver.
type Present struct {
	logger zerolog.Logger

	mu       sync.Mutex
	presents []PresentRecord
}

// NewPresent creates a present task.
func NewPresent() *Present {
	return &Present{
		logger: log.With().Str("component", "tasks").Str("task", "present").Logger(),
	}
}

// Sync implements engine.Task.
func (t *Present) Sync(_ context.Context, _ *engine.TaskContext, dirty *engine.DirtyBits) {
	*dirty = engine.Clean
}

// Prepare implements engine.Task.
func (t *Present) Prepare(context.Context, *engine.TaskContext, engine.SceneIndex) {}

// Execute implements engine.Task.
func (t *Present) Execute(_ context.Context, tc *engine.TaskContext) {
	records, _, err := engine.GetAs[[]DrawRecord](tc, engine.TokenDrawRecords)
	if err != nil {
		t.logger.Error().Err(err).Msg("Unreadable draw records")
	}
	drivers, _, err := engine.GetAs[engine.DriverVector](tc, engine.TokenDrivers)
	if err != nil {
		t.logger.Error().Err(err).Msg("Unreadable drivers")
	}

	driver := "none"
	if names := drivers.Names(); len(names) > 0 {
		driver = names[0]
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rec := PresentRecord{Frame: len(t.presents) + 1, Draws: len(records), Driver: driver}
	for _, r := range records {
		rec.Points += r.Points
	}
	t.presents = append(t.presents, rec)

	t.logger.Debug().
		Int("frame", rec.Frame).
		Int("draws", rec.Draws).
		Int("points", rec.Points).
		Str("driver", rec.Driver).
		Msg("Frame presented")
}

// Presents returns every frame presented so far.
func (t *Present) Presents() []PresentRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]PresentRecord(nil), t.presents...)
}

var (
	_ engine.Task = (*RenderSetup)(nil)
	_ engine.Task = (*Render)(nil)
	_ engine.Task = (*Present)(nil)
)
