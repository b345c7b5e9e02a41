package scene

import (
	"context"
	"encoding/binary"
	"math"
	"sync"

	"github.com/openfroyo/hydra/pkg/delegate"
	"github.com/openfroyo/hydra/pkg/engine"
)

// Mesh is an rprim holding a flat list of point coordinates. On sync it
// requests a "<path>/points" buffer with the points encoded as little-endian
// float32 values.
type Mesh struct {
	path engine.Path

	mu     sync.Mutex
	points []float32
	syncs  int
}

// NewMesh creates a mesh rprim.
func NewMesh(path engine.Path, points []float32) *Mesh {
	return &Mesh{path: path, points: points}
}

// PointsBuffer names the points buffer of the rprim at path.
func PointsBuffer(path engine.Path) string {
	return path.String() + "/points"
}

// BufferName returns the name of the mesh's points buffer.
func (m *Mesh) BufferName() string {
	return PointsBuffer(m.path)
}

// SetPoints replaces the points. The caller marks the mesh dirty with
// engine.DirtyPrimvar on the index tracker.
func (m *Mesh) SetPoints(points []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = points
}

// Syncs returns how many times the mesh did sync work.
func (m *Mesh) Syncs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncs
}

// Sync implements Rprim.
func (m *Mesh) Sync(_ context.Context, requester delegate.Requester, dirty engine.DirtyBits) error {
	if !dirty.Has(engine.DirtyPrimvar | engine.DirtyParams) {
		return nil
	}

	m.mu.Lock()
	points := append([]float32(nil), m.points...)
	m.syncs++
	m.mu.Unlock()

	requester.RequestBuffer(m.BufferName(), len(points)*4, func(context.Context) ([]byte, error) {
		out := make([]byte, len(points)*4)
		for i, p := range points {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(p))
		}
		return out, nil
	})
	return nil
}

var _ Rprim = (*Mesh)(nil)
