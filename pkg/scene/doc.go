// Package scene provides RenderIndex, a scene index that owns tasks, rprims,
// drivers and a change tracker.
//
// The engine's sync phase calls RenderIndex.SyncAll. Tasks in the frame's
// list are synced one after another with their tracked dirty bits; dirty
// rprims are then synced on a bounded pool of goroutines and queue buffer
// requests on the render delegate. Prims whose dirty bits are clean do no
// work.
package scene
