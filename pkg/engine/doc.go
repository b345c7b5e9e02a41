// Package engine provides the phased execution engine of the hydra render pipeline.
//
// # Overview
//
// Every frame a client hands the engine a scene index and an ordered list of
// render tasks. The engine drives the tasks through a fixed sequence of
// phases, each one a barrier that all tasks clear before the next starts:
//
//  1. Seed - Replace the "drivers" blackboard entry with the scene index drivers
//  2. Sync - Data discovery through SceneIndex.SyncAll (change tracked)
//  3. Prepare - Task.Prepare for every task, in list order (every frame)
//  4. Commit - RenderDelegate.CommitResources, once per frame
//  5. Execute - Task.Execute for every task, in list order
//
// The engine sequences calls and ferries shared state between them. It does
// not run tasks in parallel, retry failed phases, own scene data or interpret
// what a task does.
//
// # Blackboard
//
// TaskContext is the shared key/value store passed explicitly through every
// phase call. Keys are interned Tokens and values are dynamically typed:
//
//	tc.Set(engine.TokenViewport, engine.NewValue(viewport))
//	vp, ok, err := engine.GetAs[Viewport](tc, engine.TokenViewport)
//
// An absent key is reported through ok, never as an error. Asking for the
// wrong type returns a usage error with code TYPE_MISMATCH.
//
// Task order is how tasks talk to each other: a task can read in Prepare what
// an earlier task published in Prepare of the same frame.
//
// # Collaborators
//
// The engine consumes three narrow interfaces:
//
//   - SceneIndex: SyncAll, RenderDelegate, Task lookup, Drivers, ChangeTracker
//   - RenderDelegate: CommitResources
//   - Task: Sync (called by the scene index), Prepare, Execute
//
// The scene index and render delegate are borrowed for one Execute call.
// Tasks are shared handles and may be referenced by other owners.
//
// # Error Handling
//
// Malformed calls are usage errors (class "usage"). A nil scene index or task
// list aborts the call before any phase runs. Empty or unresolvable entries
// passed to ExecutePaths are reported and skipped. Every usage error goes to
// the Diagnostics channel and the Observer, and is returned to the caller.
//
// Failures inside collaborators are not intercepted: the engine has no
// recovery, retry or status inspection, and panics propagate unchanged.
//
// # Example Usage
//
//	eng := engine.New(engine.WithLogger(logger))
//	eng.SetContextData(engine.TokenViewport, engine.NewValue(vp))
//
//	if err := eng.Execute(ctx, index, []engine.Task{setup, render, present}); err != nil {
//	    // usage error, nothing ran
//	}
//
//	report, _ := eng.LastFrame()
//	fmt.Println(report.PhaseDuration(engine.PhaseCommitted))
//
// # Thread Safety
//
// An Engine and its TaskContext are single-threaded. Any parallelism inside
// SyncAll or CommitResources is invisible to the engine: each is one
// blocking call.
package engine
