// Package delegate provides a render delegate that commits buffer resources
// held in memory.
//
// Prims and tasks queue buffer requests on a ResourceRegistry while a frame
// is synced and prepared. The engine's commit phase calls
// MemoryDelegate.CommitResources once, which resolves every pending request
// on a bounded worker pool and publishes the results as versioned buffers
// visible to the execute phase.
package delegate
