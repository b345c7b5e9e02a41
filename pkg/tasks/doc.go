// Package tasks provides render tasks for the hydra engine.
//
// RenderSetup publishes a RenderPassState on the blackboard during Prepare.
// Render tasks later in the list read it, request a draw buffer from the
// render delegate and append a DrawRecord during Execute. Present consumes
// the draw records. Script and Wasm run user code written in Starlark or
// compiled to WebAssembly, and Func wraps plain closures.
//
// Factory builds any of these from a config.TaskConfig.
package tasks
