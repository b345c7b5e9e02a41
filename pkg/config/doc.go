// Package config loads pipeline descriptions for hydra.
//
// # Overview
//
// A pipeline names the drivers, renderable prims and tasks of a scene and
// how many frames to run over them. The same structure can be written in
// YAML, CUE or Starlark; every format decodes into Pipeline and passes the
// same validation.
//
// # Components
//
// Loader: Reads a pipeline file, dispatching on its extension, and
// validates the result.
//
// CUEParser: Parses CUE pipelines. The file is unified with the built-in
// #Pipeline definition, so the schema rejects unknown fields and bad task
// types before decoding.
//
// SchemaRegistry: Holds compiled CUE definitions (#Pipeline, #Task, #Rprim,
// #Driver). Pipelines loaded from YAML or Starlark are encoded and checked
// against the same definitions.
//
// StarlarkEvaluator: Runs Starlark scripts that build a pipeline
// procedurally by assigning it to the "pipeline" global. ToStarlark and
// FromStarlark convert values between Go and Starlark.
//
// Watcher: Reloads a pipeline file whenever it changes on disk.
//
// # Usage Example
//
//	loader := config.NewLoader(logger)
//	p, err := loader.Load(ctx, "scene.yaml")
//	if err != nil {
//	    var verrs config.ValidationErrors
//	    if errors.As(err, &verrs) {
//	        for _, e := range verrs {
//	            fmt.Println(e)
//	        }
//	    }
//	    return err
//	}
//
// # Pipeline Structure
//
//	name: "preview"
//	frames: 4
//	drivers: [{name: "cpu"}]
//	rprims: [{path: "/World/Quad", points: [0, 0, 0, 1, 0, 0, 1, 1, 0]}]
//	tasks: [
//	    {path: "/Tasks/Setup", type: "render_setup", viewport: [0, 0, 640, 480]},
//	    {path: "/Tasks/Render", type: "render", collection: ["/World/Quad"]},
//	    {path: "/Tasks/Present", type: "present"},
//	]
//
// The same pipeline in Starlark:
//
//	def task(name, kind, **kw):
//	    return dict(path = "/Tasks/" + name, type = kind, **kw)
//
//	pipeline = {
//	    "name": "preview",
//	    "tasks": [task("Setup", "render_setup"), task("Render", "render")],
//	}
//
// # Validation
//
// Struct tags (go-playground/validator), the CUE schema and cross-field
// checks all run. Duplicate task or rprim paths and relative execute entries
// are errors. Empty execute entries are accepted: the engine reports and
// skips them at run time. Collection entries that name no rprim are logged
// as warnings.
package config
