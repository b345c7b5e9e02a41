// Package policy provides Open Policy Agent (OPA) admission checks for
// hydra pipelines.
//
// Every policy is a Rego module whose deny set lists violations. Before a
// pipeline runs, the engine evaluates it against the built-in policies and
// any policies the pipeline names.
//
// # Usage
//
//	engine, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//
//	result, err := engine.Evaluate(ctx, pipeline)
//	if err != nil {
//	    return err
//	}
//	for _, v := range result.Violations {
//	    fmt.Println(v)
//	}
//
// Admit additionally loads the pipeline's policy paths and turns blocking
// violations into a *RejectedError unless the pipeline runs policies in
// advisory mode.
//
// # Built-in Policies
//
//  1. task-paths - task paths and execute entries are absolute
//  2. render-order - a render_setup task runs before every render task
//  3. task-sources - script tasks have a script, wasm tasks a module
//  4. present-drivers - present tasks have a driver (warning)
//
// # Input
//
// Policies see the pipeline in its JSON form under input.pipeline and the
// tasks in frame order under input.order:
//
//	{
//	    "pipeline": {"name": "preview", "tasks": [...], "execute": [...]},
//	    "order": [{"path": "/Tasks/Setup", "type": "render_setup"}, ...],
//	    "context": {"operation": "run", "source": "scene.yaml"}
//	}
//
// # Custom Policies
//
//	# Caps preview pipelines.
//	# severity: error
//	package custom.frames
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.pipeline.frames > 100
//	    violation := {"message": "too many frames"}
//	}
//
// Deny entries may be strings or objects with message, task and severity
// keys. The "# severity:" header sets the default severity of a .rego
// file; JSON policy files set it in the document. Files default to warning.
//
// # Severity Levels
//
// info and warning findings are reported in Result.Warnings and never
// block. error and critical findings reject the pipeline.
package policy
