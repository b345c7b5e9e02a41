package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		taskPathsPolicy(),
		renderOrderPolicy(),
		taskSourcesPolicy(),
		presentDriversPolicy(),
	}
}

func builtin(p Policy) Policy {
	p.Enabled = true
	p.Builtin = true
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	return p
}

// taskPathsPolicy requires absolute task paths and execute entries.
func taskPathsPolicy() Policy {
	return builtin(Policy{
		Name:        "task-paths",
		Description: "Task paths and execute entries must be absolute scene paths",
		Severity:    SeverityError,
		Tags:        []string{"paths"},
		Rego: `package hydra.policies.paths

import rego.v1

deny contains violation if {
	some task in input.pipeline.tasks
	not startswith(task.path, "/")
	violation := {
		"message": sprintf("task path '%s' must be absolute", [task.path]),
		"task": task.path,
	}
}

# Empty entries are reported by the engine at run time.
deny contains violation if {
	some entry in input.pipeline.execute
	entry != ""
	not startswith(entry, "/")
	violation := {
		"message": sprintf("execute entry '%s' must be absolute", [entry]),
		"task": entry,
	}
}`,
	})
}

// renderOrderPolicy requires a render_setup task to run before every render
// task, since render tasks read the pass state it publishes.
func renderOrderPolicy() Policy {
	return builtin(Policy{
		Name:        "render-order",
		Description: "Every render task must be preceded by a render_setup task",
		Severity:    SeverityError,
		Tags:        []string{"ordering"},
		Rego: `package hydra.policies.order

import rego.v1

deny contains violation if {
	some i, task in input.order
	task.type == "render"
	not setup_before(i)
	violation := {
		"message": "render task runs before any render_setup task",
		"task": task.path,
	}
}

setup_before(i) if {
	some j, task in input.order
	j < i
	task.type == "render_setup"
}`,
	})
}

// taskSourcesPolicy requires script and wasm tasks to name their code.
func taskSourcesPolicy() Policy {
	return builtin(Policy{
		Name:        "task-sources",
		Description: "Script tasks need a script or script_file; wasm tasks need a module",
		Severity:    SeverityError,
		Tags:        []string{"tasks"},
		Rego: `package hydra.policies.sources

import rego.v1

deny contains violation if {
	some task in input.pipeline.tasks
	task.type == "script"
	not task.script
	not task.script_file
	violation := {
		"message": "script task sets neither script nor script_file",
		"task": task.path,
	}
}

deny contains violation if {
	some task in input.pipeline.tasks
	task.type == "wasm"
	not task.module
	violation := {
		"message": "wasm task does not set module",
		"task": task.path,
	}
}`,
	})
}

// presentDriversPolicy warns about present tasks in pipelines without
// drivers.
func presentDriversPolicy() Policy {
	return builtin(Policy{
		Name:        "present-drivers",
		Description: "Present tasks need at least one driver",
		Severity:    SeverityWarning,
		Tags:        []string{"drivers"},
		Rego: `package hydra.policies.drivers

import rego.v1

deny contains violation if {
	count(object.get(input.pipeline, "drivers", [])) == 0
	some task in input.pipeline.tasks
	task.type == "present"
	violation := {
		"message": "present task has no driver to present to",
		"task": task.path,
	}
}`,
	})
}
