package config

import (
	"fmt"
	"strings"
	"time"
)

// Task types understood by the task factory.
const (
	TaskTypeRenderSetup = "render_setup"
	TaskTypeRender      = "render"
	TaskTypePresent     = "present"
	TaskTypeScript      = "script"
	TaskTypeWasm        = "wasm"
)

// Pipeline describes a scene, its tasks and how many frames to run.
type Pipeline struct {
	// Name identifies the pipeline in logs and the frame journal.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Frames is the number of frames to execute. Zero means one.
	Frames int `json:"frames,omitempty" yaml:"frames,omitempty" validate:"gte=0"`

	// Drivers are seeded into the blackboard at the start of every frame.
	Drivers []DriverConfig `json:"drivers,omitempty" yaml:"drivers,omitempty" validate:"dive"`

	// Tasks are inserted into the render index in order. Unless Execute is
	// set, the frame task list is Tasks in order.
	Tasks []TaskConfig `json:"tasks,omitempty" yaml:"tasks,omitempty" validate:"dive"`

	// Execute lists task paths to run, resolved through the render index.
	// Entries that are empty or name no task are reported and skipped.
	Execute []string `json:"execute,omitempty" yaml:"execute,omitempty"`

	// Rprims are renderable prims inserted into the render index.
	Rprims []RprimConfig `json:"rprims,omitempty" yaml:"rprims,omitempty" validate:"dive"`

	// Viewport is seeded under the viewport key before the first frame.
	Viewport []int `json:"viewport,omitempty" yaml:"viewport,omitempty" validate:"omitempty,len=4"`

	// Policy configures admission policies.
	Policy *PolicyConfig `json:"policy,omitempty" yaml:"policy,omitempty"`

	// Source is the file the pipeline was loaded from.
	Source string `json:"-" yaml:"-"`

	// LoadedAt is when the pipeline was loaded.
	LoadedAt time.Time `json:"-" yaml:"-"`
}

// FrameCount returns the number of frames to run, at least one.
func (p *Pipeline) FrameCount() int {
	if p.Frames <= 0 {
		return 1
	}
	return p.Frames
}

// UsesPaths reports whether frames resolve tasks through Execute.
func (p *Pipeline) UsesPaths() bool {
	return len(p.Execute) > 0
}

// DriverConfig describes a driver.
type DriverConfig struct {
	// Name is the driver kind, e.g. "cpu" or "gpu".
	Name string `json:"name" yaml:"name" validate:"required"`

	// Device is an opaque device identifier handed to tasks.
	Device string `json:"device,omitempty" yaml:"device,omitempty"`
}

// TaskConfig describes one task.
type TaskConfig struct {
	// Path is the task's scene path.
	Path string `json:"path" yaml:"path" validate:"required,startswith=/"`

	// Type selects the task implementation.
	Type string `json:"type" yaml:"type" validate:"required,oneof=render_setup render present script wasm"`

	// Camera is the camera path used by render_setup.
	Camera string `json:"camera,omitempty" yaml:"camera,omitempty"`

	// Viewport is x, y, width, height for render_setup.
	Viewport []int `json:"viewport,omitempty" yaml:"viewport,omitempty" validate:"omitempty,len=4"`

	// ClearColor is RGBA for render_setup.
	ClearColor []float64 `json:"clear_color,omitempty" yaml:"clear_color,omitempty" validate:"omitempty,len=4"`

	// Collection lists the rprim paths a render task draws.
	Collection []string `json:"collection,omitempty" yaml:"collection,omitempty" validate:"omitempty,dive,startswith=/"`

	// Script is inline Starlark source for script tasks.
	Script string `json:"script,omitempty" yaml:"script,omitempty"`

	// ScriptFile is a Starlark file for script tasks, relative to the
	// pipeline file.
	ScriptFile string `json:"script_file,omitempty" yaml:"script_file,omitempty"`

	// MaxSteps bounds Starlark execution steps per call. Zero is unbounded.
	MaxSteps uint64 `json:"max_steps,omitempty" yaml:"max_steps,omitempty"`

	// Module is a WebAssembly file for wasm tasks, relative to the
	// pipeline file.
	Module string `json:"module,omitempty" yaml:"module,omitempty"`
}

// Name returns the last segment of the task path.
func (t TaskConfig) Name() string {
	return t.Path[strings.LastIndex(t.Path, "/")+1:]
}

// RprimConfig describes a mesh rprim.
type RprimConfig struct {
	// Path is the rprim's scene path.
	Path string `json:"path" yaml:"path" validate:"required,startswith=/"`

	// Points is a flat list of point coordinates.
	Points []float32 `json:"points,omitempty" yaml:"points,omitempty"`
}

// PolicyConfig configures policy enforcement.
type PolicyConfig struct {
	// Enabled indicates if policy enforcement is enabled.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Paths lists extra policy file or directory paths, relative to the
	// pipeline file.
	Paths []string `json:"paths,omitempty" yaml:"paths,omitempty"`

	// Mode is the enforcement mode (advisory, enforcing).
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty" validate:"omitempty,oneof=advisory enforcing"`
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the field path to the error (e.g., "tasks[1].type").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity"`
}

// String formats the error with its location.
func (e ValidationError) String() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ValidationErrors is returned when a pipeline fails validation.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.String())
	}
	return fmt.Sprintf("pipeline validation failed: %s", strings.Join(msgs, "; "))
}
