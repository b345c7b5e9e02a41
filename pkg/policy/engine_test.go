package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/hydra/pkg/config"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func validPipeline() *config.Pipeline {
	return &config.Pipeline{
		Name:    "preview",
		Drivers: []config.DriverConfig{{Name: "cpu"}},
		Tasks: []config.TaskConfig{
			{Path: "/Tasks/Setup", Type: config.TaskTypeRenderSetup},
			{Path: "/Tasks/Render", Type: config.TaskTypeRender},
			{Path: "/Tasks/Present", Type: config.TaskTypePresent},
		},
	}
}

func violatedPolicies(vs []Violation) map[string]bool {
	out := make(map[string]bool, len(vs))
	for _, v := range vs {
		out[v.Policy] = true
	}
	return out
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	policies := eng.ListPolicies()
	expected := []string{"present-drivers", "render-order", "task-paths", "task-sources"}
	if len(policies) != len(expected) {
		t.Fatalf("Expected %d built-in policies, got %d", len(expected), len(policies))
	}
	for i, name := range expected {
		if policies[i].Name != name {
			t.Errorf("Policy %d: expected %s, got %s", i, name, policies[i].Name)
		}
		if !policies[i].Builtin || !policies[i].Enabled {
			t.Errorf("Policy %s should be an enabled built-in", name)
		}
	}
}

func TestEvaluate_BuiltinPolicies(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		name         string
		mutate       func(p *config.Pipeline)
		wantAllowed  bool
		wantViolated string
		wantWarned   string
		wantTask     string
	}{
		{
			name:        "valid pipeline",
			mutate:      func(*config.Pipeline) {},
			wantAllowed: true,
		},
		{
			name: "relative task path",
			mutate: func(p *config.Pipeline) {
				p.Tasks[2].Path = "Tasks/Present"
			},
			wantViolated: "task-paths",
			wantTask:     "Tasks/Present",
		},
		{
			name: "relative execute entry",
			mutate: func(p *config.Pipeline) {
				p.Execute = []string{"/Tasks/Setup", "Tasks/Render"}
			},
			wantViolated: "task-paths",
			wantTask:     "Tasks/Render",
		},
		{
			name: "render before setup",
			mutate: func(p *config.Pipeline) {
				p.Tasks[0], p.Tasks[1] = p.Tasks[1], p.Tasks[0]
			},
			wantViolated: "render-order",
			wantTask:     "/Tasks/Render",
		},
		{
			name: "execute list reorders render before setup",
			mutate: func(p *config.Pipeline) {
				p.Execute = []string{"/Tasks/Render", "/Tasks/Setup"}
			},
			wantViolated: "render-order",
			wantTask:     "/Tasks/Render",
		},
		{
			name: "execute list omits setup",
			mutate: func(p *config.Pipeline) {
				p.Execute = []string{"/Tasks/Render", "/Tasks/Present"}
			},
			wantViolated: "render-order",
		},
		{
			name: "script without source",
			mutate: func(p *config.Pipeline) {
				p.Tasks = append(p.Tasks, config.TaskConfig{Path: "/Tasks/Tint", Type: config.TaskTypeScript})
			},
			wantViolated: "task-sources",
			wantTask:     "/Tasks/Tint",
		},
		{
			name: "script file is a source",
			mutate: func(p *config.Pipeline) {
				p.Tasks = append(p.Tasks, config.TaskConfig{
					Path: "/Tasks/Tint", Type: config.TaskTypeScript, ScriptFile: "tint.star",
				})
			},
			wantAllowed: true,
		},
		{
			name: "wasm without module",
			mutate: func(p *config.Pipeline) {
				p.Tasks = append(p.Tasks, config.TaskConfig{Path: "/Tasks/Mark", Type: config.TaskTypeWasm})
			},
			wantViolated: "task-sources",
			wantTask:     "/Tasks/Mark",
		},
		{
			name: "present without drivers warns",
			mutate: func(p *config.Pipeline) {
				p.Drivers = nil
			},
			wantAllowed: true,
			wantWarned:  "present-drivers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPipeline()
			tt.mutate(p)

			result, err := eng.Evaluate(context.Background(), p)
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
			if len(result.Errors) > 0 {
				t.Fatalf("Unexpected evaluation errors: %v", result.Errors)
			}
			if len(result.EvaluatedPolicies) != 4 {
				t.Errorf("Expected 4 evaluated policies, got %v", result.EvaluatedPolicies)
			}

			if tt.wantViolated == "" {
				if !result.Allowed || len(result.Violations) > 0 {
					t.Fatalf("Expected pipeline to be allowed, got violations %v", result.Violations)
				}
			} else {
				if result.Allowed {
					t.Fatal("Expected pipeline to be rejected")
				}
				if !violatedPolicies(result.Violations)[tt.wantViolated] {
					t.Fatalf("Expected violation of %s, got %v", tt.wantViolated, result.Violations)
				}
				if tt.wantTask != "" && result.Violations[0].Task != tt.wantTask {
					t.Errorf("Expected violation on %s, got %s", tt.wantTask, result.Violations[0].Task)
				}
			}

			if tt.wantWarned != "" && !violatedPolicies(result.Warnings)[tt.wantWarned] {
				t.Errorf("Expected warning from %s, got %v", tt.wantWarned, result.Warnings)
			}
		})
	}
}

func TestEvaluate_NilPipeline(t *testing.T) {
	eng := newTestEngine(t)
	if _, err := eng.Evaluate(context.Background(), nil); err == nil {
		t.Fatal("Expected error for nil pipeline")
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	eng := newTestEngine(t)
	p := validPipeline()
	p.Tasks[0], p.Tasks[1] = p.Tasks[1], p.Tasks[0]

	if err := eng.DisablePolicy("render-order"); err != nil {
		t.Fatalf("Failed to disable policy: %v", err)
	}
	result, err := eng.Evaluate(context.Background(), p)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("Disabled policy still rejected the pipeline: %v", result.Violations)
	}

	if err := eng.EnablePolicy("render-order"); err != nil {
		t.Fatalf("Failed to enable policy: %v", err)
	}
	result, _ = eng.Evaluate(context.Background(), p)
	if result.Allowed {
		t.Error("Re-enabled policy should reject the pipeline")
	}

	if err := eng.EnablePolicy("nonexistent"); !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("Expected ErrPolicyNotFound, got %v", err)
	}
}

func TestGetPolicy(t *testing.T) {
	eng := newTestEngine(t)

	p, err := eng.GetPolicy("task-sources")
	if err != nil {
		t.Fatalf("Failed to get policy: %v", err)
	}
	if p.Severity != SeverityError {
		t.Errorf("Expected severity error, got %s", p.Severity)
	}

	if _, err := eng.GetPolicy("nonexistent"); !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("Expected ErrPolicyNotFound, got %v", err)
	}
}

const maxFramesRego = `# Caps the number of frames a pipeline may run.
# severity: error
package custom.frames

import rego.v1

deny contains violation if {
	input.pipeline.frames > 100
	violation := {"message": sprintf("pipeline runs %d frames, limit is 100", [input.pipeline.frames])}
}

deny contains msg if {
	input.context.operation == "run"
	input.pipeline.name == "forbidden"
	msg := "pipeline name is reserved"
}
`

func TestLoadPolicies_Custom(t *testing.T) {
	eng := newTestEngine(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "max-frames.rego"), []byte(maxFramesRego), 0o644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}

	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("Failed to load policies: %v", err)
	}

	loaded, err := eng.GetPolicy("max-frames")
	if err != nil {
		t.Fatalf("Custom policy not loaded: %v", err)
	}
	if loaded.Description != "Caps the number of frames a pipeline may run." {
		t.Errorf("Unexpected description %q", loaded.Description)
	}

	p := validPipeline()
	p.Frames = 500
	result, err := eng.Evaluate(context.Background(), p)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("Expected custom policy to reject the pipeline")
	}
	if got := result.Violations[0].Message; got != "pipeline runs 500 frames, limit is 100" {
		t.Errorf("Unexpected message %q", got)
	}

	p.Frames = 1
	p.Name = "forbidden"
	result, _ = eng.EvaluateWith(context.Background(), p, &Context{Operation: "run"})
	if result.Allowed || result.Violations[0].Message != "pipeline name is reserved" {
		t.Errorf("Expected string deny entry to reject, got %+v", result)
	}

	if err := eng.ReloadPolicies(context.Background()); err != nil {
		t.Fatalf("Failed to reload policies: %v", err)
	}
	if _, err := eng.GetPolicy("max-frames"); err == nil {
		t.Error("Reload should drop custom policies")
	}
}

func TestLoadPolicies_InvalidRego(t *testing.T) {
	eng := newTestEngine(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.rego")
	if err := os.WriteFile(path, []byte("package broken\n\ndeny contains x if {"), 0o644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}

	if err := eng.LoadPolicies(context.Background(), []string{path}); err == nil {
		t.Fatal("Expected compile error")
	}
}

func TestAdmit(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "max-frames.rego"), []byte(maxFramesRego), 0o644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}

	t.Run("enforcing rejects", func(t *testing.T) {
		eng := newTestEngine(t)
		p := validPipeline()
		p.Frames = 500
		p.Source = filepath.Join(dir, "scene.yaml")
		p.Policy = &config.PolicyConfig{Enabled: true, Paths: []string{"max-frames.rego"}}

		result, err := eng.Admit(context.Background(), p, "run")
		var rejected *RejectedError
		if !errors.As(err, &rejected) {
			t.Fatalf("Expected RejectedError, got %v", err)
		}
		if rejected.Result != result || result.Allowed {
			t.Error("RejectedError should carry the rejecting result")
		}
	})

	t.Run("advisory allows", func(t *testing.T) {
		eng := newTestEngine(t)
		p := validPipeline()
		p.Frames = 500
		p.Source = filepath.Join(dir, "scene.yaml")
		p.Policy = &config.PolicyConfig{Enabled: true, Mode: ModeAdvisory, Paths: []string{"max-frames.rego"}}

		result, err := eng.Admit(context.Background(), p, "run")
		if err != nil {
			t.Fatalf("Advisory mode should not reject: %v", err)
		}
		if result.Allowed || len(result.Violations) != 1 {
			t.Errorf("Advisory result should still report violations, got %+v", result)
		}
	})

	t.Run("missing policy path", func(t *testing.T) {
		eng := newTestEngine(t)
		p := validPipeline()
		p.Source = filepath.Join(dir, "scene.yaml")
		p.Policy = &config.PolicyConfig{Enabled: true, Paths: []string{"missing"}}

		if _, err := eng.Admit(context.Background(), p, "run"); err == nil {
			t.Fatal("Expected load error")
		}
	})
}

func TestExecutionOrder(t *testing.T) {
	p := validPipeline()
	p.Execute = []string{"/Tasks/Present", "/Tasks/Unknown"}

	order := executionOrder(p)
	if len(order) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(order))
	}
	if order[0] != (OrderedTask{Path: "/Tasks/Present", Type: config.TaskTypePresent}) {
		t.Errorf("Unexpected first entry %+v", order[0])
	}
	if order[1].Type != "" {
		t.Errorf("Unknown path should have no type, got %s", order[1].Type)
	}
}
