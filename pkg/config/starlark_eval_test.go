package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.starlark.net/starlark"
)

func TestStarlarkEvaluator_Evaluate(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	tests := []struct {
		name      string
		script    string
		input     map[string]interface{}
		checkFunc func(*testing.T, *StarlarkResult)
		wantErr   bool
	}{
		{
			name:   "simple arithmetic",
			script: "result = 2 + 2\n",
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["result"] != int64(4) {
					t.Errorf("expected result=4, got %v", sr.Output["result"])
				}
			},
		},
		{
			name:   "use input variables",
			script: "doubled = count * 2\n",
			input:  map[string]interface{}{"count": 5},
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["doubled"] != int64(10) {
					t.Errorf("expected doubled=10, got %v", sr.Output["doubled"])
				}
			},
		},
		{
			name: "private globals and functions are not exported",
			script: `
_hidden = 1
def helper():
    return 2
shown = helper()
`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if _, ok := sr.Output["_hidden"]; ok {
					t.Error("expected _hidden to be skipped")
				}
				if _, ok := sr.Output["helper"]; ok {
					t.Error("expected helper to be skipped")
				}
				if sr.Output["shown"] != int64(2) {
					t.Errorf("expected shown=2, got %v", sr.Output["shown"])
				}
			},
		},
		{
			name:   "struct converts to map",
			script: `s = struct(a = 1, b = "x")` + "\n",
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				m, ok := sr.Output["s"].(map[string]interface{})
				if !ok {
					t.Fatalf("expected map, got %T", sr.Output["s"])
				}
				if m["a"] != int64(1) || m["b"] != "x" {
					t.Errorf("unexpected struct contents %v", m)
				}
			},
		},
		{
			name:    "syntax error",
			script:  "x = (\n",
			wantErr: true,
		},
		{
			name:    "runtime error",
			script:  "x = 1 // 0\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Evaluate(ctx, "test.star", tt.script, tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Evaluate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.checkFunc != nil && err == nil {
				tt.checkFunc(t, result)
			}
		})
	}
}

func TestStarlarkEvaluator_Timeout(t *testing.T) {
	evaluator := NewStarlarkEvaluator(50 * time.Millisecond)

	script := `
def spin():
    n = 0
    for i in range(1000000000):
        n += i
    return n
x = spin()
`
	_, err := evaluator.Evaluate(context.Background(), "spin.star", script, nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Errorf("expected timeout in error, got %v", err)
	}
}

func TestStarlarkEvaluator_EvaluatePipeline(t *testing.T) {
	evaluator := NewStarlarkEvaluator(0)

	script := `
def task(name, kind):
    return {"path": "/Tasks/" + name, "type": kind}

pipeline = {
    "name": "generated",
    "frames": 3,
    "tasks": [task("Setup", "render_setup"), task("Render", "render")],
}
`
	p, err := evaluator.EvaluatePipeline(context.Background(), "gen.star", script)
	if err != nil {
		t.Fatalf("EvaluatePipeline() error = %v", err)
	}
	if p.Name != "generated" || p.Frames != 3 {
		t.Errorf("unexpected pipeline %+v", p)
	}
	if len(p.Tasks) != 2 || p.Tasks[1].Path != "/Tasks/Render" || p.Tasks[1].Type != TaskTypeRender {
		t.Errorf("unexpected tasks %+v", p.Tasks)
	}

	if _, err := evaluator.EvaluatePipeline(context.Background(), "none.star", "x = 1\n"); err == nil {
		t.Error("expected error when pipeline global is missing")
	}
}

func TestStarlarkConversion(t *testing.T) {
	in := map[string]interface{}{
		"int":    7,
		"float":  1.5,
		"list":   []interface{}{"a", true},
		"ints":   []int{1, 2},
		"nested": map[string]interface{}{"k": nil},
	}

	sv, err := ToStarlark(in)
	if err != nil {
		t.Fatalf("ToStarlark() error = %v", err)
	}
	if _, ok := sv.(*starlark.Dict); !ok {
		t.Fatalf("expected dict, got %s", sv.Type())
	}

	out, err := FromStarlark(sv)
	if err != nil {
		t.Fatalf("FromStarlark() error = %v", err)
	}
	m := out.(map[string]interface{})
	if m["int"] != int64(7) {
		t.Errorf("int: got %v", m["int"])
	}
	if m["float"] != 1.5 {
		t.Errorf("float: got %v", m["float"])
	}
	if ints := m["ints"].([]interface{}); len(ints) != 2 || ints[1] != int64(2) {
		t.Errorf("ints: got %v", ints)
	}

	if _, err := ToStarlark(struct{}{}); err == nil {
		t.Error("expected error for unsupported type")
	}
}
