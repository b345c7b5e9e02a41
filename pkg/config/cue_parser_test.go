package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCUEParser_Parse(t *testing.T) {
	parser := NewCUEParser()

	tests := []struct {
		name      string
		content   string
		wantErr   bool
		checkFunc func(*testing.T, *Pipeline)
	}{
		{
			name: "minimal pipeline",
			content: `
name: "minimal"
`,
			checkFunc: func(t *testing.T, p *Pipeline) {
				if p.Name != "minimal" {
					t.Errorf("expected name minimal, got %s", p.Name)
				}
				if p.FrameCount() != 1 {
					t.Errorf("expected 1 frame, got %d", p.FrameCount())
				}
			},
		},
		{
			name: "full pipeline with comprehension",
			content: `
name:   "full"
frames: 2
drivers: [{name: "cpu"}]
_passes: ["Setup", "Render"]
tasks: [
	{path: "/Tasks/Setup", type: "render_setup", viewport: [0, 0, 640, 480]},
	{path: "/Tasks/Render", type: "render", collection: ["/World/Mesh"]},
	{path: "/Tasks/Present", type: "present"},
]
execute: [for p in _passes {"/Tasks/" + p}]
rprims: [{path: "/World/Mesh", points: [0, 1, 2]}]
`,
			checkFunc: func(t *testing.T, p *Pipeline) {
				if len(p.Tasks) != 3 {
					t.Fatalf("expected 3 tasks, got %d", len(p.Tasks))
				}
				if got := p.Tasks[0].Viewport; len(got) != 4 || got[2] != 640 {
					t.Errorf("unexpected viewport %v", got)
				}
				if len(p.Execute) != 2 || p.Execute[1] != "/Tasks/Render" {
					t.Errorf("unexpected execute %v", p.Execute)
				}
				if len(p.Rprims) != 1 || len(p.Rprims[0].Points) != 3 {
					t.Errorf("unexpected rprims %+v", p.Rprims)
				}
			},
		},
		{
			name: "unknown task type",
			content: `
name: "bad"
tasks: [{path: "/Tasks/X", type: "raytrace"}]
`,
			wantErr: true,
		},
		{
			name: "relative task path",
			content: `
name: "bad"
tasks: [{path: "Tasks/X", type: "render"}]
`,
			wantErr: true,
		},
		{
			name: "unknown field",
			content: `
name: "bad"
shaders: []
`,
			wantErr: true,
		},
		{
			name:    "syntax error",
			content: `name: "bad`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := parser.Parse("pipeline.cue", []byte(tt.content))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var verrs ValidationErrors
				if !errors.As(err, &verrs) || len(verrs) == 0 {
					t.Errorf("expected ValidationErrors, got %T", err)
				}
				return
			}
			if tt.checkFunc != nil {
				tt.checkFunc(t, p)
			}
		})
	}
}

func TestCUEParser_ParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.cue")
	content := `
name: "file"
tasks: [{path: "/Tasks/Render", type: "render"}]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	p, err := NewCUEParser().ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if p.Tasks[0].Name() != "Render" {
		t.Errorf("expected task name Render, got %s", p.Tasks[0].Name())
	}

	if _, err := NewCUEParser().ParseFile(filepath.Join(dir, "missing.cue")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCUEParser_ErrorPositions(t *testing.T) {
	_, err := NewCUEParser().Parse("pos.cue", []byte("name: \"x\"\nframes: -1\n"))
	if err == nil {
		t.Fatal("expected error")
	}

	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	found := false
	for _, e := range verrs {
		if e.File != "" && e.Line > 0 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a positioned error, got %v", verrs)
	}
}
