package tasks

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/hydra/pkg/config"
	"github.com/openfroyo/hydra/pkg/engine"
)

func TestFactory_Build(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tint.star"),
		[]byte("def prepare(ctx):\n    return {\"tint\": 1}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.wasm"), markModule, 0o644))

	p := &config.Pipeline{Name: "test", Source: filepath.Join(dir, "pipeline.yaml")}
	f := NewFactory(zerolog.Nop())
	ctx := context.Background()
	t.Cleanup(func() { _ = f.Close(ctx) })

	tests := []struct {
		name string
		tc   config.TaskConfig
		want interface{}
	}{
		{
			name: "render setup",
			tc: config.TaskConfig{
				Path: "/Tasks/Setup", Type: config.TaskTypeRenderSetup,
				Camera: "/Cameras/Main", Viewport: []int{0, 0, 8, 8},
			},
			want: &RenderSetup{},
		},
		{
			name: "render",
			tc:   config.TaskConfig{Path: "/Tasks/Render", Type: config.TaskTypeRender, Collection: []string{"/World/A"}},
			want: &Render{},
		},
		{
			name: "present",
			tc:   config.TaskConfig{Path: "/Tasks/Present", Type: config.TaskTypePresent},
			want: &Present{},
		},
		{
			name: "inline script",
			tc:   config.TaskConfig{Path: "/Tasks/Inline", Type: config.TaskTypeScript, Script: "x = 1\n"},
			want: &Script{},
		},
		{
			name: "script file",
			tc:   config.TaskConfig{Path: "/Tasks/Tint", Type: config.TaskTypeScript, ScriptFile: "tint.star"},
			want: &Script{},
		},
		{
			name: "wasm",
			tc:   config.TaskConfig{Path: "/Tasks/Marker", Type: config.TaskTypeWasm, Module: "marker.wasm"},
			want: &Wasm{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := f.Build(ctx, p, tt.tc)
			require.NoError(t, err)
			assert.IsType(t, tt.want, task)
		})
	}
}

func TestFactory_BuildParams(t *testing.T) {
	f := NewFactory(zerolog.Nop())
	task, err := f.Build(context.Background(), &config.Pipeline{}, config.TaskConfig{
		Path:       "/Tasks/Setup",
		Type:       config.TaskTypeRenderSetup,
		Camera:     "/Cameras/Main",
		Viewport:   []int{1, 2, 3, 4},
		ClearColor: []float64{0.1, 0.2, 0.3, 1},
	})
	require.NoError(t, err)

	setup := task.(*RenderSetup)
	dirty := engine.AllDirty
	setup.Sync(context.Background(), nil, &dirty)
	assert.Equal(t, RenderSetupParams{
		Camera:     "/Cameras/Main",
		Viewport:   [4]int{1, 2, 3, 4},
		ClearColor: [4]float64{0.1, 0.2, 0.3, 1},
	}, setup.params)
}

func TestFactory_BuildErrors(t *testing.T) {
	f := NewFactory(zerolog.Nop())
	f.readFile = func(name string) ([]byte, error) { return nil, os.ErrNotExist }
	p := &config.Pipeline{Source: "/pipelines/scene.yaml"}

	tests := []struct {
		name    string
		tc      config.TaskConfig
		wantErr string
	}{
		{name: "unknown type", tc: config.TaskConfig{Path: "/T", Type: "raytrace"}, wantErr: "unknown task type"},
		{name: "script without source", tc: config.TaskConfig{Path: "/T", Type: config.TaskTypeScript}, wantErr: "needs script or script_file"},
		{name: "missing script file", tc: config.TaskConfig{Path: "/T", Type: config.TaskTypeScript, ScriptFile: "x.star"}, wantErr: "file does not exist"},
		{name: "bad script", tc: config.TaskConfig{Path: "/T", Type: config.TaskTypeScript, Script: "def (\n"}, wantErr: "script T"},
		{name: "wasm without module", tc: config.TaskConfig{Path: "/T", Type: config.TaskTypeWasm}, wantErr: "needs module"},
		{name: "missing module", tc: config.TaskConfig{Path: "/T", Type: config.TaskTypeWasm, Module: "m.wasm"}, wantErr: "file does not exist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := f.Build(context.Background(), p, tt.tc)
			require.Error(t, err)
			assert.Nil(t, task)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFactory_ResolvesRelativeToSource(t *testing.T) {
	f := NewFactory(zerolog.Nop())
	var read []string
	f.readFile = func(name string) ([]byte, error) {
		read = append(read, name)
		return []byte("x = 1\n"), nil
	}

	p := &config.Pipeline{Source: "/pipelines/scene.yaml"}
	_, err := f.Build(context.Background(), p, config.TaskConfig{
		Path: "/Tasks/S", Type: config.TaskTypeScript, ScriptFile: "scripts/s.star",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("/pipelines", "scripts", "s.star")}, read)
}
