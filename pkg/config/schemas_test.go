package config

import (
	"context"
	"testing"
)

func TestSchemaRegistry_Builtins(t *testing.T) {
	sr := NewSchemaRegistry(nil)

	want := []string{"driver", "pipeline", "rprim", "task"}
	got := sr.ListSchemas()
	if len(got) != len(want) {
		t.Fatalf("expected schemas %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("schema %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestSchemaRegistry_ValidateAgainstSchema(t *testing.T) {
	sr := NewSchemaRegistry(nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		schema  string
		data    interface{}
		wantErr bool
	}{
		{
			name:   "valid task",
			schema: "task",
			data:   TaskConfig{Path: "/Tasks/Render", Type: TaskTypeRender},
		},
		{
			name:    "task with bad type",
			schema:  "task",
			data:    TaskConfig{Path: "/Tasks/Render", Type: "blit"},
			wantErr: true,
		},
		{
			name:   "valid rprim",
			schema: "rprim",
			data:   RprimConfig{Path: "/World/A", Points: []float32{1, 2}},
		},
		{
			name:    "driver without name",
			schema:  "driver",
			data:    DriverConfig{},
			wantErr: true,
		},
		{
			name:    "unknown schema",
			schema:  "shader",
			data:    map[string]interface{}{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sr.ValidateAgainstSchema(ctx, tt.schema, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAgainstSchema() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSchemaRegistry_ValidatePipeline(t *testing.T) {
	sr := NewSchemaRegistry(nil)
	p := &Pipeline{
		Name:     "ok",
		Viewport: []int{0, 0, 10, 10},
		Tasks: []TaskConfig{
			{Path: "/Tasks/Setup", Type: TaskTypeRenderSetup, ClearColor: []float64{0, 0, 0, 1}},
		},
		Policy: &PolicyConfig{Enabled: true, Mode: "enforcing"},
	}
	if err := sr.ValidatePipeline(context.Background(), p); err != nil {
		t.Errorf("ValidatePipeline() error = %v", err)
	}

	p.Viewport = []int{0, 0, 10}
	if err := sr.ValidatePipeline(context.Background(), p); err == nil {
		t.Error("expected error for three-element viewport")
	}
}

func TestSchemaRegistry_RegisterSchema(t *testing.T) {
	sr := NewSchemaRegistry(nil)

	if err := sr.RegisterSchema("camera", `#Camera: {fov: number & >0}`, "#Camera"); err != nil {
		t.Fatalf("RegisterSchema() error = %v", err)
	}
	if err := sr.ValidateAgainstSchema(context.Background(), "camera", map[string]interface{}{"fov": 45}); err != nil {
		t.Errorf("expected valid camera, got %v", err)
	}
	if err := sr.ValidateAgainstSchema(context.Background(), "camera", map[string]interface{}{"fov": 0}); err == nil {
		t.Error("expected error for zero fov")
	}

	if err := sr.RegisterSchema("broken", `#X: {`, "#X"); err == nil {
		t.Error("expected compile error")
	}
	if err := sr.RegisterSchema("missing", `#X: {}`, "#Y"); err == nil {
		t.Error("expected missing definition error")
	}
}
