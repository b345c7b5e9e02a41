package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openfroyo/hydra/pkg/config"
	"github.com/openfroyo/hydra/pkg/engine"
)

// Factory builds tasks from pipeline task descriptions.
type Factory struct {
	logger   zerolog.Logger
	readFile func(string) ([]byte, error)

	mu      sync.Mutex
	modules []*Wasm
}

// NewFactory creates a factory.
func NewFactory(logger zerolog.Logger) *Factory {
	return &Factory{
		logger:   logger.With().Str("component", "tasks").Logger(),
		readFile: os.ReadFile,
	}
}

// Build creates the task described by tc. Script and module files are
// resolved relative to the pipeline source.
func (f *Factory) Build(ctx context.Context, p *config.Pipeline, tc config.TaskConfig) (engine.Task, error) {
	switch tc.Type {
	case config.TaskTypeRenderSetup:
		params := RenderSetupParams{Camera: engine.Path(tc.Camera)}
		copy(params.Viewport[:], tc.Viewport)
		copy(params.ClearColor[:], tc.ClearColor)
		return NewRenderSetup(params), nil

	case config.TaskTypeRender:
		collection := make([]engine.Path, 0, len(tc.Collection))
		for _, c := range tc.Collection {
			collection = append(collection, engine.Path(c))
		}
		return NewRender(tc.Name(), collection).WithLogger(f.logger), nil

	case config.TaskTypePresent:
		t := NewPresent()
		t.logger = f.logger.With().Str("task", tc.Name()).Logger()
		return t, nil

	case config.TaskTypeScript:
		src, filename := tc.Script, tc.Path+".star"
		if src == "" {
			if tc.ScriptFile == "" {
				return nil, fmt.Errorf("task %s: script task needs script or script_file", tc.Path)
			}
			filename = p.Resolve(tc.ScriptFile)
			data, err := f.readFile(filename)
			if err != nil {
				return nil, fmt.Errorf("task %s: %w", tc.Path, err)
			}
			src = string(data)
		}
		s, err := NewScript(tc.Name(), filename, src,
			WithScriptLogger(f.logger),
			WithMaxSteps(tc.MaxSteps))
		if err != nil {
			return nil, err
		}
		return s, nil

	case config.TaskTypeWasm:
		if tc.Module == "" {
			return nil, fmt.Errorf("task %s: wasm task needs module", tc.Path)
		}
		data, err := f.readFile(p.Resolve(tc.Module))
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", tc.Path, err)
		}
		w, err := NewWasm(ctx, tc.Name(), data, &WasmConfig{Logger: &f.logger})
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", tc.Path, err)
		}
		f.mu.Lock()
		f.modules = append(f.modules, w)
		f.mu.Unlock()
		return w, nil

	default:
		return nil, fmt.Errorf("task %s: unknown task type %q", tc.Path, tc.Type)
	}
}

// Close releases the runtimes of every wasm task built by f.
func (f *Factory) Close(ctx context.Context) error {
	f.mu.Lock()
	modules := f.modules
	f.modules = nil
	f.mu.Unlock()

	var errs []error
	for _, w := range modules {
		if err := w.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
