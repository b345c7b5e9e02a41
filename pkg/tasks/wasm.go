package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/openfroyo/hydra/pkg/engine"
)

// HostModule is the name of the module hydra exports to WebAssembly tasks.
const HostModule = "hydra"

type blackboardKey struct{}

// Wasm is a task whose phases are functions exported by a WebAssembly
// module. Exports named "sync" (taking the dirty bits as i32), "prepare"
// and "execute" are called when present.
//
// The host module "hydra" exports mark(code i32), which appends code to the
// blackboard entry returned by MarksKey. Call errors are logged and kept in
// LastError.
type Wasm struct {
	name     string
	marksKey engine.Token
	runtime  wazero.Runtime
	module   api.Module
	logger   zerolog.Logger

	mu      sync.Mutex
	lastErr error
}

// WasmConfig configures the WebAssembly runtime of a task.
type WasmConfig struct {
	// MemoryLimitPages is the maximum memory in 64KiB pages. Default is
	// 256 pages (16MiB).
	MemoryLimitPages uint32

	// Logger receives call errors.
	Logger *zerolog.Logger
}

// NewWasm compiles and instantiates module. Start functions are not run.
func NewWasm(ctx context.Context, name string, module []byte, cfg *WasmConfig) (*Wasm, error) {
	if cfg == nil {
		cfg = &WasmConfig{}
	}
	if cfg.MemoryLimitPages == 0 {
		cfg.MemoryLimitPages = 256
	}

	w := &Wasm{
		name:     name,
		marksKey: engine.NewToken("wasm." + name + ".marks"),
		logger:   log.With().Str("component", "tasks").Str("task", name).Logger(),
	}
	if cfg.Logger != nil {
		w.logger = cfg.Logger.With().Str("task", name).Logger()
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().
		WithMemoryLimitPages(cfg.MemoryLimitPages))

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	_, err := runtime.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().
		WithFunc(w.mark).
		Export("mark").
		Instantiate(ctx)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate host module: %w", err)
	}

	mod, err := runtime.InstantiateWithConfig(ctx, module,
		wazero.NewModuleConfig().WithName(name).WithStartFunctions())
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate module %s: %w", name, err)
	}

	w.runtime = runtime
	w.module = mod
	return w, nil
}

// mark is the host function behind hydra.mark.
func (w *Wasm) mark(ctx context.Context, code int32) {
	tc, ok := ctx.Value(blackboardKey{}).(*engine.TaskContext)
	if !ok {
		return
	}
	marks, _, err := engine.GetAs[[]int32](tc, w.marksKey)
	if err != nil {
		w.fail(err)
		return
	}
	tc.Set(w.marksKey, engine.NewValue(append(marks, code)))
}

// MarksKey returns the blackboard key mark() appends to.
func (w *Wasm) MarksKey() engine.Token {
	return w.marksKey
}

// LastError returns the most recent call error.
func (w *Wasm) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Close releases the runtime.
func (w *Wasm) Close(ctx context.Context) error {
	return w.runtime.Close(ctx)
}

// Sync implements engine.Task.
func (w *Wasm) Sync(ctx context.Context, tc *engine.TaskContext, dirty *engine.DirtyBits) {
	if fn := w.module.ExportedFunction("sync"); fn != nil {
		var params []uint64
		if len(fn.Definition().ParamTypes()) == 1 {
			params = append(params, api.EncodeU32(uint32(*dirty)))
		}
		if err := w.call(ctx, tc, fn, params...); err != nil {
			return
		}
	}
	*dirty = engine.Clean
}

// Prepare implements engine.Task.
func (w *Wasm) Prepare(ctx context.Context, tc *engine.TaskContext, _ engine.SceneIndex) {
	if fn := w.module.ExportedFunction("prepare"); fn != nil {
		_ = w.call(ctx, tc, fn)
	}
}

// Execute implements engine.Task.
func (w *Wasm) Execute(ctx context.Context, tc *engine.TaskContext) {
	if fn := w.module.ExportedFunction("execute"); fn != nil {
		_ = w.call(ctx, tc, fn)
	}
}

func (w *Wasm) call(ctx context.Context, tc *engine.TaskContext, fn api.Function, params ...uint64) error {
	ctx = context.WithValue(ctx, blackboardKey{}, tc)
	if _, err := fn.Call(ctx, params...); err != nil {
		err = fmt.Errorf("%s: %w", fn.Definition().Name(), err)
		w.fail(err)
		return err
	}
	return nil
}

func (w *Wasm) fail(err error) {
	w.mu.Lock()
	w.lastErr = err
	w.mu.Unlock()
	w.logger.Error().Err(err).Msg("Wasm task failed")
}

var _ engine.Task = (*Wasm)(nil)
