package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/openfroyo/hydra/pkg/config"
	"github.com/openfroyo/hydra/pkg/engine"
)

// Script is a task whose phases are Starlark functions. The script may
// define any of:
//
//	def sync(dirty): ...
//	def prepare(ctx): ...
//	def execute(ctx): ...
//
// prepare and execute receive a dict snapshot of the blackboard and may
// return a dict whose entries are written back to it. Script errors are
// logged and kept in LastError; they never stop the frame.
type Script struct {
	name     string
	globals  starlark.StringDict
	maxSteps uint64
	logger   zerolog.Logger

	mu      sync.Mutex
	lastErr error
	calls   map[string]int
}

// ScriptOption configures a Script.
type ScriptOption func(*Script)

// WithScriptLogger sets the script logger. print() output goes to it at
// debug level.
func WithScriptLogger(logger zerolog.Logger) ScriptOption {
	return func(s *Script) {
		s.logger = logger.With().Str("task", s.name).Logger()
	}
}

// WithMaxSteps bounds the Starlark execution steps of each call.
func WithMaxSteps(n uint64) ScriptOption {
	return func(s *Script) {
		s.maxSteps = n
	}
}

// NewScript compiles and runs the top level of src. filename is used in
// Starlark error positions.
func NewScript(name, filename, src string, opts ...ScriptOption) (*Script, error) {
	s := &Script{
		name:   name,
		logger: log.With().Str("component", "tasks").Str("task", name).Logger(),
		calls:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}

	predeclared := starlark.StringDict{
		"struct": starlarkstruct.Default,
	}
	globals, err := starlark.ExecFile(s.thread(), filename, src, predeclared)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", name, err)
	}
	s.globals = globals
	return s, nil
}

func (s *Script) thread() *starlark.Thread {
	thread := &starlark.Thread{
		Name: s.name,
		Print: func(_ *starlark.Thread, msg string) {
			s.logger.Debug().Msg(msg)
		},
	}
	if s.maxSteps > 0 {
		thread.SetMaxExecutionSteps(s.maxSteps)
	}
	return thread
}

// LastError returns the most recent script error.
func (s *Script) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Calls returns how many times the named function ran.
func (s *Script) Calls(fn string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[fn]
}

// Sync implements engine.Task.
func (s *Script) Sync(_ context.Context, _ *engine.TaskContext, dirty *engine.DirtyBits) {
	if fn, ok := s.globals["sync"].(starlark.Callable); ok {
		if _, err := s.call("sync", fn, starlark.MakeUint64(uint64(*dirty))); err != nil {
			return
		}
	}
	*dirty = engine.Clean
}

// Prepare implements engine.Task.
func (s *Script) Prepare(_ context.Context, tc *engine.TaskContext, _ engine.SceneIndex) {
	s.phase("prepare", tc)
}

// Execute implements engine.Task.
func (s *Script) Execute(_ context.Context, tc *engine.TaskContext) {
	s.phase("execute", tc)
}

func (s *Script) phase(name string, tc *engine.TaskContext) {
	fn, ok := s.globals[name].(starlark.Callable)
	if !ok {
		return
	}

	res, err := s.call(name, fn, s.snapshot(tc))
	if err != nil {
		return
	}

	switch out := res.(type) {
	case starlark.NoneType:
	case *starlark.Dict:
		for _, item := range out.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				s.fail(fmt.Errorf("%s returned a non-string key %s", name, item[0]))
				continue
			}
			val, err := config.FromStarlark(item[1])
			if err != nil {
				s.fail(fmt.Errorf("%s returned %s: %w", name, key, err))
				continue
			}
			tc.Set(engine.NewToken(string(key)), engine.NewValue(val))
		}
	default:
		s.fail(fmt.Errorf("%s returned %s, want dict or None", name, res.Type()))
	}
}

func (s *Script) call(name string, fn starlark.Callable, args ...starlark.Value) (starlark.Value, error) {
	s.mu.Lock()
	s.calls[name]++
	s.mu.Unlock()

	res, err := starlark.Call(s.thread(), fn, starlark.Tuple(args), nil)
	if err != nil {
		s.fail(fmt.Errorf("%s: %w", name, err))
		return nil, err
	}
	return res, nil
}

func (s *Script) fail(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.logger.Error().Err(err).Msg("Script task failed")
}

// snapshot converts the blackboard into a Starlark dict. Entries with no
// Starlark representation are left out.
func (s *Script) snapshot(tc *engine.TaskContext) *starlark.Dict {
	dict := starlark.NewDict(tc.Len())
	for _, key := range tc.Keys() {
		v, _ := tc.Get(key)
		sv, err := config.ToStarlark(scriptValue(v.Any()))
		if err != nil {
			continue
		}
		_ = dict.SetKey(starlark.String(key.String()), sv)
	}
	return dict
}

func scriptValue(v any) any {
	switch val := v.(type) {
	case engine.DriverVector:
		return val.Names()
	case *RenderPassState:
		if val == nil {
			return nil
		}
		return map[string]interface{}{
			"camera":   val.Camera.String(),
			"viewport": val.Viewport[:],
			"version":  val.Version,
		}
	case []DrawRecord:
		out := make([]interface{}, 0, len(val))
		for _, r := range val {
			out = append(out, map[string]interface{}{
				"task":   r.Task,
				"prims":  r.Prims,
				"points": r.Points,
			})
		}
		return out
	}
	return v
}

var _ engine.Task = (*Script)(nil)
