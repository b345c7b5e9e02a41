package config

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// StarlarkEvaluator builds pipelines from Starlark scripts. A script
// describes the pipeline by assigning a dict (or struct) to the global
// "pipeline".
type StarlarkEvaluator struct {
	timeout time.Duration
}

// NewStarlarkEvaluator creates a new Starlark evaluator.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &StarlarkEvaluator{
		timeout: timeout,
	}
}

// StarlarkResult holds the globals exported by a script.
type StarlarkResult struct {
	// Output maps exported global names to Go values.
	Output map[string]interface{} `json:"output"`

	// ExecutionTime is how long the script ran.
	ExecutionTime time.Duration `json:"execution_time"`
}

// Evaluate executes script with input predeclared and returns its exported
// globals. Globals starting with an underscore are not exported.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, filename, script string, input map[string]interface{}) (*StarlarkResult, error) {
	startTime := time.Now()

	thread := &starlark.Thread{
		Name:  filename,
		Print: func(_ *starlark.Thread, msg string) {},
	}

	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()
	stop := context.AfterFunc(evalCtx, func() {
		thread.Cancel(fmt.Sprintf("execution timeout after %v", se.timeout))
	})
	defer stop()

	predeclared := starlark.StringDict{
		"struct": starlarkstruct.Default,
	}
	for key, val := range input {
		starlarkVal, err := ToStarlark(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input %s: %w", key, err)
		}
		predeclared[key] = starlarkVal
	}

	globals, err := starlark.ExecFile(thread, filename, script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	output := make(map[string]interface{})
	for name, val := range globals {
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		if _, ok := val.(*starlark.Function); ok {
			continue
		}
		goVal, err := FromStarlark(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert output %s: %w", name, err)
		}
		output[name] = goVal
	}

	return &StarlarkResult{
		Output:        output,
		ExecutionTime: time.Since(startTime),
	}, nil
}

// EvaluatePipeline runs script and decodes its "pipeline" global.
func (se *StarlarkEvaluator) EvaluatePipeline(ctx context.Context, filename, script string) (*Pipeline, error) {
	result, err := se.Evaluate(ctx, filename, script, nil)
	if err != nil {
		return nil, err
	}

	raw, ok := result.Output["pipeline"]
	if !ok {
		return nil, fmt.Errorf("%s: script does not define a pipeline global", filename)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to encode pipeline: %w", filename, err)
	}
	var p Pipeline
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%s: failed to decode pipeline: %w", filename, err)
	}
	return &p, nil
}

// ToStarlark converts a Go value to a Starlark value.
func ToStarlark(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case starlark.Value:
		return val, nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int32:
		return starlark.MakeInt64(int64(val)), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case uint64:
		return starlark.MakeUint64(val), nil
	case float32:
		return starlark.Float(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case fmt.Stringer:
		return starlark.String(val.String()), nil
	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil
	case []int:
		list := make([]starlark.Value, len(val))
		for i, n := range val {
			list[i] = starlark.MakeInt(n)
		}
		return starlark.NewList(list), nil
	case []int32:
		list := make([]starlark.Value, len(val))
		for i, n := range val {
			list[i] = starlark.MakeInt64(int64(n))
		}
		return starlark.NewList(list), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := ToStarlark(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		dict := starlark.NewDict(len(val))
		for _, k := range keys {
			starlarkVal, err := ToStarlark(val[k])
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// FromStarlark converts a Starlark value to a Go value. Integers become
// int64, lists []interface{}, dicts and structs map[string]interface{}.
func FromStarlark(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := FromStarlark(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case starlark.Tuple:
		list := make([]interface{}, len(val))
		for i, item := range val {
			goItem, err := FromStarlark(item)
			if err != nil {
				return nil, err
			}
			list[i] = goItem
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]interface{})
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := FromStarlark(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := FromStarlark(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
