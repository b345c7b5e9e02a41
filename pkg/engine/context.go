package engine

import (
	"errors"
	"sort"
)

// TaskContext is the blackboard shared by the engine, the scene index and
// every task of a frame. Keys are unique; setting an existing key replaces
// its value in place.
//
// A TaskContext is not safe for concurrent use. The engine only touches it
// from one goroutine at a time, and collaborators must not retain it past
// the call they received it in.
type TaskContext struct {
	entries map[Token]Value
}

// NewTaskContext creates an empty blackboard.
func NewTaskContext() *TaskContext {
	return &TaskContext{entries: make(map[Token]Value)}
}

// Set upserts the value stored under key.
func (tc *TaskContext) Set(key Token, value Value) {
	tc.entries[key] = value
}

// SetAny is a shorthand for Set(key, NewValue(v)).
func (tc *TaskContext) SetAny(key Token, v any) {
	tc.entries[key] = NewValue(v)
}

// Get returns the value stored under key and whether it was present.
func (tc *TaskContext) Get(key Token) (Value, bool) {
	v, ok := tc.entries[key]
	return v, ok
}

// Has reports whether key is present.
func (tc *TaskContext) Has(key Token) bool {
	_, ok := tc.entries[key]
	return ok
}

// Remove deletes key. Removing an absent key is a no-op.
func (tc *TaskContext) Remove(key Token) {
	delete(tc.entries, key)
}

// Clear removes every entry.
func (tc *TaskContext) Clear() {
	clear(tc.entries)
}

// Len returns the number of entries.
func (tc *TaskContext) Len() int {
	return len(tc.entries)
}

// Keys returns the keys sorted by their string form.
func (tc *TaskContext) Keys() []Token {
	keys := make([]Token, 0, len(tc.entries))
	for k := range tc.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// GetAs returns the value stored under key as T. ok is false when the key is
// absent, which is not an error. A present value of another type returns a
// usage error.
func GetAs[T any](tc *TaskContext, key Token) (val T, ok bool, err error) {
	v, ok := tc.entries[key]
	if !ok {
		return val, false, nil
	}
	val, err = ValueAs[T](v)
	if err != nil {
		var e *EngineError
		if errors.As(err, &e) {
			e.WithDetail("key", key.String())
		}
		return val, true, err
	}
	return val, true, nil
}
