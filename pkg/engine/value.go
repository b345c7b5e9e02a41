package engine

import (
	"fmt"
	"reflect"
)

// Value is a dynamically-typed container for blackboard data. It can hold
// scalars, handles, slices, maps or any other Go value. Typed access goes
// through ValueAs, which reports a mismatch as an error instead of panicking.
type Value struct {
	v any
}

// NewValue wraps v.
func NewValue(v any) Value {
	return Value{v: v}
}

// IsEmpty reports whether the value holds nothing.
func (v Value) IsEmpty() bool {
	return v.v == nil
}

// Any returns the held value.
func (v Value) Any() any {
	return v.v
}

// TypeName returns the Go type name of the held value, or "empty".
func (v Value) TypeName() string {
	if v.v == nil {
		return "empty"
	}
	return reflect.TypeOf(v.v).String()
}

// String implements fmt.Stringer.
func (v Value) String() string {
	if v.v == nil {
		return "<empty>"
	}
	return fmt.Sprintf("%v", v.v)
}

// IsHolding reports whether v holds a value assignable to T.
func IsHolding[T any](v Value) bool {
	_, ok := v.v.(T)
	return ok
}

// ValueAs returns the held value as T. An empty value yields ErrEmptyValue and
// a value of another type yields ErrTypeMismatch, both usage errors.
func ValueAs[T any](v Value) (T, error) {
	var zero T
	if v.v == nil {
		return zero, NewUsageError("value is empty", nil).
			WithCode(ErrCodeEmptyValue).
			WithDetail("requested", reflect.TypeFor[T]().String())
	}
	out, ok := v.v.(T)
	if !ok {
		return zero, NewUsageError(
			fmt.Sprintf("value holds %s, not %s", v.TypeName(), reflect.TypeFor[T]()),
			nil,
		).WithCode(ErrCodeTypeMismatch).
			WithDetail("held", v.TypeName()).
			WithDetail("requested", reflect.TypeFor[T]().String())
	}
	return out, nil
}
