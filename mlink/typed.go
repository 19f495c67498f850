// © Copyright 2026, The mlink Authors
// SPDX-License-Identifier: Apache-2.0

package mlink

import (
	"context"
	"fmt"
	"reflect"
)

// Typed returns a strongly typed adapter for an invocable function. The
// returned func invokes the function by id and asserts the coerced result to
// R. The function's declared return shape is checked against R at adaptation
// time, so mismatches surface before the first call.
func Typed[R any](s *FuncSet, id string) (func(context.Context, ...any) (R, error), error) {
	d, ok := s.funcs[id]
	if !ok {
		return nil, &LinkError{Func: id,
			Reason: fmt.Sprintf("unknown function, available: %v", s.Functions())}
	}
	if d.nargout == 0 {
		return nil, &LinkError{Func: id,
			Reason: "function declares no results, use TypedVoid"}
	}
	want := reflect.TypeFor[R]()
	if got := d.adapterResultType(); !got.AssignableTo(want) {
		return nil, &LinkError{Func: id,
			Reason: fmt.Sprintf("declared result type %v is not assignable to %v", got, want)}
	}

	return func(ctx context.Context, args ...any) (R, error) {
		var zero R
		out, err := s.Invoke(ctx, id, args...)
		if err != nil {
			return zero, err
		}
		if out == nil {
			return zero, nil
		}
		r, ok := out.(R)
		if !ok {
			return zero, &IncompatibleReturnError{
				Declared: want,
				Actual:   reflect.TypeOf(out),
				Reason:   "result does not match adapter type",
			}
		}
		return r, nil
	}, nil
}

// TypedVoid returns a strongly typed adapter for a function with no results.
func TypedVoid(s *FuncSet, id string) (func(context.Context, ...any) error, error) {
	d, ok := s.funcs[id]
	if !ok {
		return nil, &LinkError{Func: id,
			Reason: fmt.Sprintf("unknown function, available: %v", s.Functions())}
	}
	if d.nargout != 0 {
		return nil, &LinkError{Func: id,
			Reason: fmt.Sprintf("function declares %d results, void adapter requires 0", d.nargout)}
	}

	return func(ctx context.Context, args ...any) error {
		_, err := s.Invoke(ctx, id, args...)
		return err
	}, nil
}

// adapterResultType is the static type an adapter for this descriptor must
// accept: the single declared type when one result is produced, otherwise
// the declared aggregate or slice shape.
func (d *descriptor) adapterResultType() reflect.Type {
	if d.nargout == 1 {
		return d.returnTypes[0]
	}
	return d.returnShape
}
