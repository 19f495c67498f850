// © Copyright 2026, The mlink Authors
// SPDX-License-Identifier: Apache-2.0

package mlink

import (
	"reflect"
	"strconv"
)


// coerceReturn converts a raw result vector into the value the caller's
// declared result shape expects.
//
// A zero-length vector is returned as-is (void callers never inspect it). A
// single value is coerced to the sole declared return type and returned
// unwrapped. Longer vectors populate a container shaped like the declared
// slice type — or a generic value sequence wrapped into the declared
// aggregate — with each position coerced independently and nil positions
// passed through.
func coerceReturn(result []any, d *descriptor) (any, error) {
	switch {
	case len(result) == 0:
		return result, nil

	case len(result) == 1:
		return coerceValue(result[0], d.returnTypes[0])

	default:
		if len(result) > len(d.returnTypes) {
			return nil, &IncompatibleReturnError{
				Reason: "engine returned " + strconv.Itoa(len(result)) +
					" values for a declared arity of " + strconv.Itoa(len(d.returnTypes)),
			}
		}
		isAgg := isAggregateType(d.returnShape)

		var container reflect.Value
		if isAgg {
			container = reflect.ValueOf(make([]any, len(result)))
		} else {
			container = reflect.MakeSlice(d.returnShape, len(result), len(result))
		}

		for i, v := range result {
			if v == nil {
				continue
			}
			coerced, err := coerceValue(v, d.returnTypes[i])
			if err != nil {
				return nil, err
			}
			if coerced != nil {
				container.Index(i).Set(reflect.ValueOf(coerced))
			}
		}

		if isAgg {
			return newAggregate(d.returnShape, container.Interface().([]any))
		}
		return container.Interface(), nil
	}
}

// coerceValue converts one raw engine value to one declared return type.
// nil passes through unchanged. Primitive declared types accept the matching
// scalar or a one-element slice of it; all other types require the actual
// value to be assignment-compatible with the declaration.
func coerceValue(value any, declared reflect.Type) (any, error) {
	if value == nil {
		return nil, nil
	}
	if isPrimitiveKind(declared) {
		return coercePrimitive(value, declared)
	}

	actual := reflect.TypeOf(value)
	if !actual.AssignableTo(declared) {
		return nil, &IncompatibleReturnError{Declared: declared, Actual: actual}
	}
	return value, nil
}

// coercePrimitive accepts either the exact scalar form of the declared
// primitive or a slice of it holding exactly one element, which is unwrapped
// to that element. Anything else is an incompatible return.
func coercePrimitive(value any, declared reflect.Type) (any, error) {
	actual := reflect.TypeOf(value)

	if actual == declared {
		return value, nil
	}

	if actual.Kind() == reflect.Slice && actual.Elem() == declared {
		rv := reflect.ValueOf(value)
		if rv.Len() != 1 {
			return nil, &IncompatibleReturnError{
				Declared: declared,
				Actual:   actual,
				Reason:   "slice of " + declared.String() + " does not hold exactly 1 value",
			}
		}
		return rv.Index(0).Interface(), nil
	}

	return nil, &IncompatibleReturnError{Declared: declared, Actual: actual}
}
