// © Copyright 2026, The mlink Authors
// SPDX-License-Identifier: Apache-2.0

package mlink

import (
	"fmt"
	"reflect"
)

// Fixed-arity return aggregates. A function declared with nargout N > 1 may
// shape its result either as a slice or as one of these structs, which keep
// each position independently typed. Aggregate result shapes require explicit
// per-position return types in the FuncDef, and the declared arity must match
// the aggregate's exactly.

// Returns2 aggregates a two-value result.
type Returns2[A, B any] struct {
	First  A
	Second B
}

// Returns3 aggregates a three-value result.
type Returns3[A, B, C any] struct {
	First  A
	Second B
	Third  C
}

// Returns4 aggregates a four-value result.
type Returns4[A, B, C, D any] struct {
	First  A
	Second B
	Third  C
	Fourth D
}

func (Returns2[A, B]) isReturnsAggregate()       {}
func (Returns3[A, B, C]) isReturnsAggregate()    {}
func (Returns4[A, B, C, D]) isReturnsAggregate() {}

type returnsAggregate interface {
	isReturnsAggregate()
}

var returnsAggregateType = reflect.TypeOf((*returnsAggregate)(nil)).Elem()

// isAggregateType reports whether t is an instantiation of one of the
// ReturnsN aggregates.
func isAggregateType(t reflect.Type) bool {
	return t != nil && t.Kind() == reflect.Struct && t.Implements(returnsAggregateType)
}

// aggregateArity returns the number of positions an aggregate type holds.
func aggregateArity(t reflect.Type) int {
	return t.NumField()
}

// newAggregate fills an aggregate of type t from per-position values.
// Nil positions leave the corresponding field at its zero value.
func newAggregate(t reflect.Type, values []any) (any, error) {
	if len(values) != t.NumField() {
		return nil, fmt.Errorf("mlink: aggregate %v holds %d values, have %d", t, t.NumField(), len(values))
	}
	agg := reflect.New(t).Elem()
	for i, v := range values {
		if v == nil {
			continue
		}
		agg.Field(i).Set(reflect.ValueOf(v))
	}
	return agg.Interface(), nil
}
