// © Copyright 2026, The mlink Authors
// SPDX-License-Identifier: Apache-2.0

package mlink

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

func init() {
	RegisterBridged(reflect.TypeFor[Matrix](), func() SerializedGetter {
		return &matrixGetter{}
	})
}

// Matrix is a dense numeric array bridged to the engine's native
// multidimensional arrays. Data is flat in column-major order, matching the
// engine's storage layout.
//
// Matrix values cross the engine boundary through the custom invocation
// strategy: the setter writes the flat data into a scratch variable and
// reshapes it into the target name, so the engine sees a native array rather
// than an opaque foreign value.
type Matrix struct {
	Dims []int
	Data []float64
}

// NewMatrix builds a matrix from column-major flat data. The product of dims
// must equal len(data).
func NewMatrix(dims []int, data []float64) (Matrix, error) {
	if len(dims) == 0 {
		return Matrix{}, fmt.Errorf("mlink: matrix requires at least one dimension")
	}
	n := 1
	for _, d := range dims {
		if d < 0 {
			return Matrix{}, fmt.Errorf("mlink: negative matrix dimension %d", d)
		}
		n *= d
	}
	if n != len(data) {
		return Matrix{}, fmt.Errorf("mlink: matrix dimensions %v require %d elements, have %d", dims, n, len(data))
	}
	return Matrix{Dims: append([]int(nil), dims...), Data: append([]float64(nil), data...)}, nil
}

// NumElements returns the total element count.
func (m Matrix) NumElements() int { return len(m.Data) }

// At returns the element at the given zero-based indices, one per dimension,
// following column-major order.
func (m Matrix) At(indices ...int) float64 {
	if len(indices) != len(m.Dims) {
		panic(fmt.Sprintf("mlink: matrix with %d dimensions indexed with %d indices", len(m.Dims), len(indices)))
	}
	offset := 0
	stride := 1
	for i, idx := range indices {
		if idx < 0 || idx >= m.Dims[i] {
			panic(fmt.Sprintf("mlink: matrix index %d out of range for dimension %d of extent %d", idx, i, m.Dims[i]))
		}
		offset += idx * stride
		stride *= m.Dims[i]
	}
	return m.Data[offset]
}

// Equal reports whether two matrices have identical shape and elements.
func (m Matrix) Equal(o Matrix) bool {
	if len(m.Dims) != len(o.Dims) || len(m.Data) != len(o.Data) {
		return false
	}
	for i, d := range m.Dims {
		if o.Dims[i] != d {
			return false
		}
	}
	for i, v := range m.Data {
		if o.Data[i] != v {
			return false
		}
	}
	return true
}

// SerializedSetter implements [BridgedValue].
func (m Matrix) SerializedSetter() SerializedSetter {
	return &matrixSetter{m: m}
}

type matrixSetter struct {
	m Matrix
}

func (s *matrixSetter) SetInEngine(ctx context.Context, eng Engine, name string) error {
	// The scratch name goes through the same bound-name check as generated
	// argument names, so an existing variable is never clobbered.
	scratchNames, err := generateNames(ctx, eng, name+"_flat_", 1)
	if err != nil {
		return err
	}
	scratch := scratchNames[0]
	if err := eng.SetVar(ctx, scratch, append([]float64(nil), s.m.Data...)); err != nil {
		return err
	}

	dims := make([]string, len(s.m.Dims))
	for i, d := range s.m.Dims {
		dims[i] = strconv.Itoa(d)
	}
	err = eng.Eval(ctx, fmt.Sprintf("%s = reshape(%s, %s);", name, scratch, strings.Join(dims, ", ")))

	// The scratch variable is cleared on both paths; a cleanup failure is
	// surfaced only when the reshape itself succeeded.
	if clearErr := eng.Eval(ctx, "clear "+scratch); err == nil {
		err = clearErr
	}
	return err
}

// matrixGetter pulls an engine-side array back into a Matrix. The engine
// channel represents multidimensional arrays as Matrix values and vectors as
// []float64; scalars collapse to float64.
type matrixGetter struct {
	value any
}

func (g *matrixGetter) GetFromEngine(ctx context.Context, eng Engine, name string) error {
	v, err := eng.GetVar(ctx, name)
	if err != nil {
		return err
	}
	g.value = v
	return nil
}

func (g *matrixGetter) Deserialize() (any, error) {
	switch v := g.value.(type) {
	case Matrix:
		return v, nil
	case []float64:
		return NewMatrix([]int{1, len(v)}, v)
	case float64:
		return NewMatrix([]int{1, 1}, []float64{v})
	default:
		return nil, &IncompatibleReturnError{
			Declared: reflect.TypeFor[Matrix](),
			Actual:   reflect.TypeOf(g.value),
		}
	}
}
