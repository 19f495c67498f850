// © Copyright 2026, The mlink Authors
// SPDX-License-Identifier: Apache-2.0

package mlink_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/mlengine/mlink/enginetest"
	"github.com/mlengine/mlink/mlink"
)

func TestNewVarRefValidation(t *testing.T) {
	for _, name := range []string{"x", "data", "x1", "my_var", "A_9"} {
		if _, err := mlink.NewVarRef(name); err != nil {
			t.Errorf("NewVarRef(%q): %v", name, err)
		}
	}
	for _, name := range []string{"", "1x", "_x", "a-b", "a b", "a;clear"} {
		if _, err := mlink.NewVarRef(name); err == nil {
			t.Errorf("NewVarRef(%q) accepted, want error", name)
		}
	}
}

func TestVarRefSetterEmitsAssignment(t *testing.T) {
	eng := enginetest.New()
	ctx := context.Background()
	if err := eng.SetVar(ctx, "source", 11.0); err != nil {
		t.Fatalf("SetVar: %v", err)
	}

	ref, err := mlink.NewVarRef("source")
	if err != nil {
		t.Fatalf("NewVarRef: %v", err)
	}
	if err := ref.SerializedSetter().SetInEngine(ctx, eng, "target"); err != nil {
		t.Fatalf("SetInEngine: %v", err)
	}
	if v, _ := eng.Var("target"); v != 11.0 {
		t.Fatalf("target = %v, want 11", v)
	}
}

func TestNewMatrixValidation(t *testing.T) {
	if _, err := mlink.NewMatrix(nil, nil); err == nil {
		t.Error("NewMatrix with no dimensions accepted")
	}
	if _, err := mlink.NewMatrix([]int{2, 2}, []float64{1}); err == nil {
		t.Error("NewMatrix with mismatched element count accepted")
	}
	if _, err := mlink.NewMatrix([]int{-1}, nil); err == nil {
		t.Error("NewMatrix with negative dimension accepted")
	}
}

func TestMatrixAtColumnMajor(t *testing.T) {
	// Column-major 2x3: columns are (1,2), (3,4), (5,6).
	m, err := mlink.NewMatrix([]int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("NewMatrix: %v", err)
	}
	if got := m.At(0, 0); got != 1 {
		t.Errorf("At(0,0) = %v, want 1", got)
	}
	if got := m.At(1, 0); got != 2 {
		t.Errorf("At(1,0) = %v, want 2", got)
	}
	if got := m.At(0, 2); got != 5 {
		t.Errorf("At(0,2) = %v, want 5", got)
	}
	if got := m.At(1, 2); got != 6 {
		t.Errorf("At(1,2) = %v, want 6", got)
	}
}

func TestMatrixSetterReshapesAndClearsScratch(t *testing.T) {
	eng := enginetest.New()
	ctx := context.Background()

	m, err := mlink.NewMatrix([]int{2, 2}, []float64{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("NewMatrix: %v", err)
	}
	if err := m.SerializedSetter().SetInEngine(ctx, eng, "grid"); err != nil {
		t.Fatalf("SetInEngine: %v", err)
	}

	v, bound := eng.Var("grid")
	if !bound {
		t.Fatal("grid not bound")
	}
	if got := v.(mlink.Matrix); !got.Equal(m) {
		t.Fatalf("grid = %#v, want %#v", got, m)
	}
	if _, bound := eng.Var("grid_flat_0"); bound {
		t.Fatal("scratch variable not cleared")
	}
}

func TestMatrixSetterScratchSkipsBoundName(t *testing.T) {
	eng := enginetest.New()
	ctx := context.Background()
	if err := eng.SetVar(ctx, "grid_flat_0", "precious"); err != nil {
		t.Fatalf("SetVar: %v", err)
	}

	m, err := mlink.NewMatrix([]int{1, 2}, []float64{1, 2})
	if err != nil {
		t.Fatalf("NewMatrix: %v", err)
	}
	if err := m.SerializedSetter().SetInEngine(ctx, eng, "grid"); err != nil {
		t.Fatalf("SetInEngine: %v", err)
	}

	if v, _ := eng.Var("grid_flat_0"); v != "precious" {
		t.Fatalf("grid_flat_0 = %v, want precious", v)
	}
	if _, bound := eng.Var("grid_flat_1"); bound {
		t.Fatal("scratch variable not cleared")
	}
	if v, bound := eng.Var("grid"); !bound || !v.(mlink.Matrix).Equal(m) {
		t.Fatalf("grid = %#v, want %#v", v, m)
	}
}

func TestMatrixGetterAcceptsVectorAndScalar(t *testing.T) {
	eng := enginetest.New()
	ctx := context.Background()

	def := mlink.FuncDef{
		Func:    "produce",
		Name:    "produce",
		Nargout: 1,
		Returns: reflect.TypeFor[mlink.Matrix](),
		Errors:  []string{mlink.ErrorContractEngine},
	}

	cases := []struct {
		name  string
		value any
		dims  []int
	}{
		{"vector", []float64{1, 2, 3}, []int{1, 3}},
		{"scalar", 5.0, []int{1, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eng.Register("produce", func(args []any, nargout int) ([]any, error) {
				return []any{tc.value}, nil
			})
			set, err := mlink.Link(eng, def)
			if err != nil {
				t.Fatalf("Link: %v", err)
			}
			out, err := set.Invoke(ctx, "produce")
			if err != nil {
				t.Fatalf("Invoke: %v", err)
			}
			m := out.(mlink.Matrix)
			if len(m.Dims) != len(tc.dims) || m.Dims[0] != tc.dims[0] {
				t.Fatalf("dims = %v, want %v", m.Dims, tc.dims)
			}
		})
	}
}

func TestMatrixGetterRejectsForeignValue(t *testing.T) {
	eng := enginetest.New()
	eng.Register("produce", func(args []any, nargout int) ([]any, error) {
		return []any{"not numeric"}, nil
	})
	set, err := mlink.Link(eng, mlink.FuncDef{
		Func:    "produce",
		Name:    "produce",
		Nargout: 1,
		Returns: reflect.TypeFor[mlink.Matrix](),
		Errors:  []string{mlink.ErrorContractEngine},
	})
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if _, err := set.Invoke(context.Background(), "produce"); !errors.Is(err, mlink.ErrIncompatibleReturn) {
		t.Fatalf("err = %v, want incompatible return", err)
	}
}
