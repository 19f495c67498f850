// © Copyright 2026, The mlink Authors
// SPDX-License-Identifier: Apache-2.0

package mlink

import (
	"reflect"
	"strings"
	"testing"
)

func TestLoadDefs(t *testing.T) {
	const doc = `
root: /opt/scripts
functions:
  area:
    relative_path: geometry/area.m
    nargout: 1
    returns: float64
    params: [float64, float64]
    errors: [engine_error]
  bounds:
    name: minmax
    nargout: 2
    returns: "[]float64"
    errors: [engine_error]
  reset:
    name: reset_state
    errors: [engine_error]
`
	defs, err := LoadDefs(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadDefs: %v", err)
	}
	if len(defs) != 3 {
		t.Fatalf("len(defs) = %d, want 3", len(defs))
	}

	// Sorted by call-site identifier.
	if defs[0].Func != "area" || defs[1].Func != "bounds" || defs[2].Func != "reset" {
		t.Fatalf("ids = %v %v %v", defs[0].Func, defs[1].Func, defs[2].Func)
	}

	area := defs[0]
	if area.RelativePath != "geometry/area.m" || area.Root != "/opt/scripts" {
		t.Fatalf("area location = %q in %q", area.RelativePath, area.Root)
	}
	if area.Returns != reflect.TypeFor[float64]() || len(area.Params) != 2 {
		t.Fatalf("area types = %v %v", area.Returns, area.Params)
	}

	bounds := defs[1]
	if bounds.Returns != reflect.TypeFor[[]float64]() || bounds.Nargout != 2 {
		t.Fatalf("bounds shape = %v, nargout %d", bounds.Returns, bounds.Nargout)
	}

	reset := defs[2]
	if reset.Returns != nil || reset.Nargout != 0 {
		t.Fatalf("reset shape = %v, nargout %d", reset.Returns, reset.Nargout)
	}
}

func TestLoadDefsUnknownType(t *testing.T) {
	const doc = `
functions:
  f:
    name: f
    nargout: 1
    returns: quaternion
    errors: [engine_error]
`
	_, err := LoadDefs(strings.NewReader(doc))
	if err == nil || !strings.Contains(err.Error(), "quaternion") {
		t.Fatalf("err = %v, want unknown type error", err)
	}
}

func TestLoadDefsVoidPositionalRejected(t *testing.T) {
	const doc = `
functions:
  f:
    name: f
    nargout: 1
    returns: float64
    params: [void]
    errors: [engine_error]
`
	_, err := LoadDefs(strings.NewReader(doc))
	if err == nil || !strings.Contains(err.Error(), "void") {
		t.Fatalf("err = %v, want void parameter error", err)
	}
}

func TestLoadDefsEmpty(t *testing.T) {
	if _, err := LoadDefs(strings.NewReader("functions: {}")); err == nil {
		t.Fatal("expected error for empty binding set")
	}
}

func TestRegisterTypeName(t *testing.T) {
	type sample struct{ X int }
	RegisterTypeName("defs_test_sample", reflect.TypeFor[sample]())

	got, err := lookupTypeName("[]defs_test_sample")
	if err != nil {
		t.Fatalf("lookupTypeName: %v", err)
	}
	if got != reflect.TypeFor[[]sample]() {
		t.Fatalf("type = %v, want []sample", got)
	}
}
