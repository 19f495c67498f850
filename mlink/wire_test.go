// © Copyright 2026, The mlink Authors
// SPDX-License-Identifier: Apache-2.0

package mlink_test

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/mlengine/mlink/enginetest"
	"github.com/mlengine/mlink/mlink"
)

// pipeEngine serves eng over an in-process pipe pair and returns a remote
// engine connected to it.
func pipeEngine(t *testing.T, eng mlink.Engine, opts ...mlink.RemoteOption) *mlink.RemoteEngine {
	t.Helper()
	hostIn, clientOut := io.Pipe()
	clientIn, hostOut := io.Pipe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		mlink.Serve(eng, hostIn, hostOut)
	}()
	t.Cleanup(func() {
		clientOut.Close()
		clientIn.Close()
		<-done
	})

	return mlink.NewRemoteEngine(clientIn, clientOut, opts...)
}

func TestRemoteEngineVariableRoundTrip(t *testing.T) {
	remote := pipeEngine(t, enginetest.New())
	ctx := context.Background()

	values := map[string]any{
		"scalar": 3.5,
		"vector": []float64{1, 2, 3},
		"label":  "calibration",
	}
	for name, v := range values {
		if err := remote.SetVar(ctx, name, v); err != nil {
			t.Fatalf("SetVar(%s): %v", name, err)
		}
	}
	for name, want := range values {
		got, err := remote.GetVar(ctx, name)
		if err != nil {
			t.Fatalf("GetVar(%s): %v", name, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("GetVar(%s) = %#v, want %#v", name, got, want)
		}
	}

	names, err := remote.BoundNames(ctx)
	if err != nil {
		t.Fatalf("BoundNames: %v", err)
	}
	if len(names) != 3 {
		t.Fatalf("BoundNames = %v", names)
	}
}

func TestRemoteEngineMatrixRoundTrip(t *testing.T) {
	remote := pipeEngine(t, enginetest.New())
	ctx := context.Background()

	m, err := mlink.NewMatrix([]int{2, 2}, []float64{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("NewMatrix: %v", err)
	}
	if err := remote.SetVar(ctx, "m", m); err != nil {
		t.Fatalf("SetVar: %v", err)
	}
	got, err := remote.GetVar(ctx, "m")
	if err != nil {
		t.Fatalf("GetVar: %v", err)
	}
	back, ok := got.(mlink.Matrix)
	if !ok || !back.Equal(m) {
		t.Fatalf("GetVar = %#v, want %#v", got, m)
	}
}

func TestRemoteEngineCallReturning(t *testing.T) {
	eng := enginetest.New()
	eng.Register("sum_pair", func(args []any, nargout int) ([]any, error) {
		return []any{args[0].(float64) + args[1].(float64)}, nil
	})
	remote := pipeEngine(t, eng)

	out, err := remote.CallReturning(context.Background(), "sum_pair", 1, 2.0, 3.0)
	if err != nil {
		t.Fatalf("CallReturning: %v", err)
	}
	if len(out) != 1 || out[0] != 5.0 {
		t.Fatalf("out = %#v, want [5]", out)
	}
}

func TestRemoteEngineEval(t *testing.T) {
	eng := enginetest.New()
	remote := pipeEngine(t, eng)
	ctx := context.Background()

	if err := remote.SetVar(ctx, "x", 4.0); err != nil {
		t.Fatalf("SetVar: %v", err)
	}
	if err := remote.Eval(ctx, "y = x;"); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	out, err := remote.EvalReturning(ctx, "y", 1)
	if err != nil {
		t.Fatalf("EvalReturning: %v", err)
	}
	if len(out) != 1 || out[0] != 4.0 {
		t.Fatalf("out = %#v, want [4]", out)
	}
}

func TestRemoteEngineErrorCrossesWire(t *testing.T) {
	remote := pipeEngine(t, enginetest.New())

	_, err := remote.GetVar(context.Background(), "missing")
	if !errors.Is(err, mlink.ErrEngine) {
		t.Fatalf("err = %v, want engine error", err)
	}
	var engErr *mlink.EngineError
	if !errors.As(err, &engErr) {
		t.Fatalf("err = %T, want *EngineError", err)
	}
	if engErr.Op != "get_var" || !strings.Contains(engErr.Message, "missing") {
		t.Fatalf("engErr = %+v", engErr)
	}
}

func TestRemoteEngineCompressedRequests(t *testing.T) {
	remote := pipeEngine(t, enginetest.New(), mlink.WithCompression())
	ctx := context.Background()

	big := make([]float64, 4096)
	for i := range big {
		big[i] = float64(i % 7)
	}
	if err := remote.SetVar(ctx, "big", big); err != nil {
		t.Fatalf("SetVar: %v", err)
	}
	got, err := remote.GetVar(ctx, "big")
	if err != nil {
		t.Fatalf("GetVar: %v", err)
	}
	if !reflect.DeepEqual(got, big) {
		t.Fatalf("round trip mismatch")
	}
}

func TestRemoteEngineContextCancelled(t *testing.T) {
	remote := pipeEngine(t, enginetest.New())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := remote.Eval(ctx, "x = 1;"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestLinkedInvokeOverWire(t *testing.T) {
	eng := enginetest.New()
	eng.Register("scale", func(args []any, nargout int) ([]any, error) {
		m := args[0].(mlink.Matrix)
		out := mlink.Matrix{Dims: append([]int(nil), m.Dims...), Data: make([]float64, len(m.Data))}
		for i, v := range m.Data {
			out.Data[i] = v * args[1].(float64)
		}
		return []any{out}, nil
	})
	remote := pipeEngine(t, eng)

	set, err := mlink.Link(remote, mlink.FuncDef{
		Func:    "scale",
		Name:    "scale",
		Nargout: 1,
		Returns: reflect.TypeFor[mlink.Matrix](),
		Params:  []reflect.Type{reflect.TypeFor[mlink.Matrix](), reflect.TypeFor[float64]()},
		Errors:  []string{mlink.ErrorContractEngine},
	})
	if err != nil {
		t.Fatalf("Link: %v", err)
	}

	m, _ := mlink.NewMatrix([]int{1, 3}, []float64{1, 2, 3})
	out, err := set.Invoke(context.Background(), "scale", m, 2.0)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	want, _ := mlink.NewMatrix([]int{1, 3}, []float64{2, 4, 6})
	if got := out.(mlink.Matrix); !got.Equal(want) {
		t.Fatalf("out = %#v, want %#v", got, want)
	}
}
