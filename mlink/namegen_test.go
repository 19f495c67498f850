// © Copyright 2026, The mlink Authors
// SPDX-License-Identifier: Apache-2.0

package mlink

import (
	"context"
	"slices"
	"testing"
)

// stubEngine is a minimal Engine for white-box tests that only need a
// namespace listing or must never be called at all.
type stubEngine struct {
	bound    []string
	boundErr error
}

func (s *stubEngine) Eval(ctx context.Context, statement string) error { return nil }
func (s *stubEngine) EvalReturning(ctx context.Context, expr string, n int) ([]any, error) {
	return nil, nil
}
func (s *stubEngine) Call(ctx context.Context, name string, args ...any) error { return nil }
func (s *stubEngine) CallReturning(ctx context.Context, name string, n int, args ...any) ([]any, error) {
	return nil, nil
}
func (s *stubEngine) SetVar(ctx context.Context, name string, value any) error { return nil }
func (s *stubEngine) GetVar(ctx context.Context, name string) (any, error)     { return nil, nil }
func (s *stubEngine) BoundNames(ctx context.Context) ([]string, error) {
	return s.bound, s.boundErr
}

func TestGenerateNamesFresh(t *testing.T) {
	eng := &stubEngine{}
	names, err := generateNames(context.Background(), eng, argNamePrefix, 3)
	if err != nil {
		t.Fatalf("generateNames: %v", err)
	}
	want := []string{"args_0", "args_1", "args_2"}
	if !slices.Equal(names, want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
}

func TestGenerateNamesSkipsBound(t *testing.T) {
	eng := &stubEngine{bound: []string{"args_0", "args_2", "x"}}
	names, err := generateNames(context.Background(), eng, argNamePrefix, 3)
	if err != nil {
		t.Fatalf("generateNames: %v", err)
	}
	want := []string{"args_1", "args_3", "args_4"}
	if !slices.Equal(names, want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
}

func TestGenerateNamesZeroCountSkipsNamespaceQuery(t *testing.T) {
	eng := &stubEngine{boundErr: &EngineError{Op: "bound_names", Message: "must not be called"}}
	names, err := generateNames(context.Background(), eng, returnNamePrefix, 0)
	if err != nil {
		t.Fatalf("generateNames: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("names = %v, want none", names)
	}
}

func TestGenerateNamesPropagatesNamespaceError(t *testing.T) {
	eng := &stubEngine{boundErr: &EngineError{Op: "bound_names", Message: "boom"}}
	if _, err := generateNames(context.Background(), eng, argNamePrefix, 1); err == nil {
		t.Fatal("expected namespace error")
	}
}

func TestBuildCallStatement(t *testing.T) {
	cases := []struct {
		name        string
		argNames    []string
		returnNames []string
		want        string
	}{
		{"f", nil, nil, "f();"},
		{"f", []string{"args_0"}, nil, "f(args_0);"},
		{"f", []string{"args_0", "args_1"}, []string{"return_0"}, "[return_0] = f(args_0, args_1);"},
		{"g", []string{"args_0"}, []string{"return_0", "return_1"}, "[return_0, return_1] = g(args_0);"},
	}
	for _, tc := range cases {
		if got := buildCallStatement(tc.name, tc.argNames, tc.returnNames); got != tc.want {
			t.Errorf("buildCallStatement(%q, %v, %v) = %q, want %q",
				tc.name, tc.argNames, tc.returnNames, got, tc.want)
		}
	}
}
