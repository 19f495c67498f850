// © Copyright 2026, The mlink Authors
// SPDX-License-Identifier: Apache-2.0

package mlink

import "context"

// Engine is the boundary to the remote scripting engine. It exposes the
// engine's native primitives: statement evaluation, call-by-name with
// positional arguments, and named variable access against one shared,
// engine-wide namespace.
//
// All methods are synchronous and may fail with a *EngineError, the engine's
// uniform invocation-failure condition. mlink never interprets or retries
// that condition; it always propagates to the caller. Implementations must be
// safe for concurrent use; invocations against the one logical remote
// execution context are serialized by the implementation.
type Engine interface {
	// Eval evaluates one statement, discarding any result.
	Eval(ctx context.Context, statement string) error

	// EvalReturning evaluates an expression expecting resultCount values.
	EvalReturning(ctx context.Context, expression string, resultCount int) ([]any, error)

	// Call invokes a named function with positional arguments and no results.
	Call(ctx context.Context, name string, args ...any) error

	// CallReturning invokes a named function with positional arguments,
	// expecting resultCount values.
	CallReturning(ctx context.Context, name string, resultCount int, args ...any) ([]any, error)

	// SetVar binds a value to a name in the engine's namespace.
	SetVar(ctx context.Context, name string, value any) error

	// GetVar reads the value bound to a name in the engine's namespace.
	GetVar(ctx context.Context, name string) (any, error)

	// BoundNames lists every name currently bound in the engine's namespace.
	BoundNames(ctx context.Context) ([]string, error)
}
