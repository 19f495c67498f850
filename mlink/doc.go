// © Copyright 2026, The mlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package mlink links typed Go calls to functions running inside a remote
// MATLAB-compatible numeric scripting engine.
//
// The engine itself is dynamically typed and reachable only through an
// evaluate / call-by-name protocol (the [Engine] interface). mlink lets a
// caller declare, once, a set of function contracts — name or script-file
// location, parameter types, return arity and types, declared failure mode —
// validate them eagerly, and then invoke each function as an ordinary typed
// call.
//
// # Linking
//
// A binding set is a slice of [FuncDef] values, written in Go or loaded from
// a YAML document with [LoadDefs]. [Link] validates every definition against
// the filesystem (and, for script files packaged in .zip or .tar.gz archives,
// extracts them first), resolves each to an immutable descriptor, and returns
// a [FuncSet]. Validation is fail-fast and fail-closed: one malformed
// definition aborts linking of the entire set, and no call can ever be
// dispatched through a set that failed to link.
//
// # Invocation
//
// [FuncSet.Invoke] dispatches one call. Functions whose contracts involve
// only plain values map directly onto the engine's call-by-name primitive.
// Functions touching bridged values ([BridgedValue] implementations such as
// [VarRef] and [Matrix]) use a generated-statement protocol instead: every
// argument is materialized into a collision-free generated variable in the
// engine's shared namespace, a statement of the form
//
//	[return_0, return_1] = f(args_0, args_1);
//
// is evaluated, results are read back per position, and the generated
// variables are cleared — on every exit path — before the engine's working
// directory is restored.
//
// Raw engine results are coerced back to the declared return shape: a single
// value is returned unwrapped, multiple values populate a slice or one of the
// [Returns2]-style fixed-arity aggregates, and primitives accept either the
// matching scalar or a one-element slice of it.
//
// # Engine transport
//
// Any implementation of [Engine] can back a [FuncSet]. The package ships one:
// [RemoteEngine], which drives an engine host over an Arrow IPC
// request/response protocol on an io.Reader/io.Writer pair (typically
// subprocess stdio). [Serve] and [RunStdio] implement the host side of the
// same protocol for any Engine.
//
// # Observability
//
// An [InvokeHook] may be attached to a FuncSet to observe every dispatch
// (strategy chosen, variables bound and cleared, statements evaluated). The
// mlink/otel subpackage implements the hook with OpenTelemetry tracing and
// metrics.
package mlink
