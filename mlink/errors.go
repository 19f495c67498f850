// © Copyright 2026, The mlink Authors
// SPDX-License-Identifier: Apache-2.0

package mlink

import (
	"fmt"
	"reflect"
)

// ErrEngine is a sentinel for use with errors.Is to check whether any error
// in a chain is an *EngineError.
var ErrEngine = &EngineError{}

// EngineError is the engine's uniform invocation-failure condition. It is
// raised by Engine implementations and always propagated verbatim to the
// caller — never retried, never swallowed.
type EngineError struct {
	Op      string // engine primitive that failed, e.g. "eval", "call"
	Message string
}

func (e *EngineError) Error() string {
	if e.Op == "" {
		return "engine: " + e.Message
	}
	return fmt.Sprintf("engine %s: %s", e.Op, e.Message)
}

// Is supports errors.Is by matching any *EngineError target.
func (e *EngineError) Is(target error) bool {
	_, ok := target.(*EngineError)
	return ok
}

// ErrLink is a sentinel for use with errors.Is to check whether any error in
// a chain is a *LinkError.
var ErrLink = &LinkError{}

// LinkError reports a validation failure for one function definition. It is
// raised once, at link time, and prevents any call through the set from ever
// being dispatched.
type LinkError struct {
	Func   string // call-site identifier of the offending definition
	Reason string
	Err    error // underlying cause, if any
}

func (e *LinkError) Error() string {
	msg := fmt.Sprintf("linking %q: %s", e.Func, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is supports errors.Is by matching any *LinkError target.
func (e *LinkError) Is(target error) bool {
	_, ok := target.(*LinkError)
	return ok
}

func (e *LinkError) Unwrap() error { return e.Err }

// ErrIncompatibleReturn is a sentinel for use with errors.Is to check whether
// any error in a chain is an *IncompatibleReturnError.
var ErrIncompatibleReturn = &IncompatibleReturnError{}

// IncompatibleReturnError reports a mismatch between the type a function
// actually returned and the type its contract declares. It is detected
// locally at the call boundary, is always fatal to that call, and is never
// silently widened.
type IncompatibleReturnError struct {
	Declared reflect.Type
	Actual   reflect.Type
	Reason   string // set when the mismatch is structural rather than a type pair
}

func (e *IncompatibleReturnError) Error() string {
	if e.Reason != "" {
		return "incompatible return: " + e.Reason
	}
	return fmt.Sprintf("incompatible return: declared type %v, returned type %v", e.Declared, e.Actual)
}

// Is supports errors.Is by matching any *IncompatibleReturnError target.
func (e *IncompatibleReturnError) Is(target error) bool {
	_, ok := target.(*IncompatibleReturnError)
	return ok
}
