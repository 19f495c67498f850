// © Copyright 2026, The mlink Authors
// SPDX-License-Identifier: Apache-2.0

package mlink

import "context"

// Strategy strings reported in InvokeInfo.Strategy.
const (
	StrategyStandard = "standard"
	StrategyCustom   = "custom"
)

// InvokeHook provides observability callpoints around each dispatched call.
// Implementations must be safe for concurrent use; a FuncSet may be invoked
// from many goroutines at once.
type InvokeHook interface {
	OnInvokeStart(ctx context.Context, info InvokeInfo) (context.Context, HookToken)
	OnInvokeEnd(ctx context.Context, token HookToken, info InvokeInfo, stats *CallStatistics, err error)
}

// HookToken is an opaque value returned by OnInvokeStart and passed back to
// OnInvokeEnd. Only meaningful to the InvokeHook that created it.
type HookToken interface{}

// InvokeInfo carries call metadata passed to hooks.
type InvokeInfo struct {
	Func       string // call-site identifier
	EngineFunc string // engine-side function name
	Strategy   string // StrategyStandard or StrategyCustom
	Nargout    int
}

// CallStatistics holds per-invocation counters for engine namespace traffic.
type CallStatistics struct {
	NamesGenerated int64 // variable names allocated in the engine namespace
	VarsBound      int64 // arguments materialized as engine variables
	VarsRead       int64 // return variables read back
	VarsCleared    int64 // generated variables cleared during cleanup
	EvalStatements int64 // generated call statements evaluated
}
