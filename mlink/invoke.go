// © Copyright 2026, The mlink Authors
// SPDX-License-Identifier: Apache-2.0

package mlink

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Generated variable name prefixes. The two prefixes are disjoint so
// argument and return names can never shadow each other.
const (
	argNamePrefix    = "args_"
	returnNamePrefix = "return_"
)

// Invoke dispatches one typed call through the linked set. The raw engine
// results are coerced to the declared result shape: void calls return the
// empty result vector, single-value calls return the value unwrapped, and
// multi-value calls return a slice or aggregate.
//
// Errors raised by the engine propagate unchanged; a result that does not
// match the declared contract raises an error wrapping [ErrIncompatibleReturn].
func (s *FuncSet) Invoke(ctx context.Context, fn string, args ...any) (any, error) {
	d, ok := s.funcs[fn]
	if !ok {
		return nil, fmt.Errorf("mlink: unknown function %q (linked functions: %v)", fn, s.Functions())
	}
	if len(args) != len(d.params) {
		return nil, fmt.Errorf("mlink: %s declares %d parameters, called with %d arguments",
			fn, len(d.params), len(args))
	}

	info := InvokeInfo{
		Func:       d.fn,
		EngineFunc: d.name,
		Strategy:   StrategyStandard,
		Nargout:    d.nargout,
	}
	if d.usesBridged {
		info.Strategy = StrategyCustom
	}
	stats := &CallStatistics{}

	var token HookToken
	hookActive := false
	if s.hook != nil {
		func() {
			defer func() {
				if rv := recover(); rv != nil {
					slog.Error("invoke hook start panic", "err", rv)
				}
			}()
			var hookCtx context.Context
			hookCtx, token = s.hook.OnInvokeStart(ctx, info)
			if hookCtx != nil {
				ctx = hookCtx
			}
			hookActive = true
		}()
	}

	result, err := s.dispatch(ctx, d, args, stats)

	if hookActive {
		func() {
			defer func() {
				if rv := recover(); rv != nil {
					slog.Error("invoke hook end panic", "err", rv)
				}
			}()
			s.hook.OnInvokeEnd(ctx, token, info, stats, err)
		}()
	}
	if err != nil {
		return nil, err
	}

	return coerceReturn(result, d)
}

// dispatch routes the call to the strategy selected at link time and
// deserializes any bridged getter intermediates in the raw result vector.
func (s *FuncSet) dispatch(ctx context.Context, d *descriptor, args []any, stats *CallStatistics) ([]any, error) {
	if !d.usesBridged {
		return s.invokeStandard(ctx, d, args, stats)
	}

	raw, err := s.invokeCustom(ctx, d, args, stats)
	if err != nil {
		return nil, err
	}
	for i, v := range raw {
		getter, ok := v.(SerializedGetter)
		if !ok {
			continue
		}
		value, err := getter.Deserialize()
		if err != nil {
			return nil, err
		}
		raw[i] = value
	}
	return raw, nil
}

// invokeStandard maps the call directly onto the engine's call-by-name
// primitive. If the function lives outside the engine's search path the
// working directory is switched first and restored on every exit path.
func (s *FuncSet) invokeStandard(ctx context.Context, d *descriptor, args []any, stats *CallStatistics) (result []any, err error) {
	initialDir, err := s.enterDir(ctx, d)
	if err != nil {
		return nil, err
	}
	defer func() {
		if initialDir == "" {
			return
		}
		if cdErr := s.eng.Call(ctx, "cd", initialDir); err == nil && cdErr != nil {
			err = fmt.Errorf("restoring working directory: %w", cdErr)
		}
	}()

	if d.nargout == 0 {
		if err := s.eng.Call(ctx, d.name, args...); err != nil {
			return nil, err
		}
		return []any{}, nil
	}
	return s.eng.CallReturning(ctx, d.name, d.nargout, args...)
}

// invokeCustom runs the generated-statement protocol: allocate collision-free
// variable names, bind every argument into the engine's namespace, evaluate a
// generated call statement, and read each return position back. Generated
// names are cleared and the working directory restored on every exit path;
// a cleanup failure never masks the call's own error but is surfaced when no
// earlier error exists.
func (s *FuncSet) invokeCustom(ctx context.Context, d *descriptor, args []any, stats *CallStatistics) (result []any, err error) {
	initialDir, err := s.enterDir(ctx, d)
	if err != nil {
		return nil, err
	}

	var argNames, returnNames []string
	defer func() {
		created := make([]string, 0, len(argNames)+len(returnNames))
		created = append(created, argNames...)
		created = append(created, returnNames...)
		if len(created) > 0 {
			clearErr := s.eng.Eval(ctx, "clear "+strings.Join(created, " "))
			if clearErr == nil {
				stats.VarsCleared += int64(len(created))
			} else if err == nil {
				err = fmt.Errorf("clearing generated variables: %w", clearErr)
			}
		}
		if initialDir != "" {
			if cdErr := s.eng.Call(ctx, "cd", initialDir); err == nil && cdErr != nil {
				err = fmt.Errorf("restoring working directory: %w", cdErr)
			}
		}
	}()

	// Bind arguments to freshly generated names.
	argNames, err = generateNames(ctx, s.eng, argNamePrefix, len(args))
	if err != nil {
		return nil, err
	}
	stats.NamesGenerated += int64(len(argNames))

	for i, arg := range args {
		if bridged, ok := arg.(BridgedValue); ok {
			err = bridged.SerializedSetter().SetInEngine(ctx, s.eng, argNames[i])
		} else {
			err = s.eng.SetVar(ctx, argNames[i], arg)
		}
		if err != nil {
			return nil, err
		}
		stats.VarsBound++
	}

	if d.nargout > 0 {
		returnNames, err = generateNames(ctx, s.eng, returnNamePrefix, d.nargout)
		if err != nil {
			return nil, err
		}
		stats.NamesGenerated += int64(len(returnNames))
	}

	statement := buildCallStatement(d.name, argNames, returnNames)
	slog.Debug("invoking generated statement", "func", d.fn, "statement", statement)

	if err = s.eng.Eval(ctx, statement); err != nil {
		return nil, err
	}
	stats.EvalStatements++

	// Read each return position, keeping bridged getters serialized; the
	// dispatcher deserializes them after the invocation completes.
	results := make([]any, d.nargout)
	for i := range results {
		if factory, ok := bridgedGetterFor(d.returnTypes[i]); ok {
			getter := factory()
			if err = getter.GetFromEngine(ctx, s.eng, returnNames[i]); err != nil {
				return nil, err
			}
			results[i] = getter
		} else {
			if results[i], err = s.eng.GetVar(ctx, returnNames[i]); err != nil {
				return nil, err
			}
		}
		stats.VarsRead++
	}
	return results, nil
}

// enterDir switches the engine to the function's containing directory when
// one is set. It returns the directory to restore afterwards, or "" when no
// switch happened (search-path function, or already there).
func (s *FuncSet) enterDir(ctx context.Context, d *descriptor) (string, error) {
	if d.containingDir == "" {
		return "", nil
	}

	out, err := s.eng.CallReturning(ctx, "pwd", 1)
	if err != nil {
		return "", err
	}
	current := ""
	if len(out) == 1 {
		current, _ = out[0].(string)
	}
	if current == d.containingDir {
		return "", nil
	}

	if err := s.eng.Call(ctx, "cd", d.containingDir); err != nil {
		return "", err
	}
	return current, nil
}

// buildCallStatement renders the single atomic statement the custom strategy
// evaluates: `[r0, r1] = f(a0, a1);`, with the bracketed return list omitted
// entirely for void calls.
func buildCallStatement(name string, argNames, returnNames []string) string {
	var b strings.Builder
	if len(returnNames) > 0 {
		b.WriteString("[")
		b.WriteString(strings.Join(returnNames, ", "))
		b.WriteString("] = ")
	}
	b.WriteString(name)
	b.WriteString("(")
	b.WriteString(strings.Join(argNames, ", "))
	b.WriteString(");")
	return b.String()
}

// generateNames allocates count fresh variable names with the given prefix,
// skipping any suffix already bound in the engine's namespace. The namespace
// is re-queried on every call — it is shared external state that can change
// between invocations, so a cached local counter would eventually collide.
func generateNames(ctx context.Context, eng Engine, prefix string, count int) ([]string, error) {
	if count == 0 {
		return nil, nil
	}

	bound, err := eng.BoundNames(ctx)
	if err != nil {
		return nil, err
	}
	taken := make(map[string]struct{}, len(bound))
	for _, name := range bound {
		taken[name] = struct{}{}
	}

	names := make([]string, 0, count)
	seq := 0
	for len(names) < count {
		name := prefix + strconv.Itoa(seq)
		for {
			if _, exists := taken[name]; !exists {
				break
			}
			seq++
			name = prefix + strconv.Itoa(seq)
		}
		seq++
		names = append(names, name)
	}
	return names, nil
}
