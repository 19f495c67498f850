// © Copyright 2026, The mlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package enginetest provides an in-memory [mlink.Engine] for tests and
// examples. It keeps a variable workspace, a working directory, and a
// registry of Go-backed functions, and it understands exactly the statement
// forms the linking layer generates: variable assignment, bracketed and bare
// call statements, and clear lists.
package enginetest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/mlengine/mlink/mlink"
)

// Func is a Go-backed engine function. It receives the evaluated argument
// values and the number of results the caller expects.
type Func func(args []any, nargout int) ([]any, error)

// CallRecord is one function call the engine dispatched, whether it arrived
// through the call primitives or through statement evaluation.
type CallRecord struct {
	Name string
	Args []any
}

// Engine is an in-memory engine. The zero value is not usable; construct
// with [New]. All methods are safe for concurrent use.
type Engine struct {
	mu         sync.Mutex
	dir        string
	vars       map[string]any
	funcs      map[string]Func
	statements []string
	calls      []CallRecord
}

// New returns an empty engine with working directory "/" and the builtin
// functions pwd, cd, reshape, and size registered.
func New() *Engine {
	e := &Engine{
		dir:   "/",
		vars:  make(map[string]any),
		funcs: make(map[string]Func),
	}
	e.funcs["pwd"] = e.builtinPwd
	e.funcs["cd"] = e.builtinCd
	e.funcs["reshape"] = builtinReshape
	e.funcs["size"] = builtinSize
	return e
}

// Register binds a Go function under the given engine-side name.
func (e *Engine) Register(name string, fn Func) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.funcs[name] = fn
}

// Dir returns the current working directory.
func (e *Engine) Dir() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dir
}

// SetDir sets the working directory without going through cd.
func (e *Engine) SetDir(dir string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dir = dir
}

// Var returns the value bound to name, and whether it is bound.
func (e *Engine) Var(name string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.vars[name]
	return v, ok
}

// Calls returns every function call dispatched so far, in order.
func (e *Engine) Calls() []CallRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]CallRecord(nil), e.calls...)
}

// Statements returns every statement evaluated so far, in order.
func (e *Engine) Statements() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.statements...)
}

func (e *Engine) Eval(ctx context.Context, statement string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statements = append(e.statements, statement)
	return e.eval(statement)
}

func (e *Engine) EvalReturning(ctx context.Context, expr string, resultCount int) ([]any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statements = append(e.statements, expr)

	expr = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(expr), ";"))
	if isIdentifier(expr) {
		v, ok := e.vars[expr]
		if !ok {
			return nil, evalErr("undefined variable %q", expr)
		}
		if resultCount != 1 {
			return nil, evalErr("variable expression produces 1 value, %d requested", resultCount)
		}
		return []any{v}, nil
	}
	return e.evalCall(expr, resultCount)
}

func (e *Engine) Call(ctx context.Context, name string, args ...any) error {
	_, err := e.CallReturning(ctx, name, 0, args...)
	return err
}

// CallReturning invokes a registered function by name with already-evaluated
// argument values.
func (e *Engine) CallReturning(ctx context.Context, name string, resultCount int, args ...any) ([]any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.call(name, args, resultCount)
}

func (e *Engine) SetVar(ctx context.Context, name string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vars[name] = value
	return nil
}

func (e *Engine) GetVar(ctx context.Context, name string) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.vars[name]
	if !ok {
		return nil, &mlink.EngineError{Op: "get_var", Message: fmt.Sprintf("undefined variable %q", name)}
	}
	return v, nil
}

func (e *Engine) BoundNames(ctx context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.vars))
	for name := range e.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// eval executes one statement. Callers hold the lock.
func (e *Engine) eval(statement string) error {
	stmt := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(statement), ";"))
	if stmt == "" {
		return evalErr("empty statement")
	}

	if rest, ok := strings.CutPrefix(stmt, "clear "); ok {
		for _, name := range strings.Fields(rest) {
			delete(e.vars, name)
		}
		return nil
	}

	if strings.HasPrefix(stmt, "[") {
		end := strings.Index(stmt, "]")
		if end < 0 {
			return evalErr("unterminated result list in %q", statement)
		}
		var targets []string
		for _, name := range strings.Split(stmt[1:end], ",") {
			name = strings.TrimSpace(name)
			if !isIdentifier(name) {
				return evalErr("invalid result name %q", name)
			}
			targets = append(targets, name)
		}
		rhs, ok := strings.CutPrefix(strings.TrimSpace(stmt[end+1:]), "=")
		if !ok {
			return evalErr("expected '=' after result list in %q", statement)
		}
		results, err := e.evalCall(strings.TrimSpace(rhs), len(targets))
		if err != nil {
			return err
		}
		for i, name := range targets {
			e.vars[name] = results[i]
		}
		return nil
	}

	if lhs, rhs, ok := strings.Cut(stmt, "="); ok {
		lhs = strings.TrimSpace(lhs)
		rhs = strings.TrimSpace(rhs)
		if !isIdentifier(lhs) {
			return evalErr("invalid assignment target %q", lhs)
		}
		if strings.Contains(rhs, "(") {
			results, err := e.evalCall(rhs, 1)
			if err != nil {
				return err
			}
			e.vars[lhs] = results[0]
			return nil
		}
		v, err := e.operand(rhs)
		if err != nil {
			return err
		}
		e.vars[lhs] = v
		return nil
	}

	// Bare call statement, results discarded.
	_, err := e.evalCall(stmt, 0)
	return err
}

// evalCall parses and executes a call expression `f(a, b)`. Callers hold
// the lock.
func (e *Engine) evalCall(expr string, resultCount int) ([]any, error) {
	open := strings.Index(expr, "(")
	if open < 0 || !strings.HasSuffix(expr, ")") {
		return nil, evalErr("cannot parse call expression %q", expr)
	}
	name := strings.TrimSpace(expr[:open])
	if !isIdentifier(name) {
		return nil, evalErr("invalid function name %q", name)
	}

	var args []any
	argList := strings.TrimSpace(expr[open+1 : len(expr)-1])
	if argList != "" {
		for _, raw := range strings.Split(argList, ",") {
			v, err := e.operand(strings.TrimSpace(raw))
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		}
	}
	return e.call(name, args, resultCount)
}

// operand evaluates an identifier, a quoted string, or a numeric literal.
// Callers hold the lock.
func (e *Engine) operand(s string) (any, error) {
	if isIdentifier(s) {
		v, ok := e.vars[s]
		if !ok {
			return nil, evalErr("undefined variable %q", s)
		}
		return v, nil
	}
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1], nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	return nil, evalErr("cannot evaluate operand %q", s)
}

// call dispatches to a registered function. Callers hold the lock.
func (e *Engine) call(name string, args []any, resultCount int) ([]any, error) {
	e.calls = append(e.calls, CallRecord{Name: name, Args: append([]any(nil), args...)})
	fn, ok := e.funcs[name]
	if !ok {
		return nil, &mlink.EngineError{Op: "call", Message: fmt.Sprintf("undefined function %q", name)}
	}
	results, err := fn(args, resultCount)
	if err != nil {
		if _, ok := err.(*mlink.EngineError); ok {
			return nil, err
		}
		return nil, &mlink.EngineError{Op: "call", Message: err.Error()}
	}
	if len(results) < resultCount {
		return nil, &mlink.EngineError{Op: "call",
			Message: fmt.Sprintf("%s produced %d values, %d requested", name, len(results), resultCount)}
	}
	return results[:resultCount:resultCount], nil
}

func (e *Engine) builtinPwd(args []any, nargout int) ([]any, error) {
	return []any{e.dir}, nil
}

func (e *Engine) builtinCd(args []any, nargout int) ([]any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("cd expects 1 argument, got %d", len(args))
	}
	dir, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("cd expects a string, got %T", args[0])
	}
	e.dir = dir
	return []any{}, nil
}

func builtinReshape(args []any, nargout int) ([]any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("reshape expects data and dimensions")
	}
	data, ok := args[0].([]float64)
	if !ok {
		return nil, fmt.Errorf("reshape expects []float64 data, got %T", args[0])
	}
	dims := make([]int, len(args)-1)
	for i, a := range args[1:] {
		f, ok := a.(float64)
		if !ok {
			return nil, fmt.Errorf("reshape dimension %d is %T, expected number", i+1, a)
		}
		dims[i] = int(f)
	}
	m, err := mlink.NewMatrix(dims, data)
	if err != nil {
		return nil, err
	}
	return []any{m}, nil
}

func builtinSize(args []any, nargout int) ([]any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("size expects 1 argument, got %d", len(args))
	}
	m, ok := args[0].(mlink.Matrix)
	if !ok {
		return nil, fmt.Errorf("size expects a matrix, got %T", args[0])
	}
	out := make([]any, len(m.Dims))
	for i, d := range m.Dims {
		out[i] = float64(d)
	}
	return out, nil
}

// isIdentifier reports whether s is an engine variable name: a letter
// followed by letters, digits, or underscores.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		letter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if i == 0 {
			if !letter {
				return false
			}
			continue
		}
		if !letter && !(r >= '0' && r <= '9') && r != '_' {
			return false
		}
	}
	return true
}

func evalErr(format string, args ...any) error {
	return &mlink.EngineError{Op: "eval", Message: fmt.Sprintf(format, args...)}
}
