// © Copyright 2026, The mlink Authors
// SPDX-License-Identifier: Apache-2.0

package mlink

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"sort"
	"strings"
)

// descriptor is the immutable, resolved description of one linked function.
// Descriptors are created once at link time, owned by the FuncSet, and are
// safe for unsynchronized concurrent reads.
type descriptor struct {
	fn            string // call-site identifier
	name          string // engine-side function name
	containingDir string // "" when resolved via the engine's search path

	nargout     int
	returnShape reflect.Type   // declared result shape; nil for void
	returnTypes []reflect.Type // per-position types; len == nargout
	params      []reflect.Type

	usesBridged bool
}

// FuncSet holds the linked binding set for one engine. The descriptor table
// is populated once by [Link] and read-only thereafter; a FuncSet is safe to
// call concurrently from multiple goroutines.
type FuncSet struct {
	eng   Engine
	funcs map[string]*descriptor
	hook  InvokeHook
}

// Link validates every definition and resolves it against the filesystem,
// producing a FuncSet ready for invocation. Any single invalid definition
// aborts linking of the entire set: no call can be made through a set that
// failed to link.
func Link(eng Engine, defs ...FuncDef) (*FuncSet, error) {
	if eng == nil {
		return nil, fmt.Errorf("mlink: Link requires an engine")
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("mlink: Link requires at least one function definition")
	}

	funcs := make(map[string]*descriptor, len(defs))
	for i := range defs {
		def := &defs[i]
		if def.Func == "" {
			return nil, &LinkError{Func: def.Func, Reason: "definition has no call-site identifier"}
		}
		if _, dup := funcs[def.Func]; dup {
			return nil, &LinkError{Func: def.Func, Reason: "duplicate call-site identifier"}
		}

		if err := checkDefLocation(def); err != nil {
			return nil, err
		}
		if err := checkDefReturn(def); err != nil {
			return nil, err
		}
		if err := checkDefErrors(def); err != nil {
			return nil, err
		}

		d, err := resolveDef(def)
		if err != nil {
			return nil, err
		}
		funcs[def.Func] = d
	}

	return &FuncSet{eng: eng, funcs: funcs}, nil
}

// Functions returns the call-site identifiers of the linked set, sorted.
func (s *FuncSet) Functions() []string {
	names := make([]string, 0, len(s.funcs))
	for name := range s.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetInvokeHook registers a hook called around each invocation. Set it
// before the FuncSet is shared between goroutines.
func (s *FuncSet) SetInvokeHook(hook InvokeHook) {
	s.hook = hook
}

// checkDefLocation verifies that exactly one location specifier is set.
func checkDefLocation(def *FuncDef) error {
	count := 0
	for _, loc := range []string{def.Name, def.AbsolutePath, def.RelativePath} {
		if loc != "" {
			count++
		}
	}
	if count != 1 {
		return &LinkError{Func: def.Func,
			Reason: "definition must specify exactly one of a function name, an absolute path, or a relative path"}
	}
	return nil
}

// checkDefReturn verifies the declared result shape against the return arity
// and the optional explicit per-position types.
func checkDefReturn(def *FuncDef) error {
	if def.Nargout < 0 {
		return &LinkError{Func: def.Func,
			Reason: fmt.Sprintf("negative nargout %d; nargout must be 0 or greater", def.Nargout)}
	}

	shape := def.Returns

	if shape == varRefType {
		return &LinkError{Func: def.Func, Reason: "VarRef can never be a declared return type"}
	}

	if shape == nil && def.Nargout != 0 {
		return &LinkError{Func: def.Func,
			Reason: fmt.Sprintf("void result shape with non-zero nargout %d", def.Nargout)}
	}
	if shape != nil && def.Nargout == 0 {
		return &LinkError{Func: def.Func,
			Reason: "non-void result shape requires a nargout of 1 or greater"}
	}

	if len(def.ReturnTypes) != 0 {
		if !isAggregateType(shape) && shape != reflect.TypeFor[[]any]() {
			return &LinkError{Func: def.Func,
				Reason: "explicit return types require a result shape of []any or a ReturnsN aggregate"}
		}
		if len(def.ReturnTypes) != def.Nargout {
			return &LinkError{Func: def.Func,
				Reason: fmt.Sprintf("nargout %d does not match %d explicit return types",
					def.Nargout, len(def.ReturnTypes))}
		}
		for _, t := range def.ReturnTypes {
			if t == nil {
				return &LinkError{Func: def.Func, Reason: "explicit return types may not be nil"}
			}
			if isPrimitiveKind(t) {
				return &LinkError{Func: def.Func,
					Reason: fmt.Sprintf("explicit return type %v is a primitive; primitives are not supported as explicit return types", t)}
			}
		}
	}

	if isAggregateType(shape) {
		arity := aggregateArity(shape)
		if len(def.ReturnTypes) != arity {
			return &LinkError{Func: def.Func,
				Reason: fmt.Sprintf("aggregate result shape holds %d values but %d return types are declared",
					arity, len(def.ReturnTypes))}
		}
		if arity != def.Nargout {
			return &LinkError{Func: def.Func,
				Reason: fmt.Sprintf("aggregate result shape holds %d values but nargout is %d", arity, def.Nargout)}
		}
		for i, t := range def.ReturnTypes {
			if !t.AssignableTo(shape.Field(i).Type) {
				return &LinkError{Func: def.Func,
					Reason: fmt.Sprintf("declared return type %v is not assignable to aggregate position %d of type %v",
						t, i, shape.Field(i).Type)}
			}
		}
	} else if def.Nargout > 1 && shape.Kind() != reflect.Slice {
		return &LinkError{Func: def.Func,
			Reason: "a result of more than one value requires a slice or ReturnsN aggregate shape"}
	}

	return nil
}

// checkDefErrors verifies the declared failure modes.
func checkDefErrors(def *FuncDef) error {
	if !slices.Contains(def.Errors, ErrorContractEngine) {
		return &LinkError{Func: def.Func,
			Reason: fmt.Sprintf("contract must declare the %q failure mode", ErrorContractEngine)}
	}
	return nil
}

// resolveReturnTypes derives the per-position return types from a definition
// that has already passed checkDefReturn.
func resolveReturnTypes(def *FuncDef) []reflect.Type {
	switch {
	case def.Nargout == 0:
		return nil
	case def.Nargout == 1:
		return []reflect.Type{def.Returns}
	case len(def.ReturnTypes) == 0:
		elem := def.Returns.Elem()
		types := make([]reflect.Type, def.Nargout)
		for i := range types {
			types[i] = elem
		}
		return types
	default:
		return append([]reflect.Type(nil), def.ReturnTypes...)
	}
}

// resolveDef resolves a validated definition to a descriptor, locating and
// checking the backing script file when a path was given.
func resolveDef(def *FuncDef) (*descriptor, error) {
	var name, containingDir string

	if def.Name != "" {
		// Resolved via the engine's search path.
		name = def.Name
	} else {
		file, err := locateScript(def)
		if err != nil {
			return nil, err
		}

		info, statErr := os.Stat(file)
		if statErr != nil {
			return nil, &LinkError{Func: def.Func,
				Reason: fmt.Sprintf("script file does not exist (resolved as %s)", file)}
		}
		if !info.Mode().IsRegular() {
			return nil, &LinkError{Func: def.Func,
				Reason: fmt.Sprintf("script path is not a regular file (resolved as %s)", file)}
		}
		base := filepath.Base(file)
		if !strings.HasSuffix(base, ScriptExt) {
			return nil, &LinkError{Func: def.Func,
				Reason: fmt.Sprintf("script file does not end in %s (resolved as %s)", ScriptExt, file)}
		}

		canonical, err := filepath.EvalSymlinks(file)
		if err != nil {
			return nil, &LinkError{Func: def.Func,
				Reason: fmt.Sprintf("unable to resolve canonical path of %s", file), Err: err}
		}

		name = strings.TrimSuffix(base, ScriptExt)
		containingDir = filepath.Dir(canonical)
	}

	returnTypes := resolveReturnTypes(def)
	if err := checkBridgedReturns(def, returnTypes); err != nil {
		return nil, err
	}

	return &descriptor{
		fn:            def.Func,
		name:          name,
		containingDir: containingDir,
		nargout:       def.Nargout,
		returnShape:   def.Returns,
		returnTypes:   returnTypes,
		params:        append([]reflect.Type(nil), def.Params...),
		usesBridged:   usesBridgedTypes(returnTypes, def.Params),
	}, nil
}

// locateScript turns a path specifier into an absolute on-disk file,
// extracting from an archive root when needed.
func locateScript(def *FuncDef) (string, error) {
	if def.AbsolutePath != "" {
		abs, err := filepath.Abs(def.AbsolutePath)
		if err != nil {
			return "", &LinkError{Func: def.Func,
				Reason: fmt.Sprintf("unable to resolve path %s", def.AbsolutePath), Err: err}
		}
		return abs, nil
	}

	root := def.Root
	if root == "" {
		root = "."
	}

	if isArchivePath(root) {
		if !strings.HasSuffix(def.RelativePath, ScriptExt) {
			return "", &LinkError{Func: def.Func,
				Reason: fmt.Sprintf("archived script file %s does not end in %s", def.RelativePath, ScriptExt)}
		}
		file, err := extractScript(root, def.RelativePath)
		if err != nil {
			return "", &LinkError{Func: def.Func,
				Reason: fmt.Sprintf("unable to extract script file from %s", root), Err: err}
		}
		return file, nil
	}

	abs, err := filepath.Abs(filepath.Join(root, def.RelativePath))
	if err != nil {
		return "", &LinkError{Func: def.Func,
			Reason: fmt.Sprintf("unable to resolve path %s against %s", def.RelativePath, root), Err: err}
	}
	return abs, nil
}

// checkBridgedReturns verifies every bridged return type has a registered
// getter, so the failure is caught at link time rather than mid-invocation.
func checkBridgedReturns(def *FuncDef, returnTypes []reflect.Type) error {
	for i, t := range returnTypes {
		if t == nil || !isBridgedType(t) {
			continue
		}
		if _, ok := bridgedGetterFor(t); !ok {
			return &LinkError{Func: def.Func,
				Reason: fmt.Sprintf("bridged return type %v at position %d has no registered getter", t, i)}
		}
	}
	return nil
}

// usesBridgedTypes reports whether any parameter or return position involves
// a bridged type, which routes the call through the custom strategy.
func usesBridgedTypes(returnTypes, params []reflect.Type) bool {
	for _, t := range returnTypes {
		if isBridgedType(t) {
			return true
		}
	}
	for _, t := range params {
		if isBridgedType(t) {
			return true
		}
	}
	return false
}

// isPrimitiveKind reports whether t is treated as a primitive by the return
// coercion rules: the exact scalar or a one-element slice of it is accepted.
func isPrimitiveKind(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return true
	default:
		return false
	}
}
