// © Copyright 2026, The mlink Authors
// SPDX-License-Identifier: Apache-2.0

package mlink

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrorContractEngine is the declared failure mode every function contract
// must carry: the engine's uniform invocation-failure condition. A FuncDef
// whose Errors list omits it is rejected at link time.
const ErrorContractEngine = "engine_error"

// ScriptExt is the file extension engine script files must carry.
const ScriptExt = ".m"

// FuncDef is one declared call contract: the caller-facing identifier, the
// engine-side location of the function, and the typed shape of its call.
// Exactly one of Name, AbsolutePath, and RelativePath must be set.
type FuncDef struct {
	// Func is the call-site identifier the contract is invoked by.
	Func string

	// Name names a function resolved via the engine's search path.
	Name string
	// AbsolutePath locates the function's script file directly.
	AbsolutePath string
	// RelativePath locates the script file relative to Root. When Root is a
	// .zip, .tar.gz, or .tgz archive the file is extracted from it.
	RelativePath string
	// Root anchors RelativePath: a directory or an archive file. Empty means
	// the current working directory.
	Root string

	// Nargout is the number of values the engine call produces.
	Nargout int
	// Returns is the declared result shape: nil for void, a single value
	// type for nargout 1, a slice type or a ReturnsN aggregate for more.
	Returns reflect.Type
	// ReturnTypes optionally types each return position explicitly. Required
	// for aggregate result shapes; when omitted for a slice shape, every
	// position takes the slice's element type.
	ReturnTypes []reflect.Type
	// Params are the declared argument types, in positional order.
	Params []reflect.Type
	// Errors declares the failure modes of the call. It must include
	// ErrorContractEngine.
	Errors []string
}

var (
	typeNamesMu sync.RWMutex
	typeNames   = map[string]reflect.Type{
		"any":     reflect.TypeFor[any](),
		"bool":    reflect.TypeFor[bool](),
		"int":     reflect.TypeFor[int](),
		"int64":   reflect.TypeFor[int64](),
		"float64": reflect.TypeFor[float64](),
		"string":  reflect.TypeFor[string](),
		"matrix":  reflect.TypeFor[Matrix](),
		"varref":  reflect.TypeFor[VarRef](),
	}
)

// RegisterTypeName makes a type resolvable by name in YAML binding sets.
// Slice forms ("[]name") resolve automatically for every registered name.
func RegisterTypeName(name string, t reflect.Type) {
	if name == "" || t == nil {
		panic("mlink: RegisterTypeName with empty name or nil type")
	}
	typeNamesMu.Lock()
	defer typeNamesMu.Unlock()
	typeNames[name] = t
}

// lookupTypeName resolves a YAML type name. "void" and "" resolve to nil.
func lookupTypeName(name string) (reflect.Type, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "void" {
		return nil, nil
	}
	if elem, ok := strings.CutPrefix(name, "[]"); ok {
		t, err := lookupTypeName(elem)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, fmt.Errorf("mlink: invalid slice element type in %q", name)
		}
		return reflect.SliceOf(t), nil
	}
	typeNamesMu.RLock()
	defer typeNamesMu.RUnlock()
	t, ok := typeNames[name]
	if !ok {
		return nil, fmt.Errorf("mlink: unknown type name %q", name)
	}
	return t, nil
}

// defsFile is the YAML layout of a binding set.
type defsFile struct {
	Root      string              `yaml:"root"`
	Functions map[string]defEntry `yaml:"functions"`
}

type defEntry struct {
	Name         string   `yaml:"name"`
	AbsolutePath string   `yaml:"absolute_path"`
	RelativePath string   `yaml:"relative_path"`
	Nargout      int      `yaml:"nargout"`
	Returns      string   `yaml:"returns"`
	ReturnTypes  []string `yaml:"return_types"`
	Params       []string `yaml:"params"`
	Errors       []string `yaml:"errors"`
}

// LoadDefs reads a YAML binding set. Definitions are returned sorted by
// call-site identifier; type names resolve through the registry (see
// [RegisterTypeName]). Loading only parses — validation happens at [Link].
func LoadDefs(r io.Reader) ([]FuncDef, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading binding set: %w", err)
	}

	var file defsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing binding set: %w", err)
	}
	if len(file.Functions) == 0 {
		return nil, fmt.Errorf("binding set declares no functions")
	}

	ids := make([]string, 0, len(file.Functions))
	for id := range file.Functions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	defs := make([]FuncDef, 0, len(ids))
	for _, id := range ids {
		entry := file.Functions[id]

		returns, err := lookupTypeName(entry.Returns)
		if err != nil {
			return nil, fmt.Errorf("function %q: returns: %w", id, err)
		}

		var returnTypes []reflect.Type
		for i, name := range entry.ReturnTypes {
			t, err := lookupTypeName(name)
			if err != nil {
				return nil, fmt.Errorf("function %q: return_types[%d]: %w", id, i, err)
			}
			if t == nil {
				return nil, fmt.Errorf("function %q: return_types[%d]: void is not a positional type", id, i)
			}
			returnTypes = append(returnTypes, t)
		}

		var params []reflect.Type
		for i, name := range entry.Params {
			t, err := lookupTypeName(name)
			if err != nil {
				return nil, fmt.Errorf("function %q: params[%d]: %w", id, i, err)
			}
			if t == nil {
				return nil, fmt.Errorf("function %q: params[%d]: void is not a parameter type", id, i)
			}
			params = append(params, t)
		}

		defs = append(defs, FuncDef{
			Func:         id,
			Name:         entry.Name,
			AbsolutePath: entry.AbsolutePath,
			RelativePath: entry.RelativePath,
			Root:         file.Root,
			Nargout:      entry.Nargout,
			Returns:      returns,
			ReturnTypes:  returnTypes,
			Params:       params,
			Errors:       entry.Errors,
		})
	}
	return defs, nil
}
