// © Copyright 2026, The mlink Authors
// SPDX-License-Identifier: Apache-2.0

package mlink

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// BridgedValue is the capability a value type supplies when it cannot be
// passed to the engine as a plain value and instead serializes itself into
// the engine's namespace. Passing a bridged value (or declaring a bridged
// parameter or return type) routes the whole call through the
// generated-statement invocation protocol.
type BridgedValue interface {
	// SerializedSetter returns the operation that materializes this value
	// in the engine under a given variable name — by value copy, by remote
	// expression, or by reference. The setter must be self-contained; it is
	// invoked against the engine after the value itself is no longer
	// consulted.
	SerializedSetter() SerializedSetter
}

// SerializedSetter writes one bridged value into a named engine variable.
type SerializedSetter interface {
	SetInEngine(ctx context.Context, eng Engine, name string) error
}

// SerializedGetter reads a named engine variable back into a client-side
// intermediate, then deserializes that intermediate into a final value. The
// two phases are split so the read can happen inside the invocation protocol
// while deserialization happens after the engine round trip completes.
type SerializedGetter interface {
	GetFromEngine(ctx context.Context, eng Engine, name string) error
	Deserialize() (any, error)
}

// bridgedValueType is used to check interface implementation at reflect time.
var bridgedValueType = reflect.TypeOf((*BridgedValue)(nil)).Elem()

var (
	bridgedMu      sync.RWMutex
	bridgedGetters = make(map[reflect.Type]func() SerializedGetter)
)

// RegisterBridged registers a bridged type usable as a declared return type,
// supplying the factory for its serialized getter. Bridged types that only
// ever appear as arguments (such as [VarRef]) need no registration.
func RegisterBridged(t reflect.Type, factory func() SerializedGetter) {
	if t == nil || factory == nil {
		panic("mlink: RegisterBridged with nil type or factory")
	}
	bridgedMu.Lock()
	defer bridgedMu.Unlock()
	bridgedGetters[t] = factory
}

// bridgedGetterFor returns the registered getter factory for t.
func bridgedGetterFor(t reflect.Type) (func() SerializedGetter, bool) {
	bridgedMu.RLock()
	defer bridgedMu.RUnlock()
	f, ok := bridgedGetters[t]
	return f, ok
}

// isBridgedType reports whether a declared type routes calls through the
// custom invocation strategy.
func isBridgedType(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if t.Implements(bridgedValueType) || reflect.PointerTo(t).Implements(bridgedValueType) {
		return true
	}
	bridgedMu.RLock()
	defer bridgedMu.RUnlock()
	_, ok := bridgedGetters[t]
	return ok
}

// varRefType is the one declared type that may never be a return type.
var varRefType = reflect.TypeFor[VarRef]()

// VarRef is a named reference to a variable that already exists in the
// engine's namespace. Using a VarRef as an argument binds the call to the
// existing variable without copying a value: its setter emits an assignment
// expression referencing the name rather than serializing new data.
//
// VarRef can never be a declared return type.
type VarRef struct {
	name string
}

// NewVarRef creates a reference to an existing engine variable. The name
// must be a valid engine identifier: a letter followed by letters, digits,
// or underscores.
func NewVarRef(name string) (VarRef, error) {
	if !validVarName(name) {
		return VarRef{}, fmt.Errorf("mlink: invalid engine variable name %q", name)
	}
	return VarRef{name: name}, nil
}

// Name returns the referenced variable name.
func (v VarRef) Name() string { return v.name }

// SerializedSetter implements [BridgedValue].
func (v VarRef) SerializedSetter() SerializedSetter {
	return varRefSetter{name: v.name}
}

type varRefSetter struct {
	name string
}

func (s varRefSetter) SetInEngine(ctx context.Context, eng Engine, name string) error {
	return eng.Eval(ctx, name+" = "+s.name+";")
}

func validVarName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if i == 0 {
			if !isLetter(r) {
				return false
			}
			continue
		}
		if !isLetter(r) && !isDigit(r) && r != '_' {
			return false
		}
	}
	return true
}

func isLetter(r rune) bool { return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') }
func isDigit(r rune) bool  { return r >= '0' && r <= '9' }
