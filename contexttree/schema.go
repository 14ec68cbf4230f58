// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package contexttree

import (
	"fmt"
	"reflect"
	"strings"
)

// MaxDepth bounds schema nesting. Nest panics beyond it.
const MaxDepth = 16

// Schema declares the tracked fields of T. Build it once, at package
// init, and share it between contexts.
type Schema[T any] struct {
	name   string
	depth  int
	fields []fieldSpec[T]
	keys   map[string]bool
}

type fieldSpec[T any] struct {
	key string
	get func(*T) any
}

// NewSchema returns an empty schema. The context name defaults to the
// Go type name of T.
func NewSchema[T any]() *Schema[T] {
	return &Schema[T]{
		name:  reflect.TypeFor[T]().Name(),
		depth: 1,
		keys:  make(map[string]bool),
	}
}

// Named overrides the context name reported in startContext.
func (s *Schema[T]) Named(name string) *Schema[T] {
	s.name = name
	return s
}

// Name returns the context name.
func (s *Schema[T]) Name() string {
	return s.name
}

// Track registers a field read by get under key. Keys must be unique,
// non-empty, and free of dots.
func (s *Schema[T]) Track(key string, get func(*T) any) *Schema[T] {
	s.checkKey(key)
	if get == nil {
		panic(fmt.Sprintf("contexttree: schema %s: field %q has no getter", s.name, key))
	}
	s.addField(key, get)
	return s
}

// Keys returns the dotted path of every tracked field in registration
// order.
func (s *Schema[T]) Keys() []string {
	keys := make([]string, len(s.fields))
	for i, field := range s.fields {
		keys[i] = field.key
	}
	return keys
}

func (s *Schema[T]) checkKey(key string) {
	if key == "" || strings.Contains(key, ".") {
		panic(fmt.Sprintf("contexttree: schema %s: invalid field key %q", s.name, key))
	}
}

func (s *Schema[T]) addField(key string, get func(*T) any) {
	if s.keys[key] {
		panic(fmt.Sprintf("contexttree: schema %s: duplicate field key %q", s.name, key))
	}
	s.keys[key] = true
	s.fields = append(s.fields, fieldSpec[T]{key: key, get: get})
}

// Nest tracks every field of inner under "key." within outer. get
// returns the nested value; a nil result reports nil for each inner
// field. inner's fields are copied at the call, so later changes to
// inner do not affect outer.
//
// Nest panics if inner is outer, or if the combined depth exceeds
// MaxDepth.
func Nest[T, U any](outer *Schema[T], key string, get func(*T) *U, inner *Schema[U]) *Schema[T] {
	outer.checkKey(key)
	if get == nil || inner == nil {
		panic(fmt.Sprintf("contexttree: schema %s: nested field %q needs a getter and a schema", outer.name, key))
	}
	if any(outer) == any(inner) {
		panic(fmt.Sprintf("contexttree: schema %s: field %q nests the schema inside itself", outer.name, key))
	}
	if inner.depth+1 > MaxDepth {
		panic(fmt.Sprintf("contexttree: schema %s: field %q exceeds maximum nesting depth %d", outer.name, key, MaxDepth))
	}
	if len(inner.fields) == 0 {
		panic(fmt.Sprintf("contexttree: schema %s: nested field %q has no tracked fields", outer.name, key))
	}

	for _, field := range inner.fields {
		innerGet := field.get
		outer.addField(key+"."+field.key, func(t *T) any {
			nested := get(t)
			if nested == nil {
				return nil
			}
			return innerGet(nested)
		})
	}
	outer.depth = max(outer.depth, inner.depth+1)
	return outer
}
