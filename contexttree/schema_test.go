// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package contexttree

import (
	"slices"
	"strings"
	"testing"
)

type position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type player struct {
	Name     string   `json:"name"`
	Score    int      `json:"score"`
	Position position `json:"position"`
}

type chain struct {
	Value int    `json:"value"`
	Next  *chain `json:"next,omitempty"`
}

var positionSchema = NewSchema[position]().
	Track("x", func(p *position) any { return p.X }).
	Track("y", func(p *position) any { return p.Y })

func playerSchema() *Schema[player] {
	schema := NewSchema[player]().
		Track("name", func(p *player) any { return p.Name }).
		Track("score", func(p *player) any { return p.Score })
	return Nest(schema, "position", func(p *player) *position { return &p.Position }, positionSchema)
}

func TestSchemaKeys(t *testing.T) {
	schema := playerSchema()
	want := []string{"name", "score", "position.x", "position.y"}
	if got := schema.Keys(); !slices.Equal(got, want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	if schema.Name() != "player" {
		t.Errorf("Name() = %q, want %q", schema.Name(), "player")
	}
	if schema.Named("Player").Name() != "Player" {
		t.Errorf("Named did not override the context name")
	}
}

func TestNestNilPointerReportsNil(t *testing.T) {
	inner := NewSchema[chain]().Track("value", func(c *chain) any { return c.Value })
	outer := NewSchema[chain]().Track("value", func(c *chain) any { return c.Value })
	Nest(outer, "next", func(c *chain) *chain { return c.Next }, inner)

	data := &chain{Value: 1}
	if got := outer.fields[1].get(data); got != nil {
		t.Fatalf("next.value with nil Next = %v, want nil", got)
	}
	data.Next = &chain{Value: 7}
	if got := outer.fields[1].get(data); got != 7 {
		t.Fatalf("next.value = %v, want 7", got)
	}
}

func expectPanic(t *testing.T, substring string, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		recovered := recover()
		if recovered == nil {
			t.Fatalf("expected panic containing %q", substring)
		}
		message, ok := recovered.(string)
		if !ok || !strings.Contains(message, substring) {
			t.Fatalf("panic = %v, want message containing %q", recovered, substring)
		}
	}()
	fn()
}

func TestSchemaRejectsBadKeys(t *testing.T) {
	get := func(p *position) any { return p.X }

	expectPanic(t, "invalid field key", func() { NewSchema[position]().Track("", get) })
	expectPanic(t, "invalid field key", func() { NewSchema[position]().Track("a.b", get) })
	expectPanic(t, "duplicate field key", func() {
		NewSchema[position]().Track("x", get).Track("x", get)
	})
	expectPanic(t, "has no getter", func() { NewSchema[position]().Track("x", nil) })
	expectPanic(t, "duplicate field key", func() {
		get := func(p *player) *position { return &p.Position }
		schema := Nest(NewSchema[player](), "position", get, positionSchema)
		Nest(schema, "position", get, positionSchema)
	})
}

func TestNestRejectsSelf(t *testing.T) {
	schema := NewSchema[chain]().Track("value", func(c *chain) any { return c.Value })
	expectPanic(t, "inside itself", func() {
		Nest(schema, "next", func(c *chain) *chain { return c.Next }, schema)
	})
}

func TestNestRejectsEmptyInner(t *testing.T) {
	expectPanic(t, "no tracked fields", func() {
		Nest(NewSchema[player](), "position", func(p *player) *position { return &p.Position }, NewSchema[position]())
	})
}

func TestNestDepthLimit(t *testing.T) {
	next := func(c *chain) *chain { return c.Next }
	track := func(c *chain) any { return c.Value }

	current := NewSchema[chain]().Track("value", track)
	for range MaxDepth - 1 {
		outer := NewSchema[chain]().Track("value", track)
		current = Nest(outer, "next", next, current)
	}
	if current.depth != MaxDepth {
		t.Fatalf("depth = %d, want %d", current.depth, MaxDepth)
	}

	expectPanic(t, "maximum nesting depth", func() {
		Nest(NewSchema[chain]().Track("value", track), "next", next, current)
	})
}
