// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package contexts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSet_DeduplicatesAndSorts(t *testing.T) {
	s := NewSet(
		NewValue("world", "nether"),
		NewValue("dimension", "end"),
		NewValue("world", "nether"),
	)

	assert.Equal(t, 2, s.Size())
	assert.Equal(t, "dimension=end;world=nether", s.Canonical())
}

func TestNewSet_PreservesDuplicateKeysWithDistinctValues(t *testing.T) {
	// Merge is a union: the same key with two values keeps both tags.
	s := NewSet(
		NewValue("server-tag", "creative"),
		NewValue("server-tag", "hub"),
	)

	assert.Equal(t, 2, s.Size())
	assert.True(t, s.Contains(NewValue("server-tag", "creative")))
	assert.True(t, s.Contains(NewValue("server-tag", "hub")))
}

func TestSet_ZeroValueIsGlobal(t *testing.T) {
	var s Set
	assert.True(t, s.IsGlobal())
	assert.Equal(t, "", s.Canonical())
	assert.Equal(t, "global", s.String())
}

func TestSet_SubsetOf(t *testing.T) {
	global := NewSet()
	world := Single("world", "nether")
	worldAndDim := NewSet(NewValue("world", "nether"), NewValue("dimension", "end"))
	otherWorld := Single("world", "overworld")

	tests := []struct {
		name   string
		sub    Set
		super  Set
		expect bool
	}{
		{"global is subset of everything", global, worldAndDim, true},
		{"global is subset of global", global, global, true},
		{"single tag subset of superset", world, worldAndDim, true},
		{"superset is not subset", worldAndDim, world, false},
		{"disjoint values do not match", otherWorld, worldAndDim, false},
		{"nothing nonempty is subset of global", world, global, false},
		{"set is subset of itself", worldAndDim, worldAndDim, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.sub.SubsetOf(tt.super))
		})
	}
}

func TestSet_Equal(t *testing.T) {
	a := NewSet(NewValue("world", "nether"), NewValue("dimension", "end"))
	b := NewSet(NewValue("dimension", "end"), NewValue("world", "nether"))
	assert.True(t, a.Equal(b), "order of construction should not matter")
	assert.False(t, a.Equal(Single("world", "nether")))
}

func TestSet_ValuesReturnsCopy(t *testing.T) {
	s := Single("world", "nether")
	vals := s.Values()
	vals[0] = NewValue("mutated", "x")
	assert.True(t, s.Contains(NewValue("world", "nether")))
}
