// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package contexts models the situational scope a permission check
// applies to: immutable sets of (key, value) tags plus the pluggable
// calculators that produce them.
package contexts

import (
	"sort"
	"strings"
)

// Value is a single context tag. Two Values are equal when both key
// and value match.
type Value struct {
	Key string
	Val string
}

// NewValue creates a context tag.
func NewValue(key, val string) Value {
	return Value{Key: key, Val: val}
}

func (v Value) String() string {
	return v.Key + "=" + v.Val
}

// Set is an immutable, order-irrelevant collection of context tags.
// The zero value is the global scope, which matches everything.
// Duplicate keys with distinct values are preserved as separate tags.
type Set struct {
	values []Value
	key    string
}

// NewSet builds a Set from the given values, deduplicating exact
// (key, value) repeats.
func NewSet(values ...Value) Set {
	if len(values) == 0 {
		return Set{}
	}
	sorted := make([]Value, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Key != sorted[j].Key {
			return sorted[i].Key < sorted[j].Key
		}
		return sorted[i].Val < sorted[j].Val
	})

	dedup := sorted[:0]
	for _, v := range sorted {
		if len(dedup) > 0 && v == dedup[len(dedup)-1] {
			continue
		}
		dedup = append(dedup, v)
	}

	parts := make([]string, len(dedup))
	for i, v := range dedup {
		parts[i] = v.String()
	}
	return Set{values: dedup, key: strings.Join(parts, ";")}
}

// Single is shorthand for a one-tag set.
func Single(key, val string) Set {
	return NewSet(NewValue(key, val))
}

// Size returns the number of tags in the set.
func (s Set) Size() int {
	return len(s.values)
}

// IsGlobal reports whether the set is empty, i.e. the global scope.
func (s Set) IsGlobal() bool {
	return len(s.values) == 0
}

// Contains reports whether the set holds the exact tag.
func (s Set) Contains(v Value) bool {
	idx := sort.Search(len(s.values), func(i int) bool {
		if s.values[i].Key != v.Key {
			return s.values[i].Key > v.Key
		}
		return s.values[i].Val >= v.Val
	})
	return idx < len(s.values) && s.values[idx] == v
}

// SubsetOf reports whether every tag in s is present in other. The
// global (empty) set is a subset of everything. A rule scoped to a
// subset of the active contexts applies to that active set.
func (s Set) SubsetOf(other Set) bool {
	if len(s.values) > len(other.values) {
		return false
	}
	for _, v := range s.values {
		if !other.Contains(v) {
			return false
		}
	}
	return true
}

// Equal reports whether two sets hold exactly the same tags.
func (s Set) Equal(other Set) bool {
	return s.key == other.key
}

// Values returns a copy of the tags in canonical order.
func (s Set) Values() []Value {
	out := make([]Value, len(s.values))
	copy(out, s.values)
	return out
}

// Canonical returns a stable string form usable as a map key. The
// global set canonicalizes to the empty string.
func (s Set) Canonical() string {
	return s.key
}

func (s Set) String() string {
	if s.IsGlobal() {
		return "global"
	}
	return "{" + s.key + "}"
}
