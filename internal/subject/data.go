// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package subject

import (
	"sort"

	"github.com/holomush/permcore/internal/contexts"
)

// PermissionDefault is the wildcard key seeded by WithDefaultValue.
// A subject carrying it satisfies every permission check in scope
// unless a more specific entry overrides it.
const PermissionDefault = "*"

// Segment holds the permissions, options, and parents a subject
// declares for one context set. Segments are immutable; the maps are
// never exposed for mutation.
type Segment struct {
	contexts    contexts.Set
	permissions map[string]int
	options     map[string]string
	parents     []Ref
}

// NewSegment builds a segment, copying the inputs. Zero-valued
// permission entries are dropped: zero means unset.
func NewSegment(set contexts.Set, permissions map[string]int, options map[string]string, parents []Ref) Segment {
	seg := Segment{contexts: set}
	for k, v := range permissions {
		if v == 0 {
			continue
		}
		if seg.permissions == nil {
			seg.permissions = make(map[string]int, len(permissions))
		}
		seg.permissions[k] = v
	}
	if len(options) > 0 {
		seg.options = make(map[string]string, len(options))
		for k, v := range options {
			seg.options[k] = v
		}
	}
	if len(parents) > 0 {
		seg.parents = make([]Ref, len(parents))
		copy(seg.parents, parents)
	}
	return seg
}

// Contexts returns the context set this segment is scoped to.
func (s Segment) Contexts() contexts.Set { return s.contexts }

// Permissions returns a copy of the segment's permission entries.
func (s Segment) Permissions() map[string]int {
	out := make(map[string]int, len(s.permissions))
	for k, v := range s.permissions {
		out[k] = v
	}
	return out
}

// Options returns a copy of the segment's option entries.
func (s Segment) Options() map[string]string {
	out := make(map[string]string, len(s.options))
	for k, v := range s.options {
		out[k] = v
	}
	return out
}

// Parents returns a copy of the segment's parent list, in declaration
// order.
func (s Segment) Parents() []Ref {
	out := make([]Ref, len(s.parents))
	copy(out, s.parents)
	return out
}

// IsEmpty reports whether the segment carries no entries at all.
// Empty segments are pruned from Data on write.
func (s Segment) IsEmpty() bool {
	return len(s.permissions) == 0 && len(s.options) == 0 && len(s.parents) == 0
}

func (s Segment) permission(key string) int { return s.permissions[key] }

func (s Segment) option(key string) (string, bool) {
	v, ok := s.options[key]
	return v, ok
}

// Data is an immutable snapshot of one subject's entries for one tier
// (persistent or transient). Segment insertion order is retained and
// breaks specificity ties during resolution. The zero value is an
// empty snapshot.
type Data struct {
	segments []Segment
}

// NewData builds a snapshot from segments, dropping empty ones. Later
// segments for the same context set replace earlier ones.
func NewData(segments ...Segment) *Data {
	d := &Data{}
	for _, seg := range segments {
		d = d.withSegment(seg)
	}
	return d
}

// Segments returns a copy of the snapshot's segments in insertion
// order.
func (d *Data) Segments() []Segment {
	out := make([]Segment, len(d.segments))
	copy(out, d.segments)
	return out
}

// IsEmpty reports whether the snapshot has no segments.
func (d *Data) IsEmpty() bool {
	return len(d.segments) == 0
}

// segmentFor returns the segment exactly matching the context set.
func (d *Data) segmentFor(set contexts.Set) (Segment, bool) {
	for _, seg := range d.segments {
		if seg.contexts.Equal(set) {
			return seg, true
		}
	}
	return Segment{}, false
}

// Permissions returns the permission entries declared for exactly the
// given context set. Subset matching is the resolver's concern.
func (d *Data) Permissions(set contexts.Set) map[string]int {
	if seg, ok := d.segmentFor(set); ok {
		return seg.Permissions()
	}
	return map[string]int{}
}

// Options returns the option entries declared for exactly the given
// context set.
func (d *Data) Options(set contexts.Set) map[string]string {
	if seg, ok := d.segmentFor(set); ok {
		return seg.Options()
	}
	return map[string]string{}
}

// Parents returns the parents declared for exactly the given context
// set, in declaration order.
func (d *Data) Parents(set contexts.Set) []Ref {
	if seg, ok := d.segmentFor(set); ok {
		return seg.Parents()
	}
	return nil
}

// withSegment returns a snapshot with the segment for its context set
// replaced. An empty segment removes the entry instead.
func (d *Data) withSegment(seg Segment) *Data {
	out := &Data{segments: make([]Segment, 0, len(d.segments)+1)}
	replaced := false
	for _, cur := range d.segments {
		if cur.contexts.Equal(seg.contexts) {
			replaced = true
			if !seg.IsEmpty() {
				out.segments = append(out.segments, seg)
			}
			continue
		}
		out.segments = append(out.segments, cur)
	}
	if !replaced && !seg.IsEmpty() {
		out.segments = append(out.segments, seg)
	}
	return out
}

// WithPermission returns a snapshot with key set to value under the
// context set. A zero value unsets the key; a segment emptied by the
// unset is pruned.
func (d *Data) WithPermission(set contexts.Set, key string, value int) *Data {
	seg, _ := d.segmentFor(set)
	perms := seg.Permissions()
	if value == 0 {
		delete(perms, key)
	} else {
		perms[key] = value
	}
	return d.withSegment(NewSegment(set, perms, seg.options, seg.parents))
}

// WithOption returns a snapshot with the option set under the context
// set. An empty value removes the option.
func (d *Data) WithOption(set contexts.Set, key, value string) *Data {
	seg, _ := d.segmentFor(set)
	opts := seg.Options()
	if value == "" {
		delete(opts, key)
	} else {
		opts[key] = value
	}
	return d.withSegment(NewSegment(set, seg.permissions, opts, seg.parents))
}

// WithParents returns a snapshot with the parent list replaced under
// the context set.
func (d *Data) WithParents(set contexts.Set, parents []Ref) *Data {
	seg, _ := d.segmentFor(set)
	return d.withSegment(NewSegment(set, seg.permissions, seg.options, parents))
}

// WithAddedParent returns a snapshot with the parent appended under
// the context set, ignoring exact duplicates.
func (d *Data) WithAddedParent(set contexts.Set, parent Ref) *Data {
	seg, _ := d.segmentFor(set)
	for _, p := range seg.parents {
		if p == parent {
			return d
		}
	}
	return d.withSegment(NewSegment(set, seg.permissions, seg.options, append(seg.Parents(), parent)))
}

// WithDefaultValue seeds the wildcard fallback permission under the
// context set. Default-subject sentinels use it so wildcard checks
// succeed unless an explicit rule overrides them.
func (d *Data) WithDefaultValue(set contexts.Set, value int) *Data {
	return d.WithPermission(set, PermissionDefault, value)
}

// matching returns the segments whose context sets are subsets of the
// active set, most specific first. Insertion order breaks ties between
// segments of equal specificity.
func (d *Data) matching(active contexts.Set) []Segment {
	out := make([]Segment, 0, len(d.segments))
	for _, seg := range d.segments {
		if seg.contexts.SubsetOf(active) {
			out = append(out, seg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].contexts.Size() > out[j].contexts.Size()
	})
	return out
}
