// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package subject

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/holomush/permcore/internal/contexts"
)

// TickSource exposes the host server's monotonically increasing
// simulation tick. The core only reads it.
type TickSource interface {
	CurrentTick() uint64
}

// activeContexts is the tick-stamped cache entry for one subject's
// accumulated context set. Valid only for the tick it was computed at;
// staleness is detected lazily on the next read.
type activeContexts struct {
	tick uint64
	set  contexts.Set
}

// CalculatedSubject combines a subject's two data tiers with its
// inheritance chain to answer permission and option queries under a
// context set. Instances are created by a Collection and cached until
// the subject is evicted.
type CalculatedSubject struct {
	ref        Ref
	persistent *DataRef
	transient  *DataRef

	resolver    *Resolver
	calculators *contexts.Registry
	ticks       TickSource

	active     atomic.Pointer[activeContexts]
	lastChain  atomic.Pointer[[]Ref]
	associated atomic.Value

	mu        sync.Mutex
	listeners []func(*CalculatedSubject)
}

// NewCalculated wires a calculated subject over its data tiers.
// Update routing (own data and ancestor data) is the owning
// collection's concern; see Collection.
func NewCalculated(ref Ref, persistent, transient *DataRef, resolver *Resolver, calculators *contexts.Registry, ticks TickSource) *CalculatedSubject {
	return &CalculatedSubject{
		ref:         ref,
		persistent:  persistent,
		transient:   transient,
		resolver:    resolver,
		calculators: calculators,
		ticks:       ticks,
	}
}

// Identifier returns the subject's reference.
func (cs *CalculatedSubject) Identifier() Ref { return cs.ref }

// Reference implements contexts.Subject.
func (cs *CalculatedSubject) Reference() (string, string) {
	return cs.ref.Type, cs.ref.Name
}

// Associated implements contexts.Subject, returning the host object
// bound via Associate, or nil.
func (cs *CalculatedSubject) Associated() any {
	return cs.associated.Load()
}

// Associate binds a host object (a connected player, say) that
// context calculators may inspect.
func (cs *CalculatedSubject) Associate(obj any) {
	cs.associated.Store(obj)
}

// Data returns the persistent-tier holder.
func (cs *CalculatedSubject) Data() *DataRef { return cs.persistent }

// TransientData returns the transient-tier holder.
func (cs *CalculatedSubject) TransientData() *DataRef { return cs.transient }

// ActiveContexts returns the subject's accumulated context set for the
// current tick. Within one tick the cached set is returned without
// re-invoking calculators; a tick advance triggers recomputation on
// the next read. Racing recomputations for the same tick are resolved
// by compare-and-swap; either result is acceptable since accumulation
// is deterministic per tick.
func (cs *CalculatedSubject) ActiveContexts() contexts.Set {
	start := time.Now()
	defer recordResolution(opActiveContexts, start)

	for {
		tick := cs.ticks.CurrentTick()
		holder := cs.active.Load()
		if holder != nil && holder.tick == tick {
			return holder.set
		}
		set := cs.calculators.Accumulate(cs)
		recordContextRecomputation()
		next := &activeContexts{tick: tick, set: set}
		if cs.active.CompareAndSwap(holder, next) {
			return set
		}
	}
}

// Permission resolves the effective value for a permission key under
// the given context set. Positive grants, negative denies, zero means
// unset. The chain is walked in order; per subject the transient tier
// precedes the persistent one; per tier, more specific segments win;
// per segment an exact key match is tried before wildcard ancestors.
// The first non-zero value found is returned.
func (cs *CalculatedSubject) Permission(ctx context.Context, set contexts.Set, key string) int {
	start := time.Now()
	defer recordResolution(opPermission, start)

	for _, ln := range cs.chain(ctx, set) {
		for _, tier := range [2]*DataRef{ln.transient, ln.persistent} {
			if tier == nil {
				continue
			}
			for _, seg := range tier.Get().matching(set) {
				if v := segmentPermission(seg, key); v != 0 {
					return v
				}
			}
		}
	}
	return 0
}

// HasPermission reports whether the effective permission value is
// positive.
func (cs *CalculatedSubject) HasPermission(ctx context.Context, set contexts.Set, key string) bool {
	return cs.Permission(ctx, set, key) > 0
}

// Option resolves a string option under the given context set using
// the same chain and specificity ordering as Permission, without
// wildcard fallback. Returns false when no entry matches.
func (cs *CalculatedSubject) Option(ctx context.Context, set contexts.Set, key string) (string, bool) {
	start := time.Now()
	defer recordResolution(opOption, start)

	for _, ln := range cs.chain(ctx, set) {
		for _, tier := range [2]*DataRef{ln.transient, ln.persistent} {
			if tier == nil {
				continue
			}
			for _, seg := range tier.Get().matching(set) {
				if v, ok := seg.option(key); ok {
					return v, true
				}
			}
		}
	}
	return "", false
}

// Parents returns the resolved inheritance chain under the context
// set, excluding the subject itself.
func (cs *CalculatedSubject) Parents(ctx context.Context, set contexts.Set) []Ref {
	start := time.Now()
	defer recordResolution(opParents, start)

	chain := cs.chain(ctx, set)
	out := make([]Ref, 0, len(chain))
	for _, ln := range chain {
		if ln.ref == cs.ref {
			continue
		}
		out = append(out, ln.ref)
	}
	return out
}

// OnUpdate registers a listener fired whenever this subject's data, or
// data of any subject in its last resolved chain, changes.
func (cs *CalculatedSubject) OnUpdate(fn func(*CalculatedSubject)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}

// chain resolves the inheritance chain and remembers which subjects it
// consulted, so ancestor updates can be routed back to this subject's
// listeners.
func (cs *CalculatedSubject) chain(ctx context.Context, set contexts.Set) []link {
	chain := cs.resolver.Chain(ctx, cs.ref, set)
	refs := make([]Ref, len(chain))
	for i, ln := range chain {
		refs[i] = ln.ref
	}
	cs.lastChain.Store(&refs)
	return chain
}

// dependsOn reports whether the given subject fed this subject's most
// recent resolution. The subject always depends on itself.
func (cs *CalculatedSubject) dependsOn(ref Ref) bool {
	if ref == cs.ref {
		return true
	}
	refs := cs.lastChain.Load()
	if refs == nil {
		return false
	}
	for _, r := range *refs {
		if r == ref {
			return true
		}
	}
	return false
}

// fireUpdated notifies listeners, isolating panics so a faulty
// listener never unwinds into the mutation path.
func (cs *CalculatedSubject) fireUpdated() {
	cs.mu.Lock()
	listeners := make([]func(*CalculatedSubject), len(cs.listeners))
	copy(listeners, cs.listeners)
	cs.mu.Unlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					slog.Warn("subject update listener panicked",
						"subject", cs.ref.String(),
						"panic", rec)
				}
			}()
			fn(cs)
		}()
	}
}

// segmentPermission looks up a key in one segment: exact match first,
// then wildcard ancestors by trimming trailing dot-segments
// ("a.b.c" → "a.b" → "a"), and finally the global wildcard.
func segmentPermission(seg Segment, key string) int {
	if v := seg.permission(key); v != 0 {
		return v
	}
	k := key
	for {
		idx := strings.LastIndexByte(k, '.')
		if idx < 0 {
			break
		}
		k = k[:idx]
		if v := seg.permission(k); v != 0 {
			return v
		}
	}
	if key != PermissionDefault {
		if v := seg.permission(PermissionDefault); v != 0 {
			return v
		}
	}
	return 0
}
