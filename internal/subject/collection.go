// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package subject

import (
	"context"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/holomush/permcore/internal/contexts"
)

// Loader fetches a subject's persistent data from the backing store.
// Absent subjects return (nil, nil); the collection treats them as
// empty. Only load failures are errors.
type Loader interface {
	Load(ctx context.Context, ref Ref) (*Data, error)
}

// dataEntry pairs the two tiers held in memory for one subject.
type dataEntry struct {
	persistent *DataRef
	transient  *DataRef
}

// Collection caches the calculated subjects of one subject type.
// Subjects are created lazily on first lookup, populated from the
// backing store, and evicted explicitly on Uncache.
type Collection struct {
	subjectType string
	defaultName string
	loader      Loader
	resolver    *Resolver
	calculators *contexts.Registry
	ticks       TickSource
	onUpdate    func(Ref)

	mu       sync.RWMutex
	entries  map[string]*dataEntry
	subjects map[string]*CalculatedSubject
}

// NewCollection creates a collection. defaultName may be empty when
// the type has no default subject. onUpdate, when non-nil, is invoked
// with the subject reference after any data change in either tier;
// the engine uses it to route updates to dependent subjects.
func NewCollection(subjectType, defaultName string, loader Loader, resolver *Resolver, calculators *contexts.Registry, ticks TickSource, onUpdate func(Ref)) *Collection {
	return &Collection{
		subjectType: subjectType,
		defaultName: defaultName,
		loader:      loader,
		resolver:    resolver,
		calculators: calculators,
		ticks:       ticks,
		onUpdate:    onUpdate,
		entries:     make(map[string]*dataEntry),
		subjects:    make(map[string]*CalculatedSubject),
	}
}

// SubjectType returns the type this collection serves.
func (c *Collection) SubjectType() string { return c.subjectType }

// Default returns the type's default subject, if configured.
func (c *Collection) Default() (Ref, bool) {
	if c.defaultName == "" {
		return Ref{}, false
	}
	return NewRef(c.subjectType, c.defaultName), true
}

// Get returns the calculated subject for the name, creating and
// populating it from the backing store on first lookup.
func (c *Collection) Get(ctx context.Context, name string) (*CalculatedSubject, error) {
	c.mu.RLock()
	cs, ok := c.subjects[name]
	c.mu.RUnlock()
	if ok {
		return cs, nil
	}

	entry, err := c.entry(ctx, name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cs, ok := c.subjects[name]; ok {
		return cs, nil
	}
	cs = NewCalculated(NewRef(c.subjectType, name), entry.persistent, entry.transient, c.resolver, c.calculators, c.ticks)
	c.subjects[name] = cs
	return cs, nil
}

// Data returns the persistent-tier holder for the name, loading the
// subject if needed.
func (c *Collection) Data(ctx context.Context, name string) (*DataRef, error) {
	entry, err := c.entry(ctx, name)
	if err != nil {
		return nil, err
	}
	return entry.persistent, nil
}

// TransientData returns the transient-tier holder for the name.
func (c *Collection) TransientData(ctx context.Context, name string) (*DataRef, error) {
	entry, err := c.entry(ctx, name)
	if err != nil {
		return nil, err
	}
	return entry.transient, nil
}

// SetDefaultValue seeds the wildcard fallback permission on the named
// subject under the context set.
func (c *Collection) SetDefaultValue(ctx context.Context, name string, set contexts.Set, value int) error {
	ref, err := c.Data(ctx, name)
	if err != nil {
		return err
	}
	_, err = ref.Update(ctx, func(d *Data) *Data {
		return d.WithDefaultValue(set, value)
	})
	return err
}

// Uncache evicts a subject and its in-memory data, e.g. when a player
// quits. The next lookup reloads from the backing store.
func (c *Collection) Uncache(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subjects, name)
	delete(c.entries, name)
}

// Reload replaces a cached subject's persistent data with a fresh
// snapshot from the backing store. Subjects not currently cached are
// ignored. Used when the store reports an external change.
func (c *Collection) Reload(ctx context.Context, name string) error {
	c.mu.RLock()
	entry, ok := c.entries[name]
	c.mu.RUnlock()
	if !ok {
		return nil
	}
	data, err := c.loader.Load(ctx, NewRef(c.subjectType, name))
	if err != nil {
		return oops.
			With("subject_type", c.subjectType).
			With("subject", name).
			Wrapf(err, "reload subject data")
	}
	entry.persistent.Replace(data)
	return nil
}

// Cached returns the references of all currently cached subjects.
func (c *Collection) Cached() []Ref {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Ref, 0, len(c.subjects))
	for name := range c.subjects {
		out = append(out, NewRef(c.subjectType, name))
	}
	return out
}

// Matching returns cached subjects whose names match the glob
// pattern, e.g. "admin*" or "*".
func (c *Collection) Matching(pattern string) ([]Ref, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, oops.
			Code("INVALID_PATTERN").
			With("pattern", pattern).
			Wrapf(err, "compile subject pattern")
	}
	var out []Ref
	for _, ref := range c.Cached() {
		if g.Match(ref.Name) {
			out = append(out, ref)
		}
	}
	return out, nil
}

// NotifyDependents fires the update listeners of every cached subject
// whose last resolution consulted the given reference.
func (c *Collection) NotifyDependents(ref Ref) {
	c.mu.RLock()
	subjects := make([]*CalculatedSubject, 0, len(c.subjects))
	for _, cs := range c.subjects {
		subjects = append(subjects, cs)
	}
	c.mu.RUnlock()

	for _, cs := range subjects {
		if cs.dependsOn(ref) {
			cs.fireUpdated()
		}
	}
}

// entry returns the in-memory tiers for a subject, loading the
// persistent tier from the backing store on first access.
func (c *Collection) entry(ctx context.Context, name string) (*dataEntry, error) {
	c.mu.RLock()
	entry, ok := c.entries[name]
	c.mu.RUnlock()
	if ok {
		return entry, nil
	}

	ref := NewRef(c.subjectType, name)
	data, err := c.loader.Load(ctx, ref)
	if err != nil {
		return nil, oops.
			With("subject_type", c.subjectType).
			With("subject", name).
			Wrapf(err, "load subject data")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[name]; ok {
		return entry, nil
	}
	entry = &dataEntry{
		persistent: NewDataRef(ref, TierPersistent, data),
		transient:  NewDataRef(ref, TierTransient, nil),
	}
	if c.onUpdate != nil {
		entry.persistent.OnUpdate(func(*Data) { c.onUpdate(ref) })
		entry.transient.OnUpdate(func(*Data) { c.onUpdate(ref) })
	}
	c.entries[name] = entry
	return entry, nil
}
