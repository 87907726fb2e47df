// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package engine assembles the permission core: one subject collection
// per configured type, a shared inheritance resolver, the context
// calculator registry, and the persistence surface. Hosts create an
// Engine at startup and hand calculated subjects to game code.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/samber/oops"

	"github.com/holomush/permcore/internal/contexts"
	"github.com/holomush/permcore/internal/subject"
)

// Store is the persistence surface the engine requires.
type Store interface {
	subject.Loader

	// Save persists a subject's data snapshot. A nil or empty snapshot
	// removes the subject's stored record.
	Save(ctx context.Context, ref subject.Ref, data *subject.Data) error
}

// Listener abstracts the store's change-notification mechanism. The
// channel emits "type:name" payloads and closes when the context is
// cancelled.
type Listener interface {
	Listen(ctx context.Context) (<-chan string, error)
}

// TypeConfig declares one subject type the engine serves.
type TypeConfig struct {
	// Name is the subject type, e.g. "user" or "group".
	Name string

	// Default names the type's fallback subject. Parentless subjects
	// of this type inherit from it. Empty disables the fallback.
	Default string

	// DefaultPermissions seeds permissions onto the default subject's
	// global segment during Init. Ignored when Default is empty.
	DefaultPermissions map[string]int
}

// Engine is the root object of the permission core. It implements
// subject.DataSource over its registered collections.
type Engine struct {
	store       Store
	calculators *contexts.Registry
	ticks       subject.TickSource
	resolver    *subject.Resolver
	collections map[string]*subject.Collection
	types       []TypeConfig

	ready atomic.Bool
	wg    sync.WaitGroup
}

var _ subject.DataSource = (*Engine)(nil)

// New creates an engine over the store with one collection per
// configured type. Call Init before serving queries.
func New(st Store, ticks subject.TickSource, types []TypeConfig) *Engine {
	e := &Engine{
		store:       st,
		calculators: contexts.NewRegistry(),
		ticks:       ticks,
		collections: make(map[string]*subject.Collection, len(types)),
		types:       types,
	}
	e.resolver = subject.NewResolver(e)
	for _, tc := range types {
		e.collections[tc.Name] = subject.NewCollection(
			tc.Name, tc.Default, st, e.resolver, e.calculators, ticks, e.broadcast)
	}
	return e
}

// Init seeds the configured default subjects and marks the engine
// ready. Seeded wildcard values are written through to the store so
// they survive restarts.
func (e *Engine) Init(ctx context.Context) error {
	for _, tc := range e.types {
		if tc.Default == "" || len(tc.DefaultPermissions) == 0 {
			continue
		}
		ref := subject.NewRef(tc.Name, tc.Default)
		global := contexts.NewSet()
		_, err := e.UpdateData(ctx, ref, func(d *subject.Data) *subject.Data {
			for key, value := range tc.DefaultPermissions {
				d = d.WithPermission(global, key, value)
			}
			return d
		})
		if err != nil {
			return oops.
				With("subject", ref.String()).
				Wrapf(err, "seed default subject")
		}
	}
	e.ready.Store(true)
	return nil
}

// Ready reports whether Init has completed.
func (e *Engine) Ready() bool {
	return e.ready.Load()
}

// Subjects returns the collection for a subject type.
func (e *Engine) Subjects(subjectType string) (*subject.Collection, error) {
	col, ok := e.collections[subjectType]
	if !ok {
		return nil, oops.
			Code("SUBJECT_TYPE_UNKNOWN").
			With("subject_type", subjectType).
			Errorf("no collection registered for subject type %q", subjectType)
	}
	return col, nil
}

// SubjectTypes returns the configured subject types.
func (e *Engine) SubjectTypes() []string {
	out := make([]string, 0, len(e.collections))
	for _, tc := range e.types {
		out = append(out, tc.Name)
	}
	return out
}

// Subject returns the calculated subject for a reference.
func (e *Engine) Subject(ctx context.Context, ref subject.Ref) (*subject.CalculatedSubject, error) {
	col, err := e.Subjects(ref.Type)
	if err != nil {
		return nil, err
	}
	return col.Get(ctx, ref.Name)
}

// UpdateData applies a mutator to a subject's persistent data and
// writes the result through to the store.
func (e *Engine) UpdateData(ctx context.Context, ref subject.Ref, mutate func(*subject.Data) *subject.Data) (*subject.Data, error) {
	col, err := e.Subjects(ref.Type)
	if err != nil {
		return nil, err
	}
	dref, err := col.Data(ctx, ref.Name)
	if err != nil {
		return nil, err
	}
	data, err := dref.Update(ctx, mutate)
	if err != nil {
		return nil, err
	}
	if err := e.store.Save(ctx, ref, data); err != nil {
		return nil, oops.
			With("subject", ref.String()).
			Wrapf(err, "persist subject data")
	}
	return data, nil
}

// UpdateTransientData applies a mutator to a subject's transient data.
// Transient data is never persisted.
func (e *Engine) UpdateTransientData(ctx context.Context, ref subject.Ref, mutate func(*subject.Data) *subject.Data) (*subject.Data, error) {
	col, err := e.Subjects(ref.Type)
	if err != nil {
		return nil, err
	}
	dref, err := col.TransientData(ctx, ref.Name)
	if err != nil {
		return nil, err
	}
	return dref.Update(ctx, mutate)
}

// RegisterContextCalculator adds a calculator consulted during active
// context accumulation.
func (e *Engine) RegisterContextCalculator(c contexts.Calculator) {
	e.calculators.Register(c)
}

// UnregisterContextCalculator removes all calculators with the name.
func (e *Engine) UnregisterContextCalculator(name string) bool {
	return e.calculators.Unregister(name)
}

// DataFor implements subject.DataSource.
func (e *Engine) DataFor(ctx context.Context, ref subject.Ref) (*subject.DataRef, *subject.DataRef, error) {
	col, err := e.Subjects(ref.Type)
	if err != nil {
		return nil, nil, err
	}
	persistent, err := col.Data(ctx, ref.Name)
	if err != nil {
		return nil, nil, err
	}
	transient, err := col.TransientData(ctx, ref.Name)
	if err != nil {
		return nil, nil, err
	}
	return persistent, transient, nil
}

// DefaultFor implements subject.DataSource.
func (e *Engine) DefaultFor(subjectType string) (subject.Ref, bool) {
	col, ok := e.collections[subjectType]
	if !ok {
		return subject.Ref{}, false
	}
	return col.Default()
}

// StartWithListener spawns the background goroutine that reloads
// subjects when the store reports an external change. The goroutine
// exits when the context is cancelled or the listener channel closes.
func (e *Engine) StartWithListener(ctx context.Context, listener Listener) error {
	ch, err := listener.Listen(ctx)
	if err != nil {
		return oops.Wrapf(err, "start store listener")
	}
	e.wg.Add(1)
	go e.listenLoop(ctx, ch)
	return nil
}

// Wait blocks until all background goroutines have exited.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// listenLoop processes change notifications and reloads the named
// subject from the store.
func (e *Engine) listenLoop(ctx context.Context, ch <-chan string) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			ref, err := subject.ParseRef(payload)
			if err != nil {
				slog.WarnContext(ctx, "ignoring malformed change notification",
					"payload", payload,
					"error", err)
				continue
			}
			col, ok := e.collections[ref.Type]
			if !ok {
				continue
			}
			if err := col.Reload(ctx, ref.Name); err != nil {
				slog.ErrorContext(ctx, "subject reload on notification failed",
					"subject", ref.String(),
					"error", err)
			}
		}
	}
}

// broadcast routes a subject data change to every collection so
// dependents re-fire their update listeners.
func (e *Engine) broadcast(ref subject.Ref) {
	for _, col := range e.collections {
		col.NotifyDependents(ref)
	}
}
