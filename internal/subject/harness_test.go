// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package subject

import (
	"context"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/permcore/internal/contexts"
)

// memLoader is an in-memory Loader seeded per test.
type memLoader struct {
	mu   sync.Mutex
	data map[Ref]*Data
	errs map[Ref]error
}

func newMemLoader() *memLoader {
	return &memLoader{
		data: make(map[Ref]*Data),
		errs: make(map[Ref]error),
	}
}

func (l *memLoader) Load(_ context.Context, ref Ref) (*Data, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.errs[ref]; err != nil {
		return nil, err
	}
	return l.data[ref], nil
}

func (l *memLoader) seed(ref Ref, d *Data) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.data[ref] = d
}

// universe wires collections, a resolver, and a calculator registry
// the way the engine does, scoped to one test.
type universe struct {
	collections map[string]*Collection
	defaults    map[string]string
	registry    *contexts.Registry
	ticks       *ManualTicker
	loader      *memLoader
	resolver    *Resolver
}

func newUniverse(defaults map[string]string, types ...string) *universe {
	u := &universe{
		collections: make(map[string]*Collection),
		defaults:    defaults,
		registry:    contexts.NewRegistry(),
		ticks:       NewManualTicker(),
		loader:      newMemLoader(),
	}
	u.resolver = NewResolver(u)
	for _, typ := range types {
		u.collections[typ] = NewCollection(typ, defaults[typ], u.loader, u.resolver, u.registry, u.ticks, u.broadcast)
	}
	return u
}

func (u *universe) DataFor(ctx context.Context, ref Ref) (*DataRef, *DataRef, error) {
	col, ok := u.collections[ref.Type]
	if !ok {
		return nil, nil, oops.
			Code("SUBJECT_TYPE_UNKNOWN").
			With("subject_type", ref.Type).
			Errorf("no collection registered for subject type %q", ref.Type)
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

func (u *universe) DefaultFor(subjectType string) (Ref, bool) {
	name, ok := u.defaults[subjectType]
	if !ok || name == "" {
		return Ref{}, false
	}
	return NewRef(subjectType, name), true
}

func (u *universe) broadcast(ref Ref) {
	for _, col := range u.collections {
		col.NotifyDependents(ref)
	}
}

func (u *universe) mustGet(ctx context.Context, typ, name string) *CalculatedSubject {
	cs, err := u.collections[typ].Get(ctx, name)
	if err != nil {
		panic(err)
	}
	return cs
}

// mustUpdate applies a mutator to a subject's persistent data.
func (u *universe) mustUpdate(ctx context.Context, typ, name string, mutate func(*Data) *Data) {
	ref, err := u.collections[typ].Data(ctx, name)
	if err != nil {
		panic(err)
	}
	if _, err := ref.Update(ctx, mutate); err != nil {
		panic(err)
	}
}
