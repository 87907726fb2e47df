// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package contexts

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Subject is the read-only view a calculator gets of the subject being
// resolved. Calculators must not mutate the subject.
type Subject interface {
	// Reference returns the subject's type and name.
	Reference() (subjectType, name string)

	// Associated returns the host object bound to this subject (a
	// connected player, for example), or nil.
	Associated() any
}

// Calculator contributes context tags for a subject. Implementations
// are registered by the host and may be added or removed at any time.
// Registry iteration order is unspecified; contributions are merged by
// union, so calculators must not rely on ordering.
type Calculator interface {
	// Name identifies the calculator in logs and for Unregister.
	Name() string

	// Accumulate appends zero or more tags for the subject.
	Accumulate(subject Subject, acc *Accumulator)
}

// Accumulator collects tags emitted by calculators during one
// accumulation pass.
type Accumulator struct {
	values []Value
}

// Add records a context tag.
func (a *Accumulator) Add(key, val string) {
	a.values = append(a.values, Value{Key: key, Val: val})
}

// AddValue records an already-constructed tag.
func (a *Accumulator) AddValue(v Value) {
	a.values = append(a.values, v)
}

// Registry holds the registered calculators. Reads are lock-free:
// the calculator slice is immutable and swapped atomically on
// mutation, so Accumulate never blocks a Register.
type Registry struct {
	mu    sync.Mutex
	calcs atomic.Pointer[[]Calculator]
}

// NewRegistry creates an empty calculator registry.
func NewRegistry() *Registry {
	r := &Registry{}
	empty := []Calculator{}
	r.calcs.Store(&empty)
	return r
}

// Register adds a calculator.
func (r *Registry) Register(c Calculator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := *r.calcs.Load()
	next := make([]Calculator, len(cur)+1)
	copy(next, cur)
	next[len(cur)] = c
	r.calcs.Store(&next)
}

// Unregister removes all calculators with the given name. Returns
// true if any were removed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := *r.calcs.Load()
	next := make([]Calculator, 0, len(cur))
	for _, c := range cur {
		if c.Name() != name {
			next = append(next, c)
		}
	}
	if len(next) == len(cur) {
		return false
	}
	r.calcs.Store(&next)
	return true
}

// Len returns the number of registered calculators.
func (r *Registry) Len() int {
	return len(*r.calcs.Load())
}

// Accumulate runs every registered calculator against the subject and
// merges the emitted tags into one set. A panicking calculator
// contributes nothing; the fault is logged and resolution continues.
func (r *Registry) Accumulate(subject Subject) Set {
	calcs := *r.calcs.Load()
	acc := &Accumulator{}
	for _, c := range calcs {
		runCalculator(c, subject, acc)
	}
	return NewSet(acc.values...)
}

// runCalculator isolates one calculator invocation so a panic only
// discards that calculator's contribution.
func runCalculator(c Calculator, subject Subject, acc *Accumulator) {
	mark := len(acc.values)
	defer func() {
		if rec := recover(); rec != nil {
			acc.values = acc.values[:mark]
			subjectType, name := subject.Reference()
			slog.Warn("context calculator panicked, contribution discarded",
				"calculator", c.Name(),
				"subject_type", subjectType,
				"subject", name,
				"panic", rec)
		}
	}()
	c.Accumulate(subject, acc)
}

// CalculatorFunc adapts a function to the Calculator interface.
type CalculatorFunc struct {
	CalcName string
	Fn       func(subject Subject, acc *Accumulator)
}

// Name implements Calculator.
func (f CalculatorFunc) Name() string { return f.CalcName }

// Accumulate implements Calculator.
func (f CalculatorFunc) Accumulate(subject Subject, acc *Accumulator) {
	f.Fn(subject, acc)
}
