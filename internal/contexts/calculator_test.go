// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package contexts

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSubject struct {
	typ, name  string
	associated any
}

func (s stubSubject) Reference() (string, string) { return s.typ, s.name }
func (s stubSubject) Associated() any             { return s.associated }

func worldCalculator(world string) Calculator {
	return CalculatorFunc{
		CalcName: "world",
		Fn: func(_ Subject, acc *Accumulator) {
			acc.Add("world", world)
		},
	}
}

func TestRegistry_Accumulate(t *testing.T) {
	r := NewRegistry()
	r.Register(worldCalculator("nether"))
	r.Register(CalculatorFunc{
		CalcName: "dimension",
		Fn: func(_ Subject, acc *Accumulator) {
			acc.AddValue(NewValue("dimension", "end"))
		},
	})

	set := r.Accumulate(stubSubject{typ: "user", name: "alice"})
	require.Equal(t, 2, set.Size())
	assert.True(t, set.Contains(NewValue("world", "nether")))
	assert.True(t, set.Contains(NewValue("dimension", "end")))
}

func TestRegistry_AccumulateEmpty(t *testing.T) {
	r := NewRegistry()
	set := r.Accumulate(stubSubject{typ: "user", name: "alice"})
	assert.True(t, set.IsGlobal())
}

func TestRegistry_PanickingCalculatorIsIsolated(t *testing.T) {
	r := NewRegistry()
	r.Register(worldCalculator("nether"))
	r.Register(CalculatorFunc{
		CalcName: "faulty",
		Fn: func(_ Subject, acc *Accumulator) {
			acc.Add("partial", "tag") // must be discarded with the panic
			panic("boom")
		},
	})

	set := r.Accumulate(stubSubject{typ: "user", name: "alice"})
	assert.Equal(t, 1, set.Size(), "faulty calculator contributes nothing")
	assert.True(t, set.Contains(NewValue("world", "nether")))
	assert.False(t, set.Contains(NewValue("partial", "tag")))
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	r.Register(worldCalculator("nether"))
	require.Equal(t, 1, r.Len())

	assert.True(t, r.Unregister("world"))
	assert.False(t, r.Unregister("world"))
	assert.Equal(t, 0, r.Len())

	set := r.Accumulate(stubSubject{typ: "user", name: "alice"})
	assert.True(t, set.IsGlobal())
}

func TestRegistry_ConcurrentRegisterAndAccumulate(t *testing.T) {
	r := NewRegistry()
	subject := stubSubject{typ: "user", name: "alice"}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 100 {
				r.Register(worldCalculator("nether"))
				r.Unregister("world")
			}
		}()
		go func() {
			defer wg.Done()
			for range 100 {
				_ = r.Accumulate(subject)
			}
		}()
	}
	wg.Wait()
}
