// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package subject

import "sync/atomic"

// ManualTicker is a TickSource advanced explicitly by its owner. The
// host server normally supplies its own tick counter; ManualTicker
// serves CLIs and tests, where no simulation loop exists.
type ManualTicker struct {
	tick atomic.Uint64
}

// NewManualTicker creates a ticker at tick zero.
func NewManualTicker() *ManualTicker {
	return &ManualTicker{}
}

// CurrentTick implements TickSource.
func (t *ManualTicker) CurrentTick() uint64 {
	return t.tick.Load()
}

// Advance moves to the next tick and returns it.
func (t *ManualTicker) Advance() uint64 {
	return t.tick.Add(1)
}
