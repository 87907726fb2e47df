// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package subject

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Tier labels for the two data partitions every subject carries.
const (
	TierPersistent = "persistent"
	TierTransient  = "transient"
)

// Update contention bounds. A conflict re-runs the mutator over a
// fresh snapshot.
const (
	updateMaxRetries   = 16
	updateRetryBackoff = 50 * time.Microsecond
)

// errUpdateConflict marks a CAS failure as retryable inside Update.
var errUpdateConflict = oops.Code("UPDATE_CONFLICT").Errorf("concurrent update conflict")

// DataRef is the mutable holder for one subject's data in one tier.
// Readers load an immutable snapshot without locking; writers go
// through Update, which retries an optimistic compare-and-swap.
type DataRef struct {
	subject Ref
	tier    string
	cur     atomic.Pointer[Data]

	mu        sync.Mutex
	listeners []func(*Data)
}

// NewDataRef creates a holder for the subject seeded with the given
// snapshot; nil seeds an empty snapshot.
func NewDataRef(subject Ref, tier string, initial *Data) *DataRef {
	if initial == nil {
		initial = &Data{}
	}
	r := &DataRef{subject: subject, tier: tier}
	r.cur.Store(initial)
	return r
}

// Subject returns the reference this holder belongs to.
func (r *DataRef) Subject() Ref { return r.subject }

// Tier returns the tier label ("persistent" or "transient").
func (r *DataRef) Tier() string { return r.tier }

// Get returns the current snapshot. Never nil.
func (r *DataRef) Get() *Data {
	return r.cur.Load()
}

// Update applies a pure function to the current snapshot and atomically
// swaps in the result. On contention the mutator is re-run against the
// fresh snapshot, up to a bounded number of attempts; exhaustion
// surfaces an UPDATE_CONFLICT error. Listeners fire after a successful
// swap, before Update returns.
func (r *DataRef) Update(ctx context.Context, mutate func(*Data) *Data) (*Data, error) {
	var swapped *Data
	backoff := retry.WithMaxRetries(updateMaxRetries, retry.NewConstant(updateRetryBackoff))
	err := retry.Do(ctx, backoff, func(_ context.Context) error {
		old := r.cur.Load()
		next := mutate(old)
		if next == nil {
			next = &Data{}
		}
		if !r.cur.CompareAndSwap(old, next) {
			recordUpdateConflict(r.subject.Type)
			return retry.RetryableError(errUpdateConflict)
		}
		swapped = next
		return nil
	})
	if err != nil {
		return nil, oops.
			Code("UPDATE_CONFLICT").
			With("subject", r.subject.String()).
			With("tier", r.tier).
			Wrapf(err, "subject data update exhausted retries")
	}
	r.notify(swapped)
	return swapped, nil
}

// Replace unconditionally installs a snapshot, notifying listeners.
// Used when the backing store reports external changes.
func (r *DataRef) Replace(d *Data) {
	if d == nil {
		d = &Data{}
	}
	r.cur.Store(d)
	r.notify(d)
}

// OnUpdate registers a listener invoked with each newly installed
// snapshot. Listener invocation is fire-and-forget: a panicking
// listener is logged and never propagates back to the mutator.
func (r *DataRef) OnUpdate(fn func(*Data)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *DataRef) notify(d *Data) {
	r.mu.Lock()
	listeners := make([]func(*Data), len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					slog.Warn("subject data listener panicked",
						"subject", r.subject.String(),
						"tier", r.tier,
						"panic", rec)
				}
			}()
			fn(d)
		}()
	}
}
