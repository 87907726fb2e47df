// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store persists subject data snapshots. PostgresStore is the
// production backend; MemoryStore serves tests and single-process
// setups without a database.
package store

import (
	"context"
	"sync"

	"github.com/holomush/permcore/internal/subject"
)

// Store is the persistence surface for subject data.
type Store interface {
	// Load fetches a subject's persisted snapshot. Absent subjects
	// return (nil, nil).
	Load(ctx context.Context, ref subject.Ref) (*subject.Data, error)

	// Save persists a snapshot. A nil or empty snapshot removes the
	// subject's record.
	Save(ctx context.Context, ref subject.Ref, data *subject.Data) error
}

// MemoryStore keeps subject data in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[subject.Ref]*subject.Data
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[subject.Ref]*subject.Data)}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, ref subject.Ref) (*subject.Data, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[ref], nil
}

// Save implements Store. Snapshots are immutable, so they are held by
// reference.
func (s *MemoryStore) Save(_ context.Context, ref subject.Ref, data *subject.Data) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data == nil || data.IsEmpty() {
		delete(s.data, ref)
		return nil
	}
	s.data[ref] = data
	return nil
}

// Len returns the number of stored subjects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
