// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

package geocache

import (
	"context"
	"sync"
	"time"

	"github.com/tourvisual/timedgeo/spatial"
)

type memoryKey struct {
	namespace string
	query     string
}

// Memory is a process-local Cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[memoryKey]Entry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemory creates an empty in-memory cache. A zero ttl selects DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Memory{
		entries: make(map[memoryKey]Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, namespace, query string) (Entry, bool, error) {
	key := memoryKey{namespace, query}

	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return Entry{}, false, nil
	}

	if e.Expired(m.now(), m.ttl) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()

		return Entry{}, false, nil
	}

	return e, true, nil
}

func (m *Memory) Put(_ context.Context, namespace, query string, entry Entry) error {
	if entry.StoredAt.IsZero() {
		entry.StoredAt = m.now()
	}

	m.mu.Lock()
	m.entries[memoryKey{namespace, query}] = entry
	m.mu.Unlock()

	return nil
}

func (m *Memory) Close() error {
	return nil
}

// Stats counts the entries held in memory.
func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s Stats

	now := m.now()
	cells := make(map[int64]struct{})

	for _, e := range m.entries {
		s.Entries++

		if e.Expired(now, m.ttl) {
			s.Expired++
		}

		if !e.Found {
			s.Negative++

			continue
		}

		s.Found++

		if cell, err := e.Candidate.Point.H3Cell(spatial.CacheResolution); err == nil {
			cells[cell] = struct{}{}
		}
	}

	s.Cells = int64(len(cells))

	return s, nil
}
