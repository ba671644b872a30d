// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

// Package geocache stores normalized geocoder answers, including negative
// ones, for a bounded time.
package geocache

import (
	"context"
	"time"

	"github.com/tourvisual/timedgeo/geocode"
)

// DefaultTTL is how long an entry stays valid.
const DefaultTTL = 24 * time.Hour

// Entry is a cached answer. Found is false for queries the provider could not
// resolve.
type Entry struct {
	Found     bool
	Candidate geocode.Candidate
	StoredAt  time.Time
}

// Expired reports whether the entry is older than ttl at now.
func (e Entry) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.StoredAt) > ttl
}

// Cache maps (namespace, query) to an Entry. Namespaces keep answers of
// different providers apart. Expired entries are never returned.
type Cache interface {
	Get(ctx context.Context, namespace, query string) (Entry, bool, error)
	Put(ctx context.Context, namespace, query string, entry Entry) error
	Close() error
}

// Stats summarizes the content of a cache.
type Stats struct {
	Entries  int64 `json:"entries"`
	Found    int64 `json:"found"`
	Negative int64 `json:"negative"`
	Expired  int64 `json:"expired"`
	Cells    int64 `json:"cells"` // distinct H3 cells of found entries
}
