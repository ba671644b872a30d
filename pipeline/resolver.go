// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/tourvisual/timedgeo/geocache"
	"github.com/tourvisual/timedgeo/geocode"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Mode selects how queries are resolved.
type Mode string

const (
	// ModeNone skips resolution: every query stays unresolved.
	ModeNone Mode = "none"
	// ModeGoogle resolves one query at a time, spaced by Interval.
	ModeGoogle Mode = "google"
	// ModeOSM resolves queries concurrently against an OpenStreetMap geocoder.
	ModeOSM Mode = "osm"
)

// DefaultConcurrency bounds the in-flight queries of ModeOSM.
const DefaultConcurrency = 8

// DefaultInterval is the spacing between upstream calls in ModeGoogle.
const DefaultInterval = 100 * time.Millisecond

// ErrNoGeocoder is returned when a mode needs a geocoder and none was given.
var ErrNoGeocoder = errors.New("geocoder client not available")

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	// Mode of the resolution pass
	Mode Mode

	// Concurrency bounds in-flight queries, zero means DefaultConcurrency.
	// It is forced to 1 in ModeGoogle.
	Concurrency int

	// Interval is the minimum spacing between upstream calls, zero means
	// DefaultInterval in ModeGoogle and no spacing otherwise
	Interval time.Duration

	// Cache stores answers across batches, nil means an in-memory cache
	Cache geocache.Cache
}

// Outcome is the resolution of one PendingQuery. Err is set when the query
// failed; a query that failed or found nothing has Found false.
type Outcome struct {
	Candidate geocode.Candidate
	Found     bool
	Err       error
	Cached    bool // answered by the cache
	Shared    bool // answered by an identical query of the same batch
}

// Metrics tracks the work done by a Resolver.
type Metrics struct {
	Queries   int // pending queries received
	CacheHits int // answered by the cache
	Upstream  int // calls made to the geocoder
	Shared    int // answered by an identical in-flight query
	Found     int // queries with a candidate
	NotFound  int // queries without a candidate
	Failed    int // queries that failed
}

// Merge combines two Metrics.
func (m *Metrics) Merge(o *Metrics) *Metrics {
	if o == nil {
		return m
	}

	m.Queries += o.Queries
	m.CacheHits += o.CacheHits
	m.Upstream += o.Upstream
	m.Shared += o.Shared
	m.Found += o.Found
	m.NotFound += o.NotFound
	m.Failed += o.Failed

	return m
}

// Resolver resolves pending queries with a geocoder under bounded
// concurrency, caching answers and sharing identical in-flight queries.
type Resolver struct {
	geocoder    geocode.Geocoder
	mode        Mode
	concurrency int
	limiter     *rate.Limiter
	cache       geocache.Cache
	Metrics     Metrics
}

// NewResolver builds a Resolver. It fails when mode needs a geocoder and g is
// nil.
func NewResolver(g geocode.Geocoder, options ResolverOptions) (*Resolver, error) {
	r := &Resolver{
		geocoder:    g,
		mode:        options.Mode,
		concurrency: options.Concurrency,
		cache:       options.Cache,
	}

	switch r.mode {
	case ModeNone:
		return r, nil
	case ModeGoogle, ModeOSM:
	default:
		return nil, fmt.Errorf("unknown resolver mode %q", options.Mode)
	}

	if g == nil {
		return nil, fmt.Errorf("%s mode: %w", r.mode, ErrNoGeocoder)
	}

	if r.concurrency <= 0 {
		r.concurrency = DefaultConcurrency
	}

	interval := options.Interval

	if r.mode == ModeGoogle {
		r.concurrency = 1

		if interval == 0 {
			interval = DefaultInterval
		}
	}

	if interval > 0 {
		r.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}

	if r.cache == nil {
		r.cache = geocache.NewMemory(geocache.DefaultTTL)
	}

	return r, nil
}

// Mode returns the resolution mode.
func (r *Resolver) Mode() Mode {
	return r.mode
}

// call is an in-flight or completed lookup shared by identical queries.
type call struct {
	done chan struct{}
	out  Outcome
}

// batch memoizes lookups by query string for the lifetime of one Resolve.
type batch struct {
	mu    sync.Mutex
	calls map[string]*call
}

// do runs fn once per key. Later callers wait for the first one and get its
// outcome with shared set.
func (b *batch) do(key string, fn func() Outcome) (Outcome, bool) {
	b.mu.Lock()
	if c, ok := b.calls[key]; ok {
		b.mu.Unlock()
		<-c.done

		return c.out, true
	}

	c := &call{done: make(chan struct{})}
	b.calls[key] = c
	b.mu.Unlock()

	defer close(c.done)

	c.out = fn()

	return c.out, false
}

// Resolve returns one Outcome per item, aligned with items. Failures of single
// items are reported in their Outcome and never abort the batch; the error is
// only set when ctx ends before the batch completes.
func (r *Resolver) Resolve(ctx context.Context, items []PendingQuery) ([]Outcome, error) {
	outcomes := make([]Outcome, len(items))

	if r.mode == ModeNone || len(items) == 0 {
		r.Metrics.Queries += len(items)
		r.Metrics.NotFound += len(items)

		return outcomes, nil
	}

	var bar *progressbar.ProgressBar
	if isatty.IsTerminal(os.Stderr.Fd()) {
		bar = progressbar.NewOptions(len(items),
			progressbar.OptionSetDescription("Geocoding with "+r.geocoder.Name()),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	memo := &batch{calls: make(map[string]*call)}
	metricsChan := make(chan *Metrics, len(items))

	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)

	for i, item := range items {
		g.Go(func() error {
			out, shared := memo.do(item.Query, func() Outcome {
				return r.lookup(ctx, item.Query)
			})
			out.Shared = shared
			outcomes[i] = out

			metricsChan <- outcomeMetrics(out)

			if bar == nil {
				log.Printf("Geocoding %q: %s", item.Query, describe(out))
			} else if err := bar.Add(1); err != nil {
				log.Printf("Warning: updating progress bar: %v", err)
			}

			return nil
		})
	}

	_ = g.Wait()
	close(metricsChan)

	for m := range metricsChan {
		r.Metrics.Merge(m)
	}

	return outcomes, ctx.Err()
}

// lookup answers one query from the cache or the geocoder.
func (r *Resolver) lookup(ctx context.Context, query string) Outcome {
	namespace := r.geocoder.Name()

	entry, ok, err := r.cache.Get(ctx, namespace, query)
	if err != nil {
		log.Printf("Warning: cache lookup for %q failed: %v", query, err)
	} else if ok {
		return Outcome{Candidate: entry.Candidate, Found: entry.Found, Cached: true}
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return Outcome{Err: err}
		}
	}

	out := r.fetch(ctx, query)

	// Transient failures are left out so a later run retries them.
	if out.Err != nil && geocode.IsTransient(out.Err) {
		return out
	}

	if err := r.cache.Put(ctx, namespace, query, geocache.Entry{Found: out.Found, Candidate: out.Candidate}); err != nil {
		log.Printf("Warning: caching %q failed: %v", query, err)
	}

	return out
}

func (r *Resolver) fetch(ctx context.Context, query string) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			out = Outcome{Err: fmt.Errorf("geocoder %s panicked on %q: %v", r.geocoder.Name(), query, p)}
		}
	}()

	resp, err := r.geocoder.Geocode(ctx, query)
	if err != nil {
		return Outcome{Err: err}
	}

	cand, found, err := resp.Candidate()
	if err != nil {
		return Outcome{Err: err}
	}

	return Outcome{Candidate: cand, Found: found}
}

func outcomeMetrics(out Outcome) *Metrics {
	m := &Metrics{Queries: 1}

	switch {
	case out.Shared:
		m.Shared++
	case out.Cached:
		m.CacheHits++
	default:
		m.Upstream++
	}

	switch {
	case out.Err != nil:
		m.Failed++
	case out.Found:
		m.Found++
	default:
		m.NotFound++
	}

	return m
}

func describe(out Outcome) string {
	switch {
	case out.Err != nil:
		return "failed"
	case !out.Found:
		return "not found"
	case out.Cached:
		return fmt.Sprintf("%v (cached)", out.Candidate.Point)
	default:
		return out.Candidate.Point.String()
	}
}
