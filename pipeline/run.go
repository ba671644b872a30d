// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"fmt"
	"log"

	"github.com/tourvisual/timedgeo/itinerary"
	"github.com/tourvisual/timedgeo/utils/textutils"
)

// Options configures Run.
type Options struct {
	// DefaultCountry biases events that carry neither country nor country_code
	DefaultCountry string
}

// Run resolves the places of events and returns their render shape. The
// caller's events are never modified.
func Run(ctx context.Context, events []itinerary.Event, resolver *Resolver, options Options) ([]itinerary.RenderEvent, error) {
	working := make([]itinerary.Event, len(events))
	for i, e := range events {
		working[i] = e.Clone().Backfill()
	}

	items := BuildPending(working, options.DefaultCountry)

	outcomes, err := resolver.Resolve(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("resolving %d queries: %w", len(items), err)
	}

	rendered, applied := Apply(working, items, outcomes)

	if resolver.Mode() != ModeNone {
		m := resolver.Metrics
		log.Printf(
			"Geocoding complete - %d queries, %d upstream calls, %d cache hits, %d shared, %d found, %d not found, %d failed.",
			m.Queries, m.Upstream, m.CacheHits, m.Shared, m.Found, m.NotFound, m.Failed,
		)
	}

	var (
		markers int
		total   float64
	)

	for _, r := range rendered {
		if r.HasMarker() {
			markers++
		}

		if r.DistanceMeters != nil {
			total += *r.DistanceMeters
		}
	}

	log.Printf(
		"%s of %s events have markers - %d points applied, %d rejected by country, %d unresolved, %s between start and end points.",
		textutils.FormatInt(int64(markers)),
		textutils.FormatInt(int64(len(rendered))),
		applied.Applied, applied.Rejected, applied.Unresolved,
		textutils.FormatMeters(total),
	)

	return rendered, nil
}
