// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"log"

	"github.com/tourvisual/timedgeo/itinerary"
)

// ApplyMetrics tracks what happened to resolved candidates.
type ApplyMetrics struct {
	Applied    int // coordinate pairs written
	Rejected   int // candidates discarded by the country filter
	Unresolved int // queries without a usable candidate
}

// Apply builds the render events: a fresh projection of every event, with the
// accepted outcomes written on it. outcomes is aligned with items. events is
// left untouched.
func Apply(events []itinerary.Event, items []PendingQuery, outcomes []Outcome) ([]itinerary.RenderEvent, ApplyMetrics) {
	var metrics ApplyMetrics

	rendered := make([]itinerary.RenderEvent, len(events))
	for i, e := range events {
		rendered[i] = itinerary.Project(e)
	}

	for i, item := range items {
		if i >= len(outcomes) || item.Index < 0 || item.Index >= len(rendered) {
			metrics.Unresolved++

			continue
		}

		out := outcomes[i]

		switch {
		case out.Err != nil:
			log.Printf("Warning: event %d: could not resolve %s %q: %v", item.Index, item.Role, item.Query, out.Err)
			metrics.Unresolved++

			continue
		case !out.Found:
			metrics.Unresolved++

			continue
		case !out.Candidate.MatchesCountry(item.Bias):
			log.Printf("Discarding %s for %q: candidate in %v, expected %s",
				out.Candidate.Point, item.Query, out.Candidate.Countries, item.Bias)
			metrics.Rejected++

			continue
		}

		r := &rendered[item.Index]
		r.SetPoint(item.Role, out.Candidate.Point)
		r.SetAddress(item.Role, out.Candidate.Address)
		r.Enrich(out.Candidate.Name)
		metrics.Applied++
	}

	return rendered, metrics
}
