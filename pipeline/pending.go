// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline resolves the places of an itinerary into coordinates and
// produces the events consumed by the renderer.
package pipeline

import (
	"strings"

	"github.com/tourvisual/timedgeo/itinerary"
)

// PendingQuery is a (event, role) pair whose coordinates must be resolved.
type PendingQuery struct {
	Index int            // position of the event in the batch
	Role  itinerary.Role // which coordinate pair receives the result
	Query string         // text sent upstream, bias included
	Bias  string         // country bias, empty when none
}

// BuildPending lists the queries needed by events, in event order and then
// role order. Roles whose coordinates are already known, or without any text
// to search for, are skipped.
func BuildPending(events []itinerary.Event, defaultCountry string) []PendingQuery {
	defaultCountry = strings.TrimSpace(defaultCountry)

	var items []PendingQuery

	for i, e := range events {
		bias := e.CountryBias()
		if bias == "" {
			bias = defaultCountry
		}

		for _, role := range itinerary.Roles {
			if _, ok := e.Point(role); ok {
				continue
			}

			text := strings.TrimSpace(e.Text(role))
			if text == "" {
				text = strings.TrimSpace(e.Details)
			}

			if text == "" {
				continue
			}

			items = append(items, PendingQuery{
				Index: i,
				Role:  role,
				Query: withBias(text, bias),
				Bias:  bias,
			})
		}
	}

	return items
}

func withBias(text, bias string) string {
	if bias == "" {
		return text
	}

	return text + ", " + bias
}
