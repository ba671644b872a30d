// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

// Package geocode resolves free-text places into coordinates using external
// providers and normalizes their heterogeneous answers.
package geocode

import (
	"context"

	"github.com/tourvisual/timedgeo/spatial"
	"github.com/tourvisual/timedgeo/utils/textutils"
)

// Provider names.
const (
	ProviderGoogle = "google_maps"
	ProviderPhoton = "photon"
)

// Candidate is the canonical form of the best match of a provider answer.
type Candidate struct {
	Point      spatial.Point `json:"point"`
	Name       string        `json:"name,omitempty"`
	Countries  []string      `json:"countries,omitempty"`
	Provider   string        `json:"provider"`
	Confidence string        `json:"confidence,omitempty"` // high, medium, low

	// Address holds the postal properties of the match, keyed by AddressKeys
	Address map[string]string `json:"address,omitempty"`
}

// AddressKeys are the Photon property names kept in Candidate.Address. Other
// providers map their own components onto the same names.
var AddressKeys = []string{
	"housenumber", "street", "postcode", "district", "city", "county", "state", "osm_key", "osm_value",
}

// MatchesCountry is a best-effort check of the candidate against a country
// bias. Candidates without any country property are accepted.
func (c Candidate) MatchesCountry(bias string) bool {
	if bias == "" || len(c.Countries) == 0 {
		return true
	}

	for _, country := range c.Countries {
		if textutils.ContainsFold(country, bias) {
			return true
		}
	}

	return false
}

// Geocoder interface for different geocoding providers.
type Geocoder interface {
	// Name identifies the provider in logs and cache namespaces.
	Name() string

	// Geocode sends query upstream. A query without matches is not an error:
	// it yields an empty Response.
	Geocode(ctx context.Context, query string) (*Response, error)
}
