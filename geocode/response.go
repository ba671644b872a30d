// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tourvisual/timedgeo/spatial"
)

// Kind tags the shape of a provider answer.
type Kind int

const (
	// KindEmpty is an answer without matches.
	KindEmpty Kind = iota
	// KindLocation is a single object with latitude/longitude attributes.
	KindLocation
	// KindLocationList is a list of location objects; the first one wins.
	KindLocationList
	// KindFeature is a single GeoJSON feature.
	KindFeature
	// KindFeatureList is a bare list of GeoJSON features.
	KindFeatureList
	// KindFeatureCollection is {"features": [...]}.
	KindFeatureCollection
)

func (k Kind) String() string {
	switch k {
	case KindLocation:
		return "location"
	case KindLocationList:
		return "location list"
	case KindFeature:
		return "feature"
	case KindFeatureList:
		return "feature list"
	case KindFeatureCollection:
		return "feature collection"
	default:
		return "empty"
	}
}

// Location is an object carrying its coordinates as named attributes.
type Location struct {
	Latitude    float64
	Longitude   float64
	Name        string
	Country     string
	CountryCode string
	Confidence  string
	Address     map[string]string
}

// Feature is a GeoJSON feature. Coordinates are [lon, lat].
type Feature struct {
	Coordinates []float64
	Properties  map[string]any
}

// Response is the tagged union of every answer shape the providers produce.
// Only the slice matching Kind is populated.
type Response struct {
	Kind      Kind
	Provider  string
	Locations []Location
	Features  []Feature
}

// ErrInvalidResponse is wrapped by every normalization failure.
var ErrInvalidResponse = errors.New("invalid geocoder response")

// ParseResponse sniffs the shape of a JSON answer.
func ParseResponse(provider string, data []byte) (*Response, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	r := &Response{Provider: provider}

	switch t := v.(type) {
	case nil:
		r.Kind = KindEmpty
	case map[string]any:
		switch {
		case t["features"] != nil:
			items, ok := t["features"].([]any)
			if !ok {
				return nil, fmt.Errorf("%w: features is %T, not a list", ErrInvalidResponse, t["features"])
			}

			features, err := parseFeatures(items)
			if err != nil {
				return nil, err
			}

			r.Kind, r.Features = KindFeatureCollection, features
		case t["geometry"] != nil:
			f, err := parseFeature(t)
			if err != nil {
				return nil, err
			}

			r.Kind, r.Features = KindFeature, []Feature{f}
		default:
			loc, err := parseLocation(t)
			if err != nil {
				return nil, err
			}

			r.Kind, r.Locations = KindLocation, []Location{loc}
		}
	case []any:
		if len(t) == 0 {
			r.Kind = KindEmpty

			break
		}

		if first, ok := t[0].(map[string]any); ok && first["geometry"] != nil {
			features, err := parseFeatures(t)
			if err != nil {
				return nil, err
			}

			r.Kind, r.Features = KindFeatureList, features

			break
		}

		locations := make([]Location, 0, len(t))

		for i, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: item %d is %T", ErrInvalidResponse, i, item)
			}

			loc, err := parseLocation(m)
			if err != nil {
				return nil, err
			}

			locations = append(locations, loc)
		}

		r.Kind, r.Locations = KindLocationList, locations
	default:
		return nil, fmt.Errorf("%w: unexpected %T", ErrInvalidResponse, v)
	}

	return r, nil
}

// Candidate normalizes the response into its best match. It returns false
// when the response holds no match at all.
func (r *Response) Candidate() (Candidate, bool, error) {
	if r == nil {
		return Candidate{}, false, nil
	}

	var c Candidate

	switch r.Kind {
	case KindEmpty:
		return Candidate{}, false, nil
	case KindLocation, KindLocationList:
		if len(r.Locations) == 0 {
			return Candidate{}, false, nil
		}

		c = r.Locations[0].candidate()
	case KindFeature, KindFeatureList, KindFeatureCollection:
		if len(r.Features) == 0 {
			return Candidate{}, false, nil
		}

		var err error
		if c, err = r.Features[0].candidate(); err != nil {
			return Candidate{}, false, err
		}
	default:
		return Candidate{}, false, fmt.Errorf("%w: unknown kind %d", ErrInvalidResponse, r.Kind)
	}

	if !c.Point.Valid() {
		return Candidate{}, false, fmt.Errorf("%w: coordinates out of range %v", ErrInvalidResponse, c.Point)
	}

	c.Provider = r.Provider

	return c, true, nil
}

func (l Location) candidate() Candidate {
	return Candidate{
		Point:      spatial.Point{Lat: l.Latitude, Lon: l.Longitude},
		Name:       l.Name,
		Countries:  nonEmpty(l.Country, l.CountryCode),
		Confidence: l.Confidence,
		Address:    l.Address,
	}
}

func (f Feature) candidate() (Candidate, error) {
	if len(f.Coordinates) < 2 {
		return Candidate{}, fmt.Errorf("%w: feature has %d coordinates", ErrInvalidResponse, len(f.Coordinates))
	}

	name := stringProp(f.Properties, "name")
	if name == "" {
		name = stringProp(f.Properties, "osm_value")
	}

	return Candidate{
		// GeoJSON order is [lon, lat].
		Point: spatial.Point{Lat: f.Coordinates[1], Lon: f.Coordinates[0]},
		Name:  name,
		Countries: nonEmpty(
			stringProp(f.Properties, "country"),
			stringProp(f.Properties, "countrycode"),
			stringProp(f.Properties, "country_code"),
		),
		Address: addressProps(f.Properties),
	}, nil
}

// addressProps keeps the non-empty string values of AddressKeys.
func addressProps(m map[string]any) map[string]string {
	var out map[string]string

	for _, key := range AddressKeys {
		v := stringProp(m, key)
		if v == "" {
			continue
		}

		if out == nil {
			out = make(map[string]string)
		}

		out[key] = v
	}

	return out
}

func parseFeatures(items []any) ([]Feature, error) {
	features := make([]Feature, 0, len(items))

	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: feature %d is %T", ErrInvalidResponse, i, item)
		}

		f, err := parseFeature(m)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}

		features = append(features, f)
	}

	return features, nil
}

func parseFeature(m map[string]any) (Feature, error) {
	geometry, ok := m["geometry"].(map[string]any)
	if !ok {
		return Feature{}, fmt.Errorf("%w: geometry is %T", ErrInvalidResponse, m["geometry"])
	}

	raw, ok := geometry["coordinates"].([]any)
	if !ok {
		return Feature{}, fmt.Errorf("%w: coordinates are %T", ErrInvalidResponse, geometry["coordinates"])
	}

	coords := make([]float64, 0, len(raw))

	for _, c := range raw {
		n, err := toFloat(c)
		if err != nil {
			return Feature{}, err
		}

		coords = append(coords, n)
	}

	props, _ := m["properties"].(map[string]any)

	return Feature{Coordinates: coords, Properties: props}, nil
}

func parseLocation(m map[string]any) (Location, error) {
	lat, err := numberProp(m, "latitude", "lat")
	if err != nil {
		return Location{}, err
	}

	lon, err := numberProp(m, "longitude", "lon", "lng")
	if err != nil {
		return Location{}, err
	}

	loc := Location{
		Latitude:  lat,
		Longitude: lon,
		Country:   stringProp(m, "country"),
		Address:   addressProps(m),
	}

	for _, key := range []string{"name", "display_name", "formatted_address", "address"} {
		if loc.Name = stringProp(m, key); loc.Name != "" {
			break
		}
	}

	if loc.CountryCode = stringProp(m, "country_code"); loc.CountryCode == "" {
		loc.CountryCode = stringProp(m, "countrycode")
	}

	return loc, nil
}

func numberProp(m map[string]any, keys ...string) (float64, error) {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			n, err := toFloat(v)
			if err != nil {
				return 0, fmt.Errorf("%s: %w", key, err)
			}

			return n, nil
		}
	}

	return 0, fmt.Errorf("%w: missing %s", ErrInvalidResponse, strings.Join(keys, "/"))
}

// toFloat accepts JSON numbers and numeric strings (Nominatim sends the latter).
func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
		}

		return f, nil
	default:
		return 0, fmt.Errorf("%w: expected a number, got %T", ErrInvalidResponse, v)
	}
}

func stringProp(m map[string]any, key string) string {
	s, _ := m[key].(string)

	return strings.TrimSpace(s)
}

func nonEmpty(values ...string) []string {
	var out []string

	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}

	return out
}
