// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

// Package itinerary models the timed, located events of a trip: the validated
// input Event and the RenderEvent handed to the renderer.
package itinerary

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tourvisual/timedgeo/spatial"
)

// Role tells which part of an event a location or coordinate pair belongs to.
type Role int

const (
	// RolePrimary is the legacy single point, stored in lat/lon.
	RolePrimary Role = iota
	// RoleStart is the departure point, stored in start_lat/start_lon.
	RoleStart
	// RoleEnd is the arrival point, stored in end_lat/end_lon.
	RoleEnd
)

// Roles lists every role in resolution order.
var Roles = []Role{RolePrimary, RoleStart, RoleEnd}

var roleFields = [...]struct{ src, lat, lon, address string }{
	RolePrimary: {"location", "lat", "lon", "address"},
	RoleStart:   {"start_location", "start_lat", "start_lon", "start_address"},
	RoleEnd:     {"end_location", "end_lat", "end_lon", "end_address"},
}

// String returns the name of the source field of the role.
func (r Role) String() string { return roleFields[r].src }

// LatField returns the latitude attribute written for the role.
func (r Role) LatField() string { return roleFields[r].lat }

// LonField returns the longitude attribute written for the role.
func (r Role) LonField() string { return roleFields[r].lon }

// AddressField returns the render attribute holding the resolved address of
// the role.
func (r Role) AddressField() string { return roleFields[r].address }

// Coord is an optional coordinate pair. Each axis may be present on its own in
// the input, but only a complete pair counts as resolved.
type Coord struct {
	Lat *float64
	Lon *float64
}

// Point returns the pair when both axes are present.
func (c Coord) Point() (spatial.Point, bool) {
	if c.Lat == nil || c.Lon == nil {
		return spatial.Point{}, false
	}

	return spatial.Point{Lat: *c.Lat, Lon: *c.Lon}, true
}

func coordOf(p spatial.Point) Coord {
	lat, lon := p.Lat, p.Lon

	return Coord{Lat: &lat, Lon: &lon}
}

// Event is one entry of an itinerary. Attributes not modeled here are kept in
// Extra as raw JSON and written back untouched.
type Event struct {
	Type          string
	StartTime     Timestamp
	EndTime       Timestamp
	StartLocation string
	EndLocation   string
	Location      string
	Details       string
	DisplayName   string
	Coords        [3]Coord
	Extra         map[string]json.RawMessage

	// HasLocation is set when the input carries a location attribute, even
	// an empty one.
	HasLocation bool
}

var knownFields = map[string]bool{
	"type": true, "start_time": true, "end_time": true,
	"start_location": true, "end_location": true, "location": true,
	"details": true, "display_name": true,
	"lat": true, "lon": true, "start_lat": true, "start_lon": true, "end_lat": true, "end_lon": true,
}

// ErrMissingField is wrapped by validation errors on absent required fields.
var ErrMissingField = errors.New("missing required field")

// Point returns the coordinates already known for the role.
func (e Event) Point(role Role) (spatial.Point, bool) {
	return e.Coords[role].Point()
}

// Text returns the location text of the role.
func (e Event) Text(role Role) string {
	switch role {
	case RoleStart:
		return e.StartLocation
	case RoleEnd:
		return e.EndLocation
	default:
		return e.Location
	}
}

// Clone returns a copy the caller may modify without affecting e. Coordinate
// pointers and Extra are shared; neither is ever written through.
func (e Event) Clone() Event {
	return e
}

// Backfill returns a copy of e with the legacy location composed from the
// start and end locations when it is absent. An explicit location, empty
// included, is kept.
func (e Event) Backfill() Event {
	if e.HasLocation || e.Location != "" {
		return e
	}

	if e.StartLocation == "" && e.EndLocation == "" {
		return e
	}

	e.HasLocation = true

	switch start, end := e.StartLocation, e.EndLocation; {
	case start != "" && end != "" && start != end:
		e.Location = start + " → " + end
	case start != "":
		e.Location = start
	default:
		e.Location = end
	}

	return e
}

// StringAttr returns an extra attribute when it holds a JSON string.
func (e Event) StringAttr(name string) (string, bool) {
	raw, ok := e.Extra[name]
	if !ok {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}

	return s, true
}

// CountryBias returns the per event country hint: an explicit country wins
// over a two letter country code.
func (e Event) CountryBias() string {
	if c, ok := e.StringAttr("country"); ok && c != "" {
		return c
	}

	if cc, ok := e.StringAttr("country_code"); ok && len(cc) == 2 {
		return cc
	}

	return ""
}

// UnmarshalJSON implements json.Unmarshaler validating required fields and
// timestamps.
func (e *Event) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("event must be a JSON object: %w", err)
	}

	if fields == nil {
		return errors.New("event must be a JSON object, got null")
	}

	var ev Event

	required := []struct {
		name string
		dst  any
	}{
		{"type", &ev.Type},
		{"start_time", &ev.StartTime},
		{"end_time", &ev.EndTime},
		{"start_location", &ev.StartLocation},
		{"end_location", &ev.EndLocation},
	}

	for _, f := range required {
		raw, ok := fields[f.name]
		if !ok || string(raw) == "null" {
			return fmt.Errorf("%w %q", ErrMissingField, f.name)
		}

		if err := json.Unmarshal(raw, f.dst); err != nil {
			return fmt.Errorf("field %q: %w", f.name, err)
		}
	}

	optional := []struct {
		name string
		dst  *string
	}{
		{"location", &ev.Location},
		{"details", &ev.Details},
		{"display_name", &ev.DisplayName},
	}

	for _, f := range optional {
		if err := decodeOptional(fields, f.name, f.dst); err != nil {
			return err
		}
	}

	if raw, ok := fields["location"]; ok && string(raw) != "null" {
		ev.HasLocation = true
	}

	for _, role := range Roles {
		c := &ev.Coords[role]
		if err := decodeOptional(fields, role.LatField(), &c.Lat); err != nil {
			return err
		}

		if err := decodeOptional(fields, role.LonField(), &c.Lon); err != nil {
			return err
		}
	}

	for name, raw := range fields {
		if knownFields[name] {
			continue
		}

		if ev.Extra == nil {
			ev.Extra = make(map[string]json.RawMessage)
		}

		ev.Extra[name] = raw
	}

	*e = ev

	return nil
}

func decodeOptional[T any](fields map[string]json.RawMessage, name string, dst *T) error {
	raw, ok := fields[name]
	if !ok || string(raw) == "null" {
		return nil
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("field %q: %w", name, err)
	}

	return nil
}

// MarshalJSON implements json.Marshaler. Keys come out sorted.
func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(knownFields)+len(e.Extra))
	for k, v := range e.Extra {
		out[k] = v
	}

	out["type"] = e.Type
	out["start_time"] = e.StartTime
	out["end_time"] = e.EndTime
	out["start_location"] = e.StartLocation
	out["end_location"] = e.EndLocation
	out["details"] = e.Details

	if e.HasLocation || e.Location != "" {
		out["location"] = e.Location
	}

	if e.DisplayName != "" {
		out["display_name"] = e.DisplayName
	}

	putCoords(out, e.Coords)

	return json.Marshal(out)
}

func putCoords(out map[string]any, coords [3]Coord) {
	for _, role := range Roles {
		if c := coords[role]; c.Lat != nil {
			out[role.LatField()] = *c.Lat
		}

		if c := coords[role]; c.Lon != nil {
			out[role.LonField()] = *c.Lon
		}
	}
}
