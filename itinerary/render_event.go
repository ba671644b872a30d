// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

package itinerary

import (
	"encoding/json"
	"maps"
	"strings"

	"github.com/tourvisual/timedgeo/spatial"
)

// RenderEvent is the shape consumed by the renderer. Coordinates that were
// never resolved stay nil and are omitted from the JSON, which the page reads
// as "no marker for this point".
type RenderEvent struct {
	Type           string
	StartTime      Timestamp
	EndTime        Timestamp
	StartLocation  string
	EndLocation    string
	Location       string
	Details        string
	DisplayName    string
	Coords         [3]Coord
	Addresses      [3]map[string]string
	DistanceMeters *float64
	Extra          map[string]json.RawMessage
}

// Project builds the render shape of an event. It never fails.
func Project(e Event) RenderEvent {
	r := RenderEvent{
		Type:          e.Type,
		StartTime:     e.StartTime,
		EndTime:       e.EndTime,
		StartLocation: e.StartLocation,
		EndLocation:   e.EndLocation,
		Location:      e.Location,
		Details:       e.Details,
		DisplayName:   e.DisplayName,
		Coords:        e.Coords,
		Extra:         e.Extra,
	}
	r.updateDistance()

	return r
}

// Point returns the coordinates of the role, if any.
func (r RenderEvent) Point(role Role) (spatial.Point, bool) {
	return r.Coords[role].Point()
}

// HasMarker reports whether at least one role has coordinates.
func (r RenderEvent) HasMarker() bool {
	for _, role := range Roles {
		if _, ok := r.Point(role); ok {
			return true
		}
	}

	return false
}

// SetPoint stores the coordinates of the role.
func (r *RenderEvent) SetPoint(role Role, p spatial.Point) {
	r.Coords[role] = coordOf(p)
	r.updateDistance()
}

// SetAddress stores the postal properties resolved for the role. An empty
// address clears it.
func (r *RenderEvent) SetAddress(role Role, address map[string]string) {
	if len(address) == 0 {
		r.Addresses[role] = nil

		return
	}

	r.Addresses[role] = maps.Clone(address)
}

// Enrich records a resolved place name: it becomes the display name when none
// is set and is appended to the details unless already mentioned there.
func (r *RenderEvent) Enrich(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}

	if r.DisplayName == "" {
		r.DisplayName = name
	}

	r.Details = EnrichDetails(r.Details, name)
}

// EnrichDetails appends name to details as "details (name)". It returns details
// unchanged when name is already a substring, and name when details is empty.
// Applying it twice with the same name is a no-op.
func EnrichDetails(details, name string) string {
	switch {
	case name == "":
		return details
	case details == "":
		return name
	case strings.Contains(details, name):
		return details
	default:
		return details + " (" + name + ")"
	}
}

func (r *RenderEvent) updateDistance() {
	start, okStart := r.Point(RoleStart)
	end, okEnd := r.Point(RoleEnd)

	if !okStart || !okEnd {
		r.DistanceMeters = nil

		return
	}

	d := start.HaversineDistance(&end)
	r.DistanceMeters = &d
}

// MarshalJSON implements json.Marshaler. Keys come out sorted so the rendered
// page is a deterministic function of the events.
func (r RenderEvent) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(knownFields)+len(r.Extra)+1)
	for k, v := range r.Extra {
		out[k] = v
	}

	out["type"] = r.Type
	out["start_time"] = r.StartTime
	out["end_time"] = r.EndTime
	out["start_location"] = r.StartLocation
	out["end_location"] = r.EndLocation
	out["location"] = r.Location
	out["details"] = r.Details

	if r.DisplayName != "" {
		out["display_name"] = r.DisplayName
	}

	if r.DistanceMeters != nil {
		out["distance_m"] = *r.DistanceMeters
	}

	putCoords(out, r.Coords)

	for _, role := range Roles {
		if a := r.Addresses[role]; len(a) > 0 {
			out[role.AddressField()] = a
		}
	}

	return json.Marshal(out)
}
