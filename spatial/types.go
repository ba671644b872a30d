// Copyright 2026 The TimedGeo Authors
//
// SPDX-License-Identifier: Apache-2.0
package spatial

import (
	"database/sql/driver"
	"fmt"
	"math"
)

const earthRadius = 6371e3 // meters

// Point represents a geographical point with latitude and longitude.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// String returns the WKT representation of the Point. Note the axis order: WKT
// (and GeoJSON) put the longitude first.
func (p Point) String() string {
	return fmt.Sprintf("POINT (%v %v)", p.Lon, p.Lat)
}

// Valid reports whether the point lies within the WGS84 ranges.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180 &&
		!math.IsNaN(p.Lat) && !math.IsNaN(p.Lon)
}

// Value implements the driver.Valuer interface for database serialization.
func (p Point) Value() (driver.Value, error) {
	return p.String(), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (p *Point) Scan(value interface{}) error {
	if value == nil {
		p.Lat, p.Lon = 0, 0

		return nil
	}

	switch v := value.(type) {
	case []byte:
		return p.scanWKT(string(v))
	case string:
		return p.scanWKT(v)
	default:
		return fmt.Errorf("spatial: unsupported type for Point scan: %T", value)
	}
}

func (p *Point) scanWKT(s string) error {
	if _, err := fmt.Sscanf(s, "POINT (%g %g)", &p.Lon, &p.Lat); err != nil {
		return fmt.Errorf("spatial: parsing %q: %w", s, err)
	}

	return nil
}

// HaversineDistance calculates the distance between two points on Earth in meters.
func (p *Point) HaversineDistance(other *Point) float64 {
	lat1 := p.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	dLat := (other.Lat - p.Lat) * math.Pi / 180
	dLon := (other.Lon - p.Lon) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}
