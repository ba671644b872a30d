// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

package spatial

import (
	"fmt"

	"github.com/uber/h3-go/v4"
)

// CacheResolution is the H3 resolution used to index geocoded points
// (cells of roughly 0.7 km²).
const CacheResolution = 8

// H3Cell returns the H3 index of the point at the given resolution.
func (p Point) H3Cell(res int) (int64, error) {
	cell, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lon), res)
	if err != nil {
		return 0, fmt.Errorf("error converting to h3 cell at res %d: %w", res, err)
	}

	return int64(cell), nil
}
