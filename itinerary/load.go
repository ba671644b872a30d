// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

package itinerary

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Load reads an itinerary file. Any invalid event fails the whole load.
func Load(path string) ([]Event, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("opening itinerary: %w", err)
	}
	defer f.Close()

	events, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	return events, nil
}

// Parse decodes a JSON array of events.
func Parse(r io.Reader) ([]Event, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading itinerary: %w", err)
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("itinerary must be a JSON array of events: %w", err)
	}

	events := make([]Event, len(raws))
	for i, raw := range raws {
		if err := json.Unmarshal(raw, &events[i]); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
	}

	return events, nil
}
