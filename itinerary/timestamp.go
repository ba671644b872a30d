// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

package itinerary

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	layoutAware = "2006-01-02T15:04:05.999999999-07:00"
	layoutNaive = "2006-01-02T15:04:05.999999999"
)

// ISO-8601 shapes accepted on input, most specific first. Offsets may be
// written +hh:mm, +hhmm or +hh, and dates and times in basic format.
var (
	awareLayouts = expandSeparators(
		"2006-01-02T15:04:05.999999999Z07:00",
		"2006-01-02T15:04:05.999999999Z0700",
		"2006-01-02T15:04:05.999999999Z07",
		"2006-01-02T15:04Z07:00",
		"2006-01-02T15:04Z0700",
		"2006-01-02T15:04Z07",
		"20060102T150405.999999999Z07:00",
		"20060102T150405.999999999Z0700",
		"20060102T150405.999999999Z07",
		"20060102T1504Z07:00",
		"20060102T1504Z0700",
		"20060102T1504Z07",
	)
	naiveLayouts = append(expandSeparators(
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04",
		"20060102T150405.999999999",
		"20060102T1504",
	), "2006-01-02", "20060102")
)

// expandSeparators adds the space separated variant of every layout.
func expandSeparators(layouts ...string) []string {
	out := make([]string, 0, 2*len(layouts))
	for _, l := range layouts {
		out = append(out, l, strings.Replace(l, "T", " ", 1))
	}

	return out
}

// Timestamp is an ISO-8601 instant that remembers whether the input carried a
// UTC offset, so it is written back in the same flavor.
type Timestamp struct {
	time.Time
	Naive bool
}

// ParseTimestamp parses the ISO-8601 forms found in itineraries.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)

	for _, layout := range awareLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t}, nil
		}
	}

	for _, layout := range naiveLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t, Naive: true}, nil
		}
	}

	return Timestamp{}, fmt.Errorf("invalid ISO-8601 timestamp %q", s)
}

// String returns the normalized ISO-8601 representation.
func (t Timestamp) String() string {
	if t.Naive {
		return t.Format(layoutNaive)
	}

	return t.Format(layoutAware)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements json.Unmarshaler. Besides ISO-8601 strings it takes
// numbers as Unix seconds.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("timestamp is null")
	}

	if len(data) > 0 && data[0] != '"' {
		var secs float64
		if err := json.Unmarshal(data, &secs); err != nil {
			return fmt.Errorf("timestamp must be a string or a number: %w", err)
		}

		whole := int64(secs)
		*t = Timestamp{Time: time.Unix(whole, int64((secs-float64(whole))*1e9)).UTC()}

		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}

	*t = parsed

	return nil
}
