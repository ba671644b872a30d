// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

package itinerary

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tourvisual/timedgeo/spatial"
)

const nabana = `[{"type":"stay","start_time":"2026-01-01T00:00:00+00:00","end_time":"2026-01-01T01:00:00+00:00","start_location":"Nabana no Sato","end_location":"Nabana no Sato","details":""}]`

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		input string
		want  string
		naive bool
	}{
		{"2026-01-01T00:00:00+00:00", "2026-01-01T00:00:00+00:00", false},
		{"2026-01-01T09:30:00Z", "2026-01-01T09:30:00+00:00", false},
		{"2026-01-01T09:30:00.5+09:00", "2026-01-01T09:30:00.5+09:00", false},
		{"2026-01-01 09:30:00+09:00", "2026-01-01T09:30:00+09:00", false},
		{"2026-01-01T09:30:00", "2026-01-01T09:30:00", true},
		{"2026-01-01T09:30", "2026-01-01T09:30:00", true},
		{"2026-01-01", "2026-01-01T00:00:00", true},
		{"2026-01-01T00:00:00+0900", "2026-01-01T00:00:00+09:00", false},
		{"2026-01-01T00:00:00+09", "2026-01-01T00:00:00+09:00", false},
		{"2026-01-01 00:00:00-0330", "2026-01-01T00:00:00-03:30", false},
		{"2026-01-01T09:30+0900", "2026-01-01T09:30:00+09:00", false},
		{"20260101T000000", "2026-01-01T00:00:00", true},
		{"20260101T093000.25", "2026-01-01T09:30:00.25", true},
		{"20260101T093000+0900", "2026-01-01T09:30:00+09:00", false},
		{"20260101T093000Z", "2026-01-01T09:30:00+00:00", false},
		{"20260101 0930", "2026-01-01T09:30:00", true},
		{"20260101", "2026-01-01T00:00:00", true},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			ts, err := ParseTimestamp(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ts.String())
			assert.Equal(t, tc.naive, ts.Naive)
		})
	}
}

func TestParseTimestampInvalid(t *testing.T) {
	for _, input := range []string{"", "tomorrow", "2026-13-01T00:00:00", "01/02/2026"} {
		_, err := ParseTimestamp(input)
		assert.Error(t, err, input)
	}
}

func TestTimestampUnixSeconds(t *testing.T) {
	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`1767225600`), &ts))
	assert.True(t, ts.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Error(t, json.Unmarshal([]byte(`null`), &ts))
	assert.Error(t, json.Unmarshal([]byte(`true`), &ts))
}

func TestParse(t *testing.T) {
	events, err := Parse(strings.NewReader(nabana))
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, "stay", e.Type)
	assert.Equal(t, "Nabana no Sato", e.StartLocation)
	assert.Equal(t, "", e.Details)
	assert.Equal(t, "", e.Location)
	assert.Nil(t, e.Extra)

	_, ok := e.Point(RoleStart)
	assert.False(t, ok)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		message string
	}{
		{"malformed", `[{"type":`, "JSON array"},
		{"not an array", `{"type":"stay"}`, "JSON array"},
		{"missing field", `[{"type":"stay","start_time":"2026-01-01","end_time":"2026-01-01","start_location":"A"}]`, `event 0: missing required field "end_location"`},
		{"null field", `[{"type":null,"start_time":"2026-01-01","end_time":"2026-01-01","start_location":"A","end_location":"B"}]`, `missing required field "type"`},
		{"bad timestamp", `[{"type":"stay","start_time":"soon","end_time":"2026-01-01","start_location":"A","end_location":"B"}]`, `field "start_time"`},
		{"wrong type", `[{"type":3,"start_time":"2026-01-01","end_time":"2026-01-01","start_location":"A","end_location":"B"}]`, `field "type"`},
		{"bad coordinate", `[{"type":"stay","start_time":"2026-01-01","end_time":"2026-01-01","start_location":"A","end_location":"B","start_lat":"north"}]`, `field "start_lat"`},
		{"second event", `[{"type":"stay","start_time":"2026-01-01","end_time":"2026-01-01","start_location":"A","end_location":"B"},{"type":"stay"}]`, "event 1:"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			events, err := Parse(strings.NewReader(tc.input))
			require.Error(t, err)
			assert.Nil(t, events)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestEventExtraRoundTrip(t *testing.T) {
	input := `{"type":"transportation","start_time":"2026-01-01T08:00:00+09:00","end_time":"2026-01-01T09:00:00+09:00",` +
		`"start_location":"Nagoya Station","end_location":"Nagashima","start_lat":35.17,"start_lon":136.88,` +
		`"country":"Japan","booking":{"ref":"ABC123","seats":[1,2]},"price":1200}`

	var e Event
	require.NoError(t, json.Unmarshal([]byte(input), &e))

	assert.Equal(t, map[string]json.RawMessage{
		"country": json.RawMessage(`"Japan"`),
		"booking": json.RawMessage(`{"ref":"ABC123","seats":[1,2]}`),
		"price":   json.RawMessage(`1200`),
	}, e.Extra)

	p, ok := e.Point(RoleStart)
	require.True(t, ok)
	assert.Equal(t, spatial.Point{Lat: 35.17, Lon: 136.88}, p)

	out, err := json.Marshal(e)
	require.NoError(t, err)

	var got, want map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	require.NoError(t, json.Unmarshal([]byte(input), &want))
	want["details"] = ""

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestBackfill(t *testing.T) {
	tests := []struct {
		name     string
		event    Event
		expected string
	}{
		{"start and end", Event{StartLocation: "A", EndLocation: "B"}, "A → B"},
		{"same place", Event{StartLocation: "A", EndLocation: "A"}, "A"},
		{"start only", Event{StartLocation: "A"}, "A"},
		{"end only", Event{EndLocation: "B"}, "B"},
		{"explicit location", Event{Location: "C", StartLocation: "A", EndLocation: "B"}, "C"},
		{"explicit empty location", Event{HasLocation: true, StartLocation: "A", EndLocation: "B"}, ""},
		{"nothing", Event{}, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			original := tc.event
			got := tc.event.Backfill()
			assert.Equal(t, tc.expected, got.Location)
			assert.Equal(t, original, tc.event)
		})
	}
}

func TestBackfillKeepsExplicitEmptyLocation(t *testing.T) {
	events, err := Parse(strings.NewReader(`[
		{"type":"ride","start_time":"2026-01-01","end_time":"2026-01-01","start_location":"A","end_location":"B","location":""},
		{"type":"ride","start_time":"2026-01-01","end_time":"2026-01-01","start_location":"A","end_location":"B","location":null},
		{"type":"ride","start_time":"2026-01-01","end_time":"2026-01-01","start_location":"A","end_location":"B"}
	]`))
	require.NoError(t, err)

	assert.True(t, events[0].HasLocation)
	assert.False(t, events[1].HasLocation)
	assert.False(t, events[2].HasLocation)

	assert.Equal(t, "", events[0].Backfill().Location)
	assert.Equal(t, "A → B", events[1].Backfill().Location)
	assert.Equal(t, "A → B", events[2].Backfill().Location)

	out, err := json.Marshal(events[0])
	require.NoError(t, err)
	assert.Contains(t, string(out), `"location":""`)
}

func TestCountryBias(t *testing.T) {
	tests := []struct {
		name  string
		extra string
		want  string
	}{
		{"country wins", `{"country":"Taiwan","country_code":"TW"}`, "Taiwan"},
		{"country code", `{"country_code":"JP"}`, "JP"},
		{"invalid country code", `{"country_code":"JPN"}`, ""},
		{"non string country code", `{"country_code":81}`, ""},
		{"empty country falls back", `{"country":"","country_code":"TW"}`, "TW"},
		{"none", `{}`, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var extra map[string]json.RawMessage
			require.NoError(t, json.Unmarshal([]byte(tc.extra), &extra))
			assert.Equal(t, tc.want, Event{Extra: extra}.CountryBias())
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trip.json")
	require.NoError(t, os.WriteFile(path, []byte(nabana), 0o600))

	events, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	_, err = Load(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
