// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tourvisual/timedgeo/geocache"
	"github.com/tourvisual/timedgeo/geocode"
	"github.com/tourvisual/timedgeo/itinerary"
	"github.com/tourvisual/timedgeo/spatial"
)

// fakeGeocoder answers from a table of raw provider payloads keyed by query.
type fakeGeocoder struct {
	answers map[string]string
	errs    map[string]error
	panics  map[string]bool
	delay   time.Duration

	mu    sync.Mutex
	calls map[string]int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFake(answers map[string]string) *fakeGeocoder {
	return &fakeGeocoder{
		answers: answers,
		errs:    map[string]error{},
		panics:  map[string]bool{},
		calls:   map[string]int{},
	}
}

func (f *fakeGeocoder) Name() string { return "fake" }

func (f *fakeGeocoder) Geocode(ctx context.Context, query string) (*geocode.Response, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)

	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls[query]++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if f.panics[query] {
		panic("provider blew up")
	}

	if err := f.errs[query]; err != nil {
		return nil, err
	}

	payload, ok := f.answers[query]
	if !ok {
		payload = `{"type":"FeatureCollection","features":[]}`
	}

	return geocode.ParseResponse("fake", []byte(payload))
}

func (f *fakeGeocoder) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.calls {
		n += c
	}

	return n
}

func feature(lon, lat float64, name, country string) string {
	return fmt.Sprintf(`{"type":"FeatureCollection","features":[{"type":"Feature",`+
		`"geometry":{"type":"Point","coordinates":[%v,%v]},"properties":{"name":%q,"country":%q}}]}`,
		lon, lat, name, country)
}

func parseEvents(t *testing.T, input string) []itinerary.Event {
	t.Helper()

	events, err := itinerary.Parse(strings.NewReader(input))
	require.NoError(t, err)

	return events
}

func event(start, end, extra string) string {
	if extra != "" {
		extra = "," + extra
	}

	return fmt.Sprintf(`{"type":"stay","start_time":"2026-01-01T00:00:00+09:00","end_time":"2026-01-01T01:00:00+09:00",`+
		`"start_location":%q,"end_location":%q%s}`, start, end, extra)
}

func osmResolver(t *testing.T, g geocode.Geocoder, cache geocache.Cache) *Resolver {
	t.Helper()

	r, err := NewResolver(g, ResolverOptions{Mode: ModeOSM, Concurrency: 4, Cache: cache})
	require.NoError(t, err)

	return r
}

func TestBuildPending(t *testing.T) {
	events := parseEvents(t, "["+strings.Join([]string{
		event("Nagoya Station", "Kuwana", `"location":"Nagoya Station → Kuwana"`),
		event("Taipei 101", "Taipei 101", `"country":"Taiwan","start_lat":25.03,"start_lon":121.56,"lat":25.03,"lon":121.56`),
		event("", "", `"details":"Lunch somewhere nice","country_code":"JP"`),
		event("Cafe", "", `"country_code":"JPN"`),
	}, ",")+"]")

	got := BuildPending(events, " Japan ")

	want := []PendingQuery{
		{Index: 0, Role: itinerary.RolePrimary, Query: "Nagoya Station → Kuwana, Japan", Bias: "Japan"},
		{Index: 0, Role: itinerary.RoleStart, Query: "Nagoya Station, Japan", Bias: "Japan"},
		{Index: 0, Role: itinerary.RoleEnd, Query: "Kuwana, Japan", Bias: "Japan"},
		{Index: 1, Role: itinerary.RoleEnd, Query: "Taipei 101, Taiwan", Bias: "Taiwan"},
		{Index: 2, Role: itinerary.RolePrimary, Query: "Lunch somewhere nice, JP", Bias: "JP"},
		{Index: 2, Role: itinerary.RoleStart, Query: "Lunch somewhere nice, JP", Bias: "JP"},
		{Index: 2, Role: itinerary.RoleEnd, Query: "Lunch somewhere nice, JP", Bias: "JP"},
		{Index: 3, Role: itinerary.RoleStart, Query: "Cafe, Japan", Bias: "Japan"},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BuildPending() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPendingWithoutBias(t *testing.T) {
	events := parseEvents(t, "["+event("A", "", "")+"]")

	got := BuildPending(events, "")
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Query)
	assert.Equal(t, "", got[0].Bias)
}

func TestNewResolver(t *testing.T) {
	_, err := NewResolver(nil, ResolverOptions{Mode: ModeOSM})
	require.ErrorIs(t, err, ErrNoGeocoder)

	_, err = NewResolver(nil, ResolverOptions{Mode: ModeGoogle})
	require.ErrorIs(t, err, ErrNoGeocoder)

	_, err = NewResolver(newFake(nil), ResolverOptions{Mode: "carrier-pigeon"})
	require.Error(t, err)

	r, err := NewResolver(nil, ResolverOptions{Mode: ModeNone})
	require.NoError(t, err)

	out, err := r.Resolve(context.Background(), []PendingQuery{{Query: "A"}, {Query: "B"}})
	require.NoError(t, err)
	assert.Equal(t, []Outcome{{}, {}}, out)
}

func TestResolveCacheIdempotence(t *testing.T) {
	g := newFake(map[string]string{"Kuwana": feature(136.6839, 35.0622, "Kuwana", "Japan")})
	r := osmResolver(t, g, nil)
	ctx := context.Background()

	first, err := r.Resolve(ctx, []PendingQuery{{Query: "Kuwana"}})
	require.NoError(t, err)
	require.True(t, first[0].Found)

	second, err := r.Resolve(ctx, []PendingQuery{{Query: "Kuwana"}})
	require.NoError(t, err)
	require.True(t, second[0].Found)

	assert.Equal(t, 1, g.total())
	assert.True(t, second[0].Cached)
	assert.Equal(t, first[0].Candidate.Point, second[0].Candidate.Point)
	assert.Equal(t, Metrics{Queries: 2, CacheHits: 1, Upstream: 1, Found: 2}, r.Metrics)
}

func TestResolveSharesIdenticalQueries(t *testing.T) {
	g := newFake(map[string]string{"Nabana no Sato": feature(136.7, 35.1, "Nabana no Sato", "Japan")})
	g.delay = 20 * time.Millisecond
	r := osmResolver(t, g, nil)

	items := make([]PendingQuery, 6)
	for i := range items {
		items[i] = PendingQuery{Index: i, Query: "Nabana no Sato"}
	}

	out, err := r.Resolve(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 1, g.total())

	shared := 0

	for _, o := range out {
		assert.True(t, o.Found)
		assert.Equal(t, spatial.Point{Lat: 35.1, Lon: 136.7}, o.Candidate.Point)

		if o.Shared {
			shared++
		}
	}

	assert.Equal(t, 5, shared)
	assert.Equal(t, 5, r.Metrics.Shared)
}

func TestResolveSharesFailures(t *testing.T) {
	g := newFake(nil)
	g.errs["Flaky"] = geocode.ClassifyHTTPError(http.StatusServiceUnavailable, "fake")
	r := osmResolver(t, g, nil)

	out, err := r.Resolve(context.Background(), []PendingQuery{{Query: "Flaky"}, {Query: "Flaky"}, {Query: "Flaky"}})
	require.NoError(t, err)
	assert.Equal(t, 1, g.total())

	for _, o := range out {
		assert.Error(t, o.Err)
	}
}

func TestResolvePartialFailure(t *testing.T) {
	g := newFake(map[string]string{
		"A": feature(1, 2, "A", ""),
		"C": feature(5, 6, "C", ""),
		"D": feature(7, 8, "D", ""),
	})
	g.errs["B"] = errors.New("connection reset by peer")
	g.panics["D"] = true
	r := osmResolver(t, g, nil)

	out, err := r.Resolve(context.Background(), []PendingQuery{{Query: "A"}, {Query: "B"}, {Query: "C"}, {Query: "D"}})
	require.NoError(t, err)
	require.Len(t, out, 4)

	assert.True(t, out[0].Found)
	assert.Equal(t, spatial.Point{Lat: 2, Lon: 1}, out[0].Candidate.Point)
	assert.False(t, out[1].Found)
	assert.ErrorContains(t, out[1].Err, "connection reset")
	assert.True(t, out[2].Found)
	assert.Equal(t, spatial.Point{Lat: 6, Lon: 5}, out[2].Candidate.Point)
	assert.False(t, out[3].Found)
	assert.ErrorContains(t, out[3].Err, "panicked")

	assert.Equal(t, 2, r.Metrics.Failed)
	assert.Equal(t, 2, r.Metrics.Found)
}

func TestResolveNegativeCaching(t *testing.T) {
	g := newFake(nil)
	g.errs["Down"] = geocode.ClassifyTransportError(errors.New("dial tcp: connection refused"), "fake")
	g.errs["Gone"] = geocode.ClassifyHTTPError(http.StatusNotFound, "fake")
	cache := geocache.NewMemory(time.Hour)
	r := osmResolver(t, g, cache)
	ctx := context.Background()
	items := []PendingQuery{{Query: "Atlantis"}, {Query: "Down"}, {Query: "Gone"}}

	_, err := r.Resolve(ctx, items)
	require.NoError(t, err)

	out, err := r.Resolve(ctx, items)
	require.NoError(t, err)

	g.mu.Lock()
	defer g.mu.Unlock()

	assert.Equal(t, 1, g.calls["Atlantis"], "not found is cached")
	assert.Equal(t, 1, g.calls["Gone"], "permanent failures are cached")
	assert.Equal(t, 2, g.calls["Down"], "transient failures are retried")

	assert.True(t, out[0].Cached)
	assert.False(t, out[0].Found)
	assert.NoError(t, out[0].Err)
	assert.True(t, out[2].Cached)
	assert.Error(t, out[1].Err)
}

func TestResolveRespectsConcurrency(t *testing.T) {
	answers := map[string]string{}
	items := make([]PendingQuery, 20)

	for i := range items {
		q := fmt.Sprintf("place %d", i)
		answers[q] = feature(float64(i), 1, q, "")
		items[i] = PendingQuery{Index: i, Query: q}
	}

	g := newFake(answers)
	g.delay = 10 * time.Millisecond

	r, err := NewResolver(g, ResolverOptions{Mode: ModeOSM, Concurrency: 3})
	require.NoError(t, err)

	out, err := r.Resolve(context.Background(), items)
	require.NoError(t, err)

	assert.LessOrEqual(t, g.maxInFlight.Load(), int32(3))
	assert.Equal(t, 20, g.total())

	for i, o := range out {
		assert.Equal(t, float64(i), o.Candidate.Point.Lon, "outcomes are aligned with items")
	}
}

func TestResolveGoogleIsSerial(t *testing.T) {
	answers := map[string]string{}
	items := make([]PendingQuery, 5)

	for i := range items {
		q := fmt.Sprintf("stop %d", i)
		answers[q] = fmt.Sprintf(`[{"lat":%d,"lng":%d,"formatted_address":%q}]`, i, i, q)
		items[i] = PendingQuery{Index: i, Query: q}
	}

	g := newFake(answers)
	g.delay = 2 * time.Millisecond

	r, err := NewResolver(g, ResolverOptions{Mode: ModeGoogle, Concurrency: 8, Interval: 5 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	out, err := r.Resolve(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, int32(1), g.maxInFlight.Load())
	assert.GreaterOrEqual(t, time.Since(start), 4*5*time.Millisecond)

	for i, o := range out {
		require.True(t, o.Found)
		assert.Equal(t, fmt.Sprintf("stop %d", i), o.Candidate.Name)
	}
}

func TestResolveCanceled(t *testing.T) {
	g := newFake(map[string]string{"A": feature(1, 2, "A", "")})
	g.delay = time.Second
	r := osmResolver(t, g, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	out, err := r.Resolve(ctx, []PendingQuery{{Query: "A"}})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, out[0].Found)
}

func TestApplyAxisOrder(t *testing.T) {
	events := parseEvents(t, "["+event("Nagoya Station", "Kuwana", "")+"]")
	items := []PendingQuery{
		{Index: 0, Role: itinerary.RoleStart, Query: "Nagoya Station"},
		{Index: 0, Role: itinerary.RoleEnd, Query: "Kuwana"},
	}

	start, err := geocode.ParseResponse("fake", []byte(feature(136.8815, 35.1709, "Nagoya Station", "Japan")))
	require.NoError(t, err)

	end, err := geocode.ParseResponse("fake", []byte(`[{"lat":35.0622,"lon":136.6839,"name":"Kuwana"}]`))
	require.NoError(t, err)

	var outcomes []Outcome

	for _, resp := range []*geocode.Response{start, end} {
		c, ok, err := resp.Candidate()
		require.NoError(t, err)
		outcomes = append(outcomes, Outcome{Candidate: c, Found: ok})
	}

	rendered, metrics := Apply(events, items, outcomes)
	require.Len(t, rendered, 1)
	assert.Equal(t, 2, metrics.Applied)

	data, err := json.Marshal(rendered[0])
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, 35.1709, got["start_lat"])
	assert.Equal(t, 136.8815, got["start_lon"])
	assert.Equal(t, 35.0622, got["end_lat"])
	assert.Equal(t, 136.6839, got["end_lon"])
	assert.Equal(t, "Nagoya Station (Kuwana)", got["details"])
	assert.Equal(t, "Nagoya Station", got["display_name"])
	assert.Contains(t, got, "distance_m")
}

func TestApplyCountryRejection(t *testing.T) {
	events := parseEvents(t, "["+event("Shilin Night Market", "", `"country_code":"TW"`)+"]")
	items := BuildPending(events, "")
	require.Len(t, items, 1)
	assert.Equal(t, "TW", items[0].Bias)

	c, ok, err := mustParse(t, feature(139.7, 35.7, "Shilin", "Japan")).Candidate()
	require.NoError(t, err)
	require.True(t, ok)

	rendered, metrics := Apply(events, items, []Outcome{{Candidate: c, Found: true}})
	assert.Equal(t, 1, metrics.Rejected)
	assert.False(t, rendered[0].HasMarker())
	assert.Equal(t, "", rendered[0].Details)
}

func TestApplyNameEnrichmentIdempotence(t *testing.T) {
	events := parseEvents(t, "["+event("X", "", "")+"]")
	items := []PendingQuery{{Index: 0, Role: itinerary.RoleStart, Query: "X"}}
	outcomes := []Outcome{{Candidate: geocode.Candidate{Point: spatial.Point{Lat: 1, Lon: 1}, Name: "X"}, Found: true}}

	rendered, _ := Apply(events, items, outcomes)
	assert.Equal(t, "X", rendered[0].Details)

	// A second run over an already enriched itinerary.
	events[0].Details = rendered[0].Details
	rendered, _ = Apply(events, items, outcomes)
	assert.Equal(t, "X", rendered[0].Details)
}

func TestApplySkipsFailures(t *testing.T) {
	events := parseEvents(t, "["+event("A", "B", "")+"]")
	items := []PendingQuery{
		{Index: 0, Role: itinerary.RoleStart, Query: "A"},
		{Index: 0, Role: itinerary.RoleEnd, Query: "B"},
		{Index: 7, Role: itinerary.RoleEnd, Query: "C"},
	}
	outcomes := []Outcome{{Err: errors.New("boom")}, {}}

	rendered, metrics := Apply(events, items, outcomes)
	assert.False(t, rendered[0].HasMarker())
	assert.Equal(t, ApplyMetrics{Unresolved: 3}, metrics)
}

func mustParse(t *testing.T, payload string) *geocode.Response {
	t.Helper()

	r, err := geocode.ParseResponse("fake", []byte(payload))
	require.NoError(t, err)

	return r
}

const nabana = `[{"type":"stay","start_time":"2026-01-01T00:00:00+00:00","end_time":"2026-01-01T01:00:00+00:00","start_location":"Nabana no Sato","end_location":"Nabana no Sato","details":""}]`

func TestRunWithoutGeocoder(t *testing.T) {
	events := parseEvents(t, nabana)

	r, err := NewResolver(nil, ResolverOptions{Mode: ModeNone})
	require.NoError(t, err)

	rendered, err := Run(context.Background(), events, r, Options{DefaultCountry: "Japan"})
	require.NoError(t, err)
	require.Len(t, rendered, 1)

	data, err := json.Marshal(rendered)
	require.NoError(t, err)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(data, &got))

	for _, key := range []string{"lat", "lon", "start_lat", "start_lon", "end_lat", "end_lon"} {
		assert.NotContains(t, got[0], key)
	}

	assert.Equal(t, "", got[0]["details"])
	assert.Equal(t, "Nabana no Sato", got[0]["location"])
}

func TestRunDoesNotMutateInput(t *testing.T) {
	input := "[" + strings.Join([]string{
		event("Nagoya Station", "Kuwana", `"country":"Japan","booking":{"ref":"X1"}`),
		event("Kuwana", "Kuwana", `"start_lat":35.06,"start_lon":136.68`),
	}, ",") + "]"
	events := parseEvents(t, input)
	pristine := parseEvents(t, input)

	g := newFake(map[string]string{
		"Nagoya Station → Kuwana, Japan": feature(136.8, 35.1, "Route", "Japan"),
		"Nagoya Station, Japan":          feature(136.8815, 35.1709, "Nagoya Station", "Japan"),
		"Kuwana, Japan":                  feature(136.6839, 35.0622, "Kuwana", "Japan"),
		"Kuwana":                         feature(136.6839, 35.0622, "Kuwana", "Japan"),
	})

	rendered, err := Run(context.Background(), events, osmResolver(t, g, nil), Options{})
	require.NoError(t, err)

	if diff := cmp.Diff(pristine, events); diff != "" {
		t.Errorf("input events modified (-want +got):\n%s", diff)
	}

	assert.Equal(t, "", events[0].Location)
	assert.Equal(t, "Nagoya Station → Kuwana", rendered[0].Location)

	p, ok := rendered[0].Point(itinerary.RoleEnd)
	require.True(t, ok)
	assert.Equal(t, spatial.Point{Lat: 35.0622, Lon: 136.6839}, p)

	p, ok = rendered[1].Point(itinerary.RoleStart)
	require.True(t, ok)
	assert.Equal(t, spatial.Point{Lat: 35.06, Lon: 136.68}, p, "known coordinates are kept")

	g.mu.Lock()
	defer g.mu.Unlock()

	assert.Equal(t, 1, g.calls["Kuwana"], "primary and end of the second event share one call")
}

func TestRunAttachesAddressProperties(t *testing.T) {
	events := parseEvents(t, "["+event("Nagashima Station", "Nabana no Sato", "")+"]")

	busStop := `{"features":[{"geometry":{"coordinates":[136.6966916,35.0975101]},"properties":{` +
		`"name":"Bus to Nabana No Sato Park","postcode":"511-1126","city":"Kuwana","street":"Route Nagashima Station",` +
		`"state":"Mie Prefecture","osm_type":"N","osm_id":10596542106,"osm_key":"highway","osm_value":"bus_stop"}}]}`

	g := newFake(map[string]string{
		"Nagashima Station → Nabana no Sato": busStop,
		"Nagashima Station":                  busStop,
		"Nabana no Sato":                     busStop,
	})

	rendered, err := Run(context.Background(), events, osmResolver(t, g, nil), Options{})
	require.NoError(t, err)
	require.Len(t, rendered, 1)

	data, err := json.Marshal(rendered)
	require.NoError(t, err)

	payload := string(data)
	assert.Contains(t, payload, "Bus to Nabana No Sato Park")
	assert.Contains(t, payload, "511-1126")
	assert.Contains(t, payload, "Kuwana")
	assert.Contains(t, payload, "35.0975101")

	var got []map[string]any
	require.NoError(t, json.Unmarshal(data, &got))

	want := map[string]any{
		"postcode":  "511-1126",
		"city":      "Kuwana",
		"street":    "Route Nagashima Station",
		"state":     "Mie Prefecture",
		"osm_key":   "highway",
		"osm_value": "bus_stop",
	}

	for _, field := range []string{"address", "start_address", "end_address"} {
		if diff := cmp.Diff(want, got[0][field]); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", field, diff)
		}
	}
}
