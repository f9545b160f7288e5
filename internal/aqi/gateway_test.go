package aqi

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/air-quality-gateway/internal/cache"
)

type fakeSource struct {
	mu sync.Mutex

	nearest      json.RawMessage
	nearestErr   error
	search       []json.RawMessage
	searchErr    error
	details      map[int]json.RawMessage
	nearestCalls int
	searchCalls  int
	detailCalls  int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Nearest(_ context.Context, _, _ float64) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nearestCalls++
	return f.nearest, f.nearestErr
}

func (f *fakeSource) Search(_ context.Context, _ string) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	return f.search, f.searchErr
}

func (f *fakeSource) Station(_ context.Context, uid int) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls++
	raw, ok := f.details[uid]
	if !ok {
		return nil, &NetworkError{Provider: "fake", Err: errors.New("connection refused")}
	}
	return raw, nil
}

type fakeGeocoder struct {
	details *LocationDetails
	err     error
	calls   int
}

func (f *fakeGeocoder) Name() string { return "fake-geo" }

func (f *fakeGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (*LocationDetails, error) {
	f.calls++
	return f.details, f.err
}

type fakeFallback struct {
	reading Reading
	err     error
	calls   int
}

func (f *fakeFallback) Name() string { return "fake-fallback" }

func (f *fakeFallback) Reading(_ context.Context, _, _ float64) (Reading, error) {
	f.calls++
	return f.reading, f.err
}

type fakePlaces struct {
	coords Coordinates
	err    error
}

func (f *fakePlaces) Name() string { return "fake-places" }

func (f *fakePlaces) Geocode(_ context.Context, _, _ string) (Coordinates, error) {
	return f.coords, f.err
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }
func newClock() *clock                   { return &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)} }
func raw(s string) json.RawMessage       { return json.RawMessage(s) }

func newTestGateway(src StationSource, clk *clock, mutate ...func(*Config)) (*Gateway, *cache.Memory[Reading], *cache.Memory[[]Reading]) {
	readings := cache.NewMemory[Reading]()
	searches := cache.NewMemory[[]Reading]()
	cfg := Config{
		Source:   src,
		Readings: readings,
		Searches: searches,
		TTL:      5 * time.Minute,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	g := NewGateway(cfg).WithClock(clk.Now)
	return g, readings, searches
}

func TestGetNearestStationScenario(t *testing.T) {
	src := &fakeSource{nearest: raw(delhiFeed)}
	g, _, _ := newTestGateway(src, newClock())

	r, err := g.GetNearestStation(context.Background(), 28.6139, 77.2090)
	require.NoError(t, err)

	assert.Equal(t, Reading{
		AQI:        180,
		Station:    "Delhi Station",
		City:       "Delhi",
		ObservedAt: "2024-01-01T00:00:00Z",
		Pollutants: Pollutants{PM25: 95, PM10: 120},
		Location:   &Coordinates{Latitude: 28.61, Longitude: 77.20},
	}, r)
}

func TestGetNearestStationCachesWithinTTL(t *testing.T) {
	src := &fakeSource{nearest: raw(delhiFeed)}
	clk := newClock()
	g, _, _ := newTestGateway(src, clk)
	ctx := context.Background()

	_, err := g.GetNearestStation(ctx, 28.6139, 77.2090)
	require.NoError(t, err)

	clk.Advance(4*time.Minute + 59*time.Second)
	_, err = g.GetNearestStation(ctx, 28.6139, 77.2090)
	require.NoError(t, err)
	assert.Equal(t, 1, src.nearestCalls)

	// A different point is a different signature.
	_, err = g.GetNearestStation(ctx, 28.6, 77.2090)
	require.NoError(t, err)
	assert.Equal(t, 2, src.nearestCalls)
}

func TestGetNearestStationRefetchesAfterTTL(t *testing.T) {
	src := &fakeSource{nearest: raw(delhiFeed)}
	clk := newClock()
	g, _, _ := newTestGateway(src, clk)
	ctx := context.Background()

	first, err := g.GetNearestStation(ctx, 28.6139, 77.2090)
	require.NoError(t, err)
	assert.Equal(t, 180, first.AQI)

	src.nearest = raw(`{"aqi": 90, "city": {"name": "Delhi"}}`)
	clk.Advance(5 * time.Minute) // exactly TTL: expired

	second, err := g.GetNearestStation(ctx, 28.6139, 77.2090)
	require.NoError(t, err)
	assert.Equal(t, 2, src.nearestCalls)
	assert.Equal(t, 90, second.AQI)

	third, err := g.GetNearestStation(ctx, 28.6139, 77.2090)
	require.NoError(t, err)
	assert.Equal(t, 2, src.nearestCalls)
	assert.Equal(t, 90, third.AQI, "the refreshed entry replaced the stale one")
}

func TestGetNearestStationUpstreamErrorIsNotCached(t *testing.T) {
	src := &fakeSource{nearestErr: &UpstreamError{Provider: "fake", Message: "Invalid key"}}
	g, readings, _ := newTestGateway(src, newClock())
	ctx := context.Background()

	_, err := g.GetNearestStation(ctx, 28.6139, 77.2090)
	var upstreamErr *UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	assert.Equal(t, "Invalid key", upstreamErr.Message)
	assert.Equal(t, 0, readings.Len())

	// The next call goes upstream again.
	_, err = g.GetNearestStation(ctx, 28.6139, 77.2090)
	require.Error(t, err)
	assert.Equal(t, 2, src.nearestCalls)
}

func TestGetNearestStationNetworkErrorPropagates(t *testing.T) {
	netErr := &NetworkError{Provider: "fake", Err: errors.New("dial tcp: connection refused")}
	src := &fakeSource{nearestErr: netErr}
	g, _, _ := newTestGateway(src, newClock())

	_, err := g.GetNearestStation(context.Background(), 1, 2)
	assert.Same(t, netErr, err)
}

func TestGetNearestStationMalformedEscalates(t *testing.T) {
	src := &fakeSource{nearest: raw(`{"aqi": "-", "city": {"name": "Nowhere"}}`)}
	g, readings, _ := newTestGateway(src, newClock())

	_, err := g.GetNearestStation(context.Background(), 1, 2)
	var upstreamErr *UpstreamError
	require.True(t, errors.As(err, &upstreamErr), "got %v", err)
	var malformed *MalformedRecordError
	assert.True(t, errors.As(err, &malformed))
	assert.Equal(t, 0, readings.Len())
}

func TestGetNearestStationEnrichment(t *testing.T) {
	src := &fakeSource{nearest: raw(delhiFeed)}
	geo := &fakeGeocoder{details: &LocationDetails{
		City:             "New Delhi",
		State:            "Delhi",
		Country:          "IN",
		FormattedAddress: "New Delhi, Delhi, IN",
	}}
	g, _, _ := newTestGateway(src, newClock(), func(c *Config) { c.Geocoder = geo })
	ctx := context.Background()

	r, err := g.GetNearestStation(ctx, 28.6139, 77.2090)
	require.NoError(t, err)
	assert.Equal(t, "New Delhi", r.City)
	require.NotNil(t, r.LocationDetails)
	assert.Equal(t, "IN", r.LocationDetails.Country)

	// Served from cache: no second geocoding call either.
	_, err = g.GetNearestStation(ctx, 28.6139, 77.2090)
	require.NoError(t, err)
	assert.Equal(t, 1, geo.calls)
}

func TestGetNearestStationEnrichmentFailureDegrades(t *testing.T) {
	src := &fakeSource{nearest: raw(delhiFeed)}
	geo := &fakeGeocoder{err: &NetworkError{Provider: "fake-geo", Err: errors.New("timeout")}}
	g, _, _ := newTestGateway(src, newClock(), func(c *Config) { c.Geocoder = geo })

	r, err := g.GetNearestStation(context.Background(), 28.6139, 77.2090)
	require.NoError(t, err)
	assert.Equal(t, "Delhi", r.City)
	assert.Nil(t, r.LocationDetails)
}

func TestGetNearestStationFallback(t *testing.T) {
	primaryErr := &UpstreamError{Provider: "fake", Message: "over quota"}
	src := &fakeSource{nearestErr: primaryErr}
	fb := &fakeFallback{reading: Reading{AQI: 75, Station: "Location (1.00, 2.00)"}}
	g, _, _ := newTestGateway(src, newClock(), func(c *Config) { c.Fallback = fb })

	r, err := g.GetNearestStation(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 75, r.AQI)
	assert.Equal(t, 1, fb.calls)

	// Failing fallback returns the primary error.
	fb.err = errors.New("fallback down")
	g2, _, _ := newTestGateway(src, newClock(), func(c *Config) { c.Fallback = fb })
	_, err = g2.GetNearestStation(context.Background(), 1, 2)
	assert.Same(t, primaryErr, err)
}

func TestGetNearestStationReturnsCopies(t *testing.T) {
	src := &fakeSource{nearest: raw(delhiFeed)}
	g, _, _ := newTestGateway(src, newClock())
	ctx := context.Background()

	r, err := g.GetNearestStation(ctx, 28.6139, 77.2090)
	require.NoError(t, err)
	r.Location.Latitude = 0

	again, err := g.GetNearestStation(ctx, 28.6139, 77.2090)
	require.NoError(t, err)
	assert.Equal(t, 28.61, again.Location.Latitude)
}

func TestSearchStationsDropsMalformedRecords(t *testing.T) {
	src := &fakeSource{search: []json.RawMessage{
		raw(`{"uid": 1, "aqi": "40", "station": {"name": "Paris Centre"}}`),
		raw(`{"uid": 2, "station": {"name": "Paris Broken"}}`),
		raw(`{"uid": 3, "aqi": 61, "station": {"name": "Paris Est"}}`),
	}}
	g, _, _ := newTestGateway(src, newClock())

	rs, err := g.SearchStations(context.Background(), "Paris")
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, "Paris Centre", rs[0].Station)
	assert.Equal(t, 40, rs[0].AQI)
	assert.Equal(t, "Paris Est", rs[1].Station)
	assert.Equal(t, 61, rs[1].AQI)
	assert.Equal(t, 0, src.detailCalls, "detail enrichment is off by default")
}

func TestSearchStationsCaching(t *testing.T) {
	src := &fakeSource{search: []json.RawMessage{raw(`{"aqi": 10, "station": {"name": "A"}}`)}}
	clk := newClock()
	g, _, searches := newTestGateway(src, clk)
	ctx := context.Background()

	_, err := g.SearchStations(ctx, "Paris")
	require.NoError(t, err)
	_, err = g.SearchStations(ctx, "Paris")
	require.NoError(t, err)
	assert.Equal(t, 1, src.searchCalls)
	assert.Equal(t, 1, searches.Len())

	_, err = g.SearchStations(ctx, "paris")
	require.NoError(t, err)
	assert.Equal(t, 2, src.searchCalls, "queries are cached verbatim")

	clk.Advance(6 * time.Minute)
	_, err = g.SearchStations(ctx, "Paris")
	require.NoError(t, err)
	assert.Equal(t, 3, src.searchCalls)
}

func TestSearchStationsEmptyResultIsNotNil(t *testing.T) {
	src := &fakeSource{search: []json.RawMessage{raw(`{"aqi": "-"}`)}}
	g, _, _ := newTestGateway(src, newClock())

	rs, err := g.SearchStations(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.NotNil(t, rs)
	assert.Empty(t, rs)
}

func TestSearchStationsUpstreamError(t *testing.T) {
	src := &fakeSource{searchErr: &UpstreamError{Provider: "fake", Message: "Invalid key"}}
	g, _, searches := newTestGateway(src, newClock())

	_, err := g.SearchStations(context.Background(), "Paris")
	var upstreamErr *UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	assert.Equal(t, 0, searches.Len())
}

func TestSearchStationsDetailEnrichment(t *testing.T) {
	src := &fakeSource{
		search: []json.RawMessage{
			raw(`{"uid": 1, "aqi": "40", "station": {"name": "A"}}`),
			raw(`{"uid": 2, "aqi": "50", "station": {"name": "B"}}`),
			raw(`{"uid": 3, "aqi": "60", "station": {"name": "C"}}`),
		},
		details: map[int]json.RawMessage{
			1: raw(`{"aqi": 40, "iaqi": {"pm25": {"v": 12}}, "city": {"name": "A", "geo": [1, 2]}}`),
			// uid 2 fails: the base record is kept.
			3: raw(`{"aqi": 60, "iaqi": {"pm25": {"v": 30}}}`),
		},
	}
	g, _, _ := newTestGateway(src, newClock(), func(c *Config) { c.SearchDetailLimit = 2 })

	rs, err := g.SearchStations(context.Background(), "x")
	require.NoError(t, err)
	require.Len(t, rs, 3)

	assert.Equal(t, 2, src.detailCalls)
	assert.Equal(t, "A", rs[0].Station)
	assert.Equal(t, 12.0, rs[0].Pollutants.PM25)
	require.NotNil(t, rs[0].Location)
	assert.Equal(t, "B", rs[1].Station)
	assert.Zero(t, rs[1].Pollutants.PM25)
	assert.Equal(t, "C", rs[2].Station)
	assert.Zero(t, rs[2].Pollutants.PM25, "beyond the detail limit")
}

func TestResolvePlace(t *testing.T) {
	src := &fakeSource{nearest: raw(delhiFeed)}

	g, _, _ := newTestGateway(src, newClock())
	_, err := g.ResolvePlace(context.Background(), "Delhi", "IN")
	assert.ErrorIs(t, err, ErrPlaceResolverDisabled)

	places := &fakePlaces{coords: Coordinates{Latitude: 28.6139, Longitude: 77.2090}}
	g, readings, _ := newTestGateway(src, newClock(), func(c *Config) { c.Places = places })
	r, err := g.ResolvePlace(context.Background(), "Delhi", "IN")
	require.NoError(t, err)
	assert.Equal(t, 180, r.AQI)
	assert.Equal(t, 1, readings.Len())
}

func TestReset(t *testing.T) {
	src := &fakeSource{
		nearest: raw(delhiFeed),
		search:  []json.RawMessage{raw(`{"aqi": 10}`)},
	}
	g, readings, searches := newTestGateway(src, newClock())
	ctx := context.Background()

	_, err := g.GetNearestStation(ctx, 1, 2)
	require.NoError(t, err)
	_, err = g.SearchStations(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, g.Reset(ctx))
	assert.Equal(t, 0, readings.Len())
	assert.Equal(t, 0, searches.Len())

	_, err = g.GetNearestStation(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, src.nearestCalls)
}

func TestRefreshNearestStationBypassesCache(t *testing.T) {
	src := &fakeSource{nearest: raw(delhiFeed)}
	g, _, _ := newTestGateway(src, newClock())
	ctx := context.Background()

	_, err := g.GetNearestStation(ctx, 28.6139, 77.2090)
	require.NoError(t, err)

	src.nearest = raw(`{"aqi": 90, "city": {"name": "Delhi"}}`)
	r, err := g.RefreshNearestStation(ctx, 28.6139, 77.2090)
	require.NoError(t, err)
	assert.Equal(t, 90, r.AQI)

	r, err = g.GetNearestStation(ctx, 28.6139, 77.2090)
	require.NoError(t, err)
	assert.Equal(t, 90, r.AQI)
	assert.Equal(t, 2, src.nearestCalls)
}
