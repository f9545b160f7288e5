package aqi

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/i474232898/air-quality-gateway/internal/cache"
	"github.com/i474232898/air-quality-gateway/internal/metrics"
)

// Config wires a Gateway. Only Source is required.
type Config struct {
	Source   StationSource
	Geocoder ReverseGeocoder // optional enrichment of nearest-station readings
	Fallback ReadingSource   // optional, consulted when Source fails
	Places   ForwardGeocoder // optional, enables ResolvePlace

	// SearchDetailLimit is how many search results get their full station
	// feed merged in. 0 disables the extra calls.
	SearchDetailLimit int

	Readings cache.Store[Reading]   // nil = in-memory
	Searches cache.Store[[]Reading] // nil = in-memory
	TTL      time.Duration          // 0 = cache.DefaultTTL

	Logger *slog.Logger
}

// Gateway resolves coordinates or keywords into normalized readings,
// caching every successful result for the TTL. It never retries; upstream
// failures surface to the caller as NetworkError or UpstreamError.
type Gateway struct {
	source      StationSource
	geocoder    ReverseGeocoder
	fallback    ReadingSource
	places      ForwardGeocoder
	detailLimit int
	readings    *cache.TTL[Reading]
	searches    *cache.TTL[[]Reading]
	log         *slog.Logger
}

// NewGateway creates a Gateway. One Gateway (and so one cache) is meant to
// be shared for the lifetime of the process.
func NewGateway(cfg Config) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		source:      cfg.Source,
		geocoder:    cfg.Geocoder,
		fallback:    cfg.Fallback,
		places:      cfg.Places,
		detailLimit: cfg.SearchDetailLimit,
		readings:    cache.NewTTL("station", cfg.Readings, cfg.TTL),
		searches:    cache.NewTTL("search", cfg.Searches, cfg.TTL),
		log:         logger.With("component", "gateway"),
	}
}

// WithClock replaces the time source of both caches.
func (g *Gateway) WithClock(now func() time.Time) *Gateway {
	g.readings.WithClock(now)
	g.searches.WithClock(now)
	return g
}

// GetNearestStation returns the reading of the station nearest to the point.
// Coordinates are passed to the provider as given, without range checks.
func (g *Gateway) GetNearestStation(ctx context.Context, latitude, longitude float64) (Reading, error) {
	key := Coordinates{Latitude: latitude, Longitude: longitude}.Key()

	r, err := g.readings.Fetch(ctx, key, func(ctx context.Context) (Reading, error) {
		return g.fetchNearest(ctx, latitude, longitude)
	})
	if err != nil {
		return Reading{}, err
	}
	return r.Clone(), nil
}

// RefreshNearestStation fetches the point's reading even when a fresh one is
// cached and stores the result. Used to keep hot locations warm.
func (g *Gateway) RefreshNearestStation(ctx context.Context, latitude, longitude float64) (Reading, error) {
	key := Coordinates{Latitude: latitude, Longitude: longitude}.Key()

	r, err := g.readings.Refresh(ctx, key, func(ctx context.Context) (Reading, error) {
		return g.fetchNearest(ctx, latitude, longitude)
	})
	if err != nil {
		return Reading{}, err
	}
	return r.Clone(), nil
}

// SearchStations returns the readings of stations matching query, in the
// provider's order. Records that cannot be normalized are left out.
func (g *Gateway) SearchStations(ctx context.Context, query string) ([]Reading, error) {
	rs, err := g.searches.Fetch(ctx, SearchKey(query), func(ctx context.Context) ([]Reading, error) {
		return g.fetchSearch(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	return cloneReadings(rs), nil
}

// ResolvePlace geocodes a place name and returns its nearest station.
func (g *Gateway) ResolvePlace(ctx context.Context, city, country string) (Reading, error) {
	if g.places == nil {
		return Reading{}, ErrPlaceResolverDisabled
	}
	coords, err := g.places.Geocode(ctx, city, country)
	if err != nil {
		return Reading{}, err
	}
	return g.GetNearestStation(ctx, coords.Latitude, coords.Longitude)
}

// Reset empties both caches.
func (g *Gateway) Reset(ctx context.Context) error {
	return errors.Join(g.readings.Reset(ctx), g.searches.Reset(ctx))
}

func (g *Gateway) fetchNearest(ctx context.Context, latitude, longitude float64) (Reading, error) {
	r, err := g.fetchPrimary(ctx, latitude, longitude)
	if err != nil {
		if g.fallback == nil {
			return Reading{}, err
		}
		fr, ferr := g.fallback.Reading(ctx, latitude, longitude)
		if ferr != nil {
			g.log.Warn("fallback failed",
				"provider", g.fallback.Name(), "error", ferr, "primary_error", err)
			return Reading{}, err
		}
		g.log.Warn("primary provider failed; serving fallback reading",
			"provider", g.source.Name(), "fallback", g.fallback.Name(), "error", err)
		r = fr
	}

	g.enrich(ctx, &r, latitude, longitude)
	return r, nil
}

func (g *Gateway) fetchPrimary(ctx context.Context, latitude, longitude float64) (Reading, error) {
	raw, err := g.source.Nearest(ctx, latitude, longitude)
	if err != nil {
		return Reading{}, err
	}
	r, err := NormalizeRaw(raw)
	if err != nil {
		return Reading{}, escalate(g.source.Name(), err)
	}
	return r, nil
}

// enrich adds reverse-geocoded place details. Failures keep the provider's
// own place name.
func (g *Gateway) enrich(ctx context.Context, r *Reading, latitude, longitude float64) {
	if g.geocoder == nil {
		return
	}
	details, err := g.geocoder.ReverseGeocode(ctx, latitude, longitude)
	if err != nil {
		g.log.Warn("reverse geocoding failed", "provider", g.geocoder.Name(), "error", err)
		return
	}
	if details == nil {
		return
	}
	r.LocationDetails = details
	if details.City != "" {
		r.City = details.City
	}
}

func (g *Gateway) fetchSearch(ctx context.Context, query string) ([]Reading, error) {
	raws, err := g.source.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	readings := make([]Reading, 0, len(raws))
	uids := make([]int, 0, len(raws))
	for i, raw := range raws {
		rec, err := DecodeStation(raw)
		if err != nil {
			g.dropRecord(query, i, err)
			continue
		}
		r, err := Normalize(rec)
		if err != nil {
			g.dropRecord(query, i, err)
			continue
		}
		readings = append(readings, r)
		uids = append(uids, rec.UID)
	}

	if g.detailLimit > 0 {
		g.enrichSearch(ctx, readings, uids)
	}
	return readings, nil
}

func (g *Gateway) dropRecord(query string, index int, err error) {
	metrics.DroppedRecords.Inc()
	g.log.Debug("dropping search record", "query", query, "index", index, "error", err)
}

// enrichSearch merges full station feeds into the first detailLimit
// readings. Each goroutine owns one slice index.
func (g *Gateway) enrichSearch(ctx context.Context, readings []Reading, uids []int) {
	ds, ok := g.source.(StationDetailSource)
	if !ok {
		return
	}

	n := min(g.detailLimit, len(readings))

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		if uids[i] == 0 {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			raw, err := ds.Station(ctx, uids[i])
			if err != nil {
				g.log.Debug("station detail fetch failed", "uid", uids[i], "error", err)
				return
			}
			detail, err := DecodeStation(raw)
			if err != nil {
				g.log.Debug("station detail malformed", "uid", uids[i], "error", err)
				return
			}
			readings[i] = mergeDetail(readings[i], detail)
		}(i)
	}
	wg.Wait()
}
