package aqi

import (
	"context"
	"encoding/json"
)

// StationSource abstracts the primary AQI feed (WAQI). It owns transport and
// envelope handling and hands back raw station records; normalization is
// done by the gateway.
type StationSource interface {
	Name() string

	// Nearest returns the raw record of the station closest to the point.
	Nearest(ctx context.Context, latitude, longitude float64) (json.RawMessage, error)

	// Search returns raw station records matching the keyword, in provider order.
	Search(ctx context.Context, query string) ([]json.RawMessage, error)
}

// StationDetailSource is implemented by sources that can return the full
// feed record of a station by its provider uid.
type StationDetailSource interface {
	Station(ctx context.Context, uid int) (json.RawMessage, error)
}

// ReverseGeocoder resolves a point to a place name. Returns nil details
// when the provider knows no place for the point.
type ReverseGeocoder interface {
	Name() string
	ReverseGeocode(ctx context.Context, latitude, longitude float64) (*LocationDetails, error)
}

// ReadingSource is a provider that returns an already normalized reading
// for a point. Used as the deterministic fallback.
type ReadingSource interface {
	Name() string
	Reading(ctx context.Context, latitude, longitude float64) (Reading, error)
}

// ForwardGeocoder resolves a place name to coordinates.
type ForwardGeocoder interface {
	Name() string
	Geocode(ctx context.Context, city, country string) (Coordinates, error)
}
