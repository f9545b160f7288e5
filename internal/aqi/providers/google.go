package providers

import (
	"context"
	"errors"
	"net"
	"net/url"
	"time"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/air-quality-gateway/internal/aqi"
	"github.com/i474232898/air-quality-gateway/internal/metrics"
)

// GoogleGeocoder implements aqi.ForwardGeocoder on the Google Geocoding API.
type GoogleGeocoder struct {
	name string
}

// NewGoogleGeocoder configures the geocoder package with the API key.
// The key is process-wide in the underlying library.
func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	geocoder.ApiKey = apiKey
	return &GoogleGeocoder{name: "google-geocoding"}
}

func (g *GoogleGeocoder) Name() string {
	return g.name
}

// Geocode resolves a city (and optional country) to coordinates.
func (g *GoogleGeocoder) Geocode(ctx context.Context, city, country string) (aqi.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return aqi.Coordinates{}, &aqi.NetworkError{Provider: g.name, Err: err}
	}

	start := time.Now()
	loc, err := geocoder.Geocoding(geocoder.Address{
		City:    city,
		Country: country,
	})
	metrics.UpstreamLatency.WithLabelValues(g.name, "geocode").Observe(time.Since(start).Seconds())
	if err != nil {
		err = classifyGeocodeError(g.name, err)
		metrics.UpstreamRequests.WithLabelValues(g.name, "geocode", outcome(err)).Inc()
		return aqi.Coordinates{}, err
	}
	metrics.UpstreamRequests.WithLabelValues(g.name, "geocode", "ok").Inc()

	return aqi.Coordinates{Latitude: loc.Latitude, Longitude: loc.Longitude}, nil
}

// classifyGeocodeError separates transport failures, which the geocoder
// library returns as *url.Error, from status errors reported by Google.
func classifyGeocodeError(provider string, err error) error {
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return &aqi.NetworkError{Provider: provider, Err: err}
	}
	return &aqi.UpstreamError{Provider: provider, Message: err.Error(), Err: err}
}
