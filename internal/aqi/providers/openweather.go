package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/i474232898/air-quality-gateway/internal/aqi"
)

const (
	DefaultOpenWeatherGeoURL  = "https://api.openweathermap.org/geo/1.0"
	DefaultOpenWeatherDataURL = "https://api.openweathermap.org/data/2.5"
)

// OpenWeatherProvider implements aqi.ReverseGeocoder (Geocoding API) and
// aqi.ReadingSource (Air Pollution API) for OpenWeatherMap.
type OpenWeatherProvider struct {
	upstream
	apiKey  string
	geoURL  string
	dataURL string
}

func NewOpenWeatherProvider(client *http.Client, geoURL, dataURL, apiKey string) *OpenWeatherProvider {
	if geoURL == "" {
		geoURL = DefaultOpenWeatherGeoURL
	}
	if dataURL == "" {
		dataURL = DefaultOpenWeatherDataURL
	}
	return &OpenWeatherProvider{
		upstream: newUpstream("openweathermap", client),
		apiKey:   apiKey,
		geoURL:   strings.TrimRight(geoURL, "/"),
		dataURL:  strings.TrimRight(dataURL, "/"),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

// ReverseGeocode returns the first place OpenWeather knows for the point,
// or nil when the result list is empty.
func (p *OpenWeatherProvider) ReverseGeocode(ctx context.Context, latitude, longitude float64) (*aqi.LocationDetails, error) {
	values := p.pointQuery(latitude, longitude)
	values.Set("limit", "1")

	body, err := p.get(ctx, "reverse_geocode", p.geoURL+"/reverse?"+values.Encode())
	if err != nil {
		return nil, err
	}

	var places []struct {
		Name    string `json:"name"`
		State   string `json:"state"`
		Country string `json:"country"`
	}
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, &aqi.UpstreamError{Provider: p.name, Message: "decoding geocoding response", Err: err}
	}
	if len(places) == 0 {
		return nil, nil
	}

	place := places[0]
	return &aqi.LocationDetails{
		City:             place.Name,
		State:            place.State,
		Country:          place.Country,
		FormattedAddress: formatAddress(place.Name, place.State, place.Country),
	}, nil
}

// Reading returns the current air pollution at the point, with the 1-5
// OpenWeather index mapped onto the 0-500 scale.
func (p *OpenWeatherProvider) Reading(ctx context.Context, latitude, longitude float64) (aqi.Reading, error) {
	values := p.pointQuery(latitude, longitude)

	body, err := p.get(ctx, "air_pollution", p.dataURL+"/air_pollution?"+values.Encode())
	if err != nil {
		return aqi.Reading{}, err
	}

	var payload struct {
		List []struct {
			Dt   int64 `json:"dt"`
			Main struct {
				AQI int `json:"aqi"`
			} `json:"main"`
			Components map[string]float64 `json:"components"`
		} `json:"list"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return aqi.Reading{}, &aqi.UpstreamError{Provider: p.name, Message: "decoding air pollution response", Err: err}
	}
	if len(payload.List) == 0 {
		return aqi.Reading{}, &aqi.UpstreamError{Provider: p.name, Message: "no air pollution data for location"}
	}

	item := payload.List[0]

	ts := time.Now().UTC()
	if item.Dt > 0 {
		ts = time.Unix(item.Dt, 0).UTC()
	}

	label := fmt.Sprintf("Location (%.2f, %.2f)", latitude, longitude)
	return aqi.Reading{
		AQI:        convertOpenWeatherIndex(item.Main.AQI),
		Station:    label,
		City:       label,
		ObservedAt: ts.Format(time.RFC3339),
		Pollutants: aqi.Pollutants{
			PM25: item.Components["pm2_5"],
			PM10: item.Components["pm10"],
			O3:   item.Components["o3"],
			NO2:  item.Components["no2"],
			SO2:  component(item.Components, "so2"),
			CO:   component(item.Components, "co"),
		},
		Location: &aqi.Coordinates{Latitude: latitude, Longitude: longitude},
	}, nil
}

func (p *OpenWeatherProvider) pointQuery(latitude, longitude float64) url.Values {
	values := url.Values{}
	values.Set("lat", formatFloat(latitude))
	values.Set("lon", formatFloat(longitude))
	values.Set("appid", p.apiKey)
	return values
}

// convertOpenWeatherIndex maps the 1 (good) to 5 (very poor) scale to a
// representative value on the 0-500 scale.
func convertOpenWeatherIndex(index int) int {
	switch index {
	case 1:
		return 25
	case 2:
		return 75
	case 3:
		return 150
	case 4:
		return 200
	case 5:
		return 300
	default:
		return 0
	}
}

func component(components map[string]float64, code string) *float64 {
	v, ok := components[code]
	if !ok {
		return nil
	}
	return &v
}

func formatAddress(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ", ")
}
