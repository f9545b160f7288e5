package aqi

import (
	"strconv"
)

// Coordinates is a geographic point in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// Key returns the canonical cache signature for a nearest-station lookup.
func (c Coordinates) Key() string {
	return "station:" + formatCoord(c.Latitude) + "," + formatCoord(c.Longitude)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// SearchKey returns the canonical cache signature for a keyword search.
// The query is used verbatim.
func SearchKey(query string) string {
	return "search:" + query
}

// Pollutants holds per-pollutant concentrations as reported by the provider.
// The four required pollutants are always present (0 when not reported);
// SO2 and CO stay nil when the provider did not report them.
type Pollutants struct {
	PM25 float64  `json:"pm25"`
	PM10 float64  `json:"pm10"`
	O3   float64  `json:"o3"`
	NO2  float64  `json:"no2"`
	SO2  *float64 `json:"so2,omitempty"`
	CO   *float64 `json:"co,omitempty"`
}

// LocationDetails is the reverse-geocoding enrichment of a reading.
type LocationDetails struct {
	City             string `json:"city"`
	State            string `json:"state,omitempty"`
	Country          string `json:"country"`
	FormattedAddress string `json:"formattedAddress,omitempty"`
}

// Reading is the normalized air-quality measurement of one station.
type Reading struct {
	AQI             int              `json:"aqi"`
	Station         string           `json:"station"`
	City            string           `json:"city,omitempty"`
	ObservedAt      string           `json:"observedAt"` // ISO-8601
	Pollutants      Pollutants       `json:"pollutants"`
	Location        *Coordinates     `json:"location,omitempty"`
	LocationDetails *LocationDetails `json:"locationDetails,omitempty"`
}

// Clone returns a deep copy so cached readings are never shared with callers.
func (r Reading) Clone() Reading {
	out := r
	if r.Pollutants.SO2 != nil {
		v := *r.Pollutants.SO2
		out.Pollutants.SO2 = &v
	}
	if r.Pollutants.CO != nil {
		v := *r.Pollutants.CO
		out.Pollutants.CO = &v
	}
	if r.Location != nil {
		loc := *r.Location
		out.Location = &loc
	}
	if r.LocationDetails != nil {
		d := *r.LocationDetails
		out.LocationDetails = &d
	}
	return out
}

func cloneReadings(in []Reading) []Reading {
	if in == nil {
		return nil
	}
	out := make([]Reading, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}
