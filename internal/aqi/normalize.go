package aqi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Value is a provider number that may arrive as a JSON number or a numeric
// string. WAQI uses "-" for stations without a current value, which decodes
// as an invalid (absent) Value.
type Value struct {
	Float float64
	Valid bool
}

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*v = Value{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f, ok := parseDecimal(strings.TrimSpace(s))
		*v = Value{Float: f, Valid: ok}
		return nil
	}
	f, ok := parseDecimal(string(b))
	if !ok {
		return fmt.Errorf("value %s is not a number", b)
	}
	*v = Value{Float: f, Valid: true}
	return nil
}

// parseDecimal accepts JSON number syntax only. strconv alone would let
// "NaN", "Inf" and hex floats through.
func parseDecimal(s string) (float64, bool) {
	if s == "" || !(s[0] == '-' || (s[0] >= '0' && s[0] <= '9')) || !json.Valid([]byte(s)) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Measurement is one entry of the WAQI "iaqi" map.
type Measurement struct {
	V Value `json:"v"`
}

// StationRecord is the raw station shape shared by the WAQI feed and search
// endpoints. Feed records populate City/IAQI/Time.ISO, search records
// populate UID/Station/Time.VTime.
type StationRecord struct {
	UID int   `json:"uid,omitempty"`
	Idx int   `json:"idx,omitempty"`
	AQI Value `json:"aqi"`

	Station struct {
		Name    string    `json:"name"`
		City    string    `json:"city,omitempty"`
		Geo     []float64 `json:"geo,omitempty"`
		Country string    `json:"country,omitempty"`
	} `json:"station"`

	City struct {
		Name string    `json:"name"`
		Geo  []float64 `json:"geo,omitempty"`
		URL  string    `json:"url,omitempty"`
	} `json:"city"`

	IAQI map[string]Measurement `json:"iaqi,omitempty"`

	Time struct {
		S     string `json:"s,omitempty"`
		TZ    string `json:"tz,omitempty"`
		ISO   string `json:"iso,omitempty"`
		STime string `json:"stime,omitempty"`
		VTime int64  `json:"vtime,omitempty"`
	} `json:"time"`
}

// DecodeStation parses one raw station record. Records that are not valid
// station objects are reported as MalformedRecordError.
func DecodeStation(raw []byte) (StationRecord, error) {
	var rec StationRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return StationRecord{}, &MalformedRecordError{Field: "record", Reason: err.Error()}
	}
	return rec, nil
}

// NormalizeRaw decodes and normalizes one raw station record.
func NormalizeRaw(raw []byte) (Reading, error) {
	rec, err := DecodeStation(raw)
	if err != nil {
		return Reading{}, err
	}
	return Normalize(rec)
}

// maxAQI bounds accepted index values well above the 500 scale ceiling
// while keeping the int conversion exact.
const maxAQI = 1e6

// Normalize maps a provider station record to a Reading.
func Normalize(rec StationRecord) (Reading, error) {
	if !rec.AQI.Valid {
		return Reading{}, &MalformedRecordError{Field: "aqi"}
	}
	if math.Abs(rec.AQI.Float) > maxAQI {
		return Reading{}, &MalformedRecordError{Field: "aqi", Reason: fmt.Sprintf("%g out of range", rec.AQI.Float)}
	}

	r := Reading{
		AQI:        int(math.Round(rec.AQI.Float)),
		Station:    firstNonEmpty(rec.Station.Name, rec.City.Name),
		City:       firstNonEmpty(rec.City.Name, rec.Station.City),
		ObservedAt: observedAt(rec),
		Pollutants: pollutants(rec.IAQI),
	}

	if geo := pickGeo(rec.City.Geo, rec.Station.Geo); geo != nil {
		r.Location = geo
	}

	return r, nil
}

// mergeDetail fills pollutants and location of a search reading from the
// station's full feed record.
func mergeDetail(r Reading, detail StationRecord) Reading {
	if len(detail.IAQI) > 0 {
		r.Pollutants = pollutants(detail.IAQI)
	}
	if r.Location == nil {
		r.Location = pickGeo(detail.City.Geo, detail.Station.Geo)
	}
	if r.ObservedAt == "" {
		r.ObservedAt = observedAt(detail)
	}
	return r
}

func pollutants(iaqi map[string]Measurement) Pollutants {
	p := Pollutants{
		PM25: required(iaqi, "pm25"),
		PM10: required(iaqi, "pm10"),
		O3:   required(iaqi, "o3"),
		NO2:  required(iaqi, "no2"),
		SO2:  optional(iaqi, "so2"),
		CO:   optional(iaqi, "co"),
	}
	return p
}

func required(iaqi map[string]Measurement, code string) float64 {
	if m, ok := iaqi[code]; ok && m.V.Valid {
		return m.V.Float
	}
	return 0
}

func optional(iaqi map[string]Measurement, code string) *float64 {
	m, ok := iaqi[code]
	if !ok || !m.V.Valid {
		return nil
	}
	v := m.V.Float
	return &v
}

func pickGeo(candidates ...[]float64) *Coordinates {
	for _, geo := range candidates {
		if len(geo) == 2 {
			return &Coordinates{Latitude: geo[0], Longitude: geo[1]}
		}
	}
	return nil
}

func observedAt(rec StationRecord) string {
	if rec.Time.ISO != "" {
		return rec.Time.ISO
	}
	if rec.Time.VTime > 0 {
		return time.Unix(rec.Time.VTime, 0).UTC().Format(time.RFC3339)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
