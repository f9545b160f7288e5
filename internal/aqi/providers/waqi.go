package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultWAQIBaseURL is the public World Air Quality Index API.
const DefaultWAQIBaseURL = "https://api.waqi.info"

// WAQIProvider implements aqi.StationSource for the World Air Quality Index
// project API.
type WAQIProvider struct {
	upstream
	token   string
	baseURL string
}

// NewWAQIProvider creates a WAQI client. An empty token is not rejected
// locally; WAQI answers with an error envelope.
func NewWAQIProvider(client *http.Client, baseURL, token string) *WAQIProvider {
	if baseURL == "" {
		baseURL = DefaultWAQIBaseURL
	}
	return &WAQIProvider{
		upstream: newUpstream("waqi", client),
		token:    token,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

func (p *WAQIProvider) Name() string {
	return p.name
}

// Nearest calls GET /feed/geo:{lat};{lon}/.
func (p *WAQIProvider) Nearest(ctx context.Context, latitude, longitude float64) (json.RawMessage, error) {
	path := fmt.Sprintf("/feed/geo:%s;%s/", formatFloat(latitude), formatFloat(longitude))
	return p.feed(ctx, "feed_geo", path)
}

// Station calls GET /feed/@{uid}/.
func (p *WAQIProvider) Station(ctx context.Context, uid int) (json.RawMessage, error) {
	return p.feed(ctx, "feed_station", "/feed/@"+strconv.Itoa(uid)+"/")
}

// Search calls GET /search/?keyword={query}.
func (p *WAQIProvider) Search(ctx context.Context, query string) ([]json.RawMessage, error) {
	values := url.Values{}
	values.Set("token", p.token)
	values.Set("keyword", query)

	body, err := p.get(ctx, "search", p.baseURL+"/search/?"+values.Encode())
	if err != nil {
		return nil, err
	}

	var records []json.RawMessage
	if err := decodeEnvelope(p.name, body, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (p *WAQIProvider) feed(ctx context.Context, endpoint, path string) (json.RawMessage, error) {
	values := url.Values{}
	values.Set("token", p.token)

	body, err := p.get(ctx, endpoint, p.baseURL+path+"?"+values.Encode())
	if err != nil {
		return nil, err
	}

	var record json.RawMessage
	if err := decodeEnvelope(p.name, body, &record); err != nil {
		return nil, err
	}
	return record, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
