package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"

	"github.com/i474232898/air-quality-gateway/internal/aqi"
	"github.com/i474232898/air-quality-gateway/internal/metrics"
)

const maxBodySize = 4 << 20 // 4 MB

var (
	errCircuitOpen  = errors.New("circuit breaker open")
	errNoHTTPClient = errors.New("http client not configured")
)

// upstream bundles what every provider needs to issue a request.
type upstream struct {
	name     string
	client   *http.Client
	breakers *breakerSet
}

func newUpstream(name string, client *http.Client) upstream {
	return upstream{
		name:     name,
		client:   client,
		breakers: &breakerSet{provider: name, byEndpoint: make(map[string]*gobreaker.CircuitBreaker)},
	}
}

// breakerSet keeps one circuit breaker per endpoint, so failures of an
// optional call (station details, reverse geocoding) never open the breaker
// of a primary one.
type breakerSet struct {
	provider string

	mu         sync.Mutex
	byEndpoint map[string]*gobreaker.CircuitBreaker
}

func (b *breakerSet) get(endpoint string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	cb, ok := b.byEndpoint[endpoint]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:         b.provider + "/" + endpoint,
			MaxRequests:  5,
			Interval:     1 * time.Minute,
			Timeout:      2 * time.Minute,
			IsSuccessful: answered,
		})
		b.byEndpoint[endpoint] = cb
	}
	return cb
}

// answered treats a 4xx as a healthy provider: it responded, the request
// was just rejected (bad key, unknown station).
func answered(err error) bool {
	if err == nil {
		return true
	}
	var upstreamErr *aqi.UpstreamError
	return errors.As(err, &upstreamErr) && upstreamErr.StatusCode < 500
}

// get executes a GET through the endpoint's circuit breaker and returns the
// body of a 2xx response. There are no retries: transport failures come back
// as aqi.NetworkError, non-2xx responses as aqi.UpstreamError.
func (u upstream) get(ctx context.Context, endpoint, rawURL string) ([]byte, error) {
	if u.client == nil {
		return nil, &aqi.NetworkError{Provider: u.name, Err: errNoHTTPClient}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &aqi.NetworkError{Provider: u.name, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	result, err := u.breakers.get(endpoint).Execute(func() (interface{}, error) {
		resp, execErr := u.client.Do(req)
		if execErr != nil {
			return nil, &aqi.NetworkError{Provider: u.name, Err: execErr}
		}
		defer resp.Body.Close()

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if readErr != nil {
			return nil, &aqi.NetworkError{Provider: u.name, Err: readErr}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &aqi.UpstreamError{
				Provider:   u.name,
				StatusCode: resp.StatusCode,
				Message:    envelopeMessage(body),
			}
		}
		return body, nil
	})
	metrics.UpstreamLatency.WithLabelValues(u.name, endpoint).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(u.name, endpoint, outcome(err)).Inc()
		// An open breaker means the request was never sent.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &aqi.NetworkError{Provider: u.name, Err: fmt.Errorf("%w: %v", errCircuitOpen, err)}
		}
		return nil, err
	}
	metrics.UpstreamRequests.WithLabelValues(u.name, endpoint, "ok").Inc()

	body, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return body, nil
}

func outcome(err error) string {
	var upstreamErr *aqi.UpstreamError
	switch {
	case errors.As(err, &upstreamErr):
		return "upstream_error"
	default:
		return "network_error"
	}
}

// envelopeMessage extracts the provider's error text. WAQI reports it in
// "message" or as a string "data"; OpenWeather uses "message".
func envelopeMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	if msg := gjson.GetBytes(body, "message"); msg.Type == gjson.String && msg.String() != "" {
		return msg.String()
	}
	if data := gjson.GetBytes(body, "data"); data.Type == gjson.String {
		return data.String()
	}
	return ""
}

// decodeEnvelope checks a {status, data} envelope and decodes data into out.
// Any status other than "ok" is a failure regardless of the HTTP code.
func decodeEnvelope(provider string, body []byte, out any) error {
	if !gjson.ValidBytes(body) {
		return &aqi.UpstreamError{Provider: provider, Message: "response is not valid JSON"}
	}

	if status := gjson.GetBytes(body, "status").String(); status != "ok" {
		msg := envelopeMessage(body)
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %q", status)
		}
		return &aqi.UpstreamError{Provider: provider, Message: msg}
	}

	data := gjson.GetBytes(body, "data")
	if !data.Exists() {
		return &aqi.UpstreamError{Provider: provider, Message: "response has no data"}
	}
	if err := json.Unmarshal([]byte(data.Raw), out); err != nil {
		return &aqi.UpstreamError{Provider: provider, Message: "decoding response data", Err: err}
	}
	return nil
}
