package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// NominatimClient reverse-geocodes coordinates against a Nominatim endpoint.
// It implements ReverseGeocoder. Requests are rate limited to one per second
// per the public usage policy.
type NominatimClient struct {
	baseURL   string
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
}

// NewNominatimClient creates a client for the given Nominatim base URL, e.g.
// "https://nominatim.openstreetmap.org".
func NewNominatimClient(baseURL string, opts ...ClientOption) *NominatimClient {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}
	return &NominatimClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    client,
		userAgent: cfg.userAgent,
		limiter:   rate.NewLimiter(rate.Limit(1), 1),
	}
}

type nominatimResponse struct {
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
}

// Reverse resolves the structured address at the coordinate.
func (c *NominatimClient) Reverse(ctx context.Context, lat, lon float64) (*Address, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "nominatim rate limit")
	}

	endpoint := fmt.Sprintf("%s/reverse?format=jsonv2&lat=%f&lon=%f", c.baseURL, lat, lon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "build nominatim request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("nominatim status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLookupResponseBytes))
	if err != nil {
		return nil, eris.Wrap(err, "read nominatim response")
	}

	var parsed nominatimResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "decode nominatim response")
	}

	return &Address{Fields: parsed.Address, DisplayName: parsed.DisplayName}, nil
}
