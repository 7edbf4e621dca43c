package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
)

const (
	// DefaultLookupHTTPTimeout is the default HTTP request timeout for
	// lookup clients.
	DefaultLookupHTTPTimeout = 15 * time.Second

	// defaultUserAgent identifies the service to the lookup providers.
	defaultUserAgent = "geodataviz/1.0"

	// maxLookupResponseBytes limits lookup response bodies to 10 MB.
	maxLookupResponseBytes = 10 << 20
)

// ClientOption configures a lookup client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	timeout   time.Duration
	client    *http.Client
	userAgent string
}

func defaultClientConfig() clientConfig {
	return clientConfig{
		timeout:   DefaultLookupHTTPTimeout,
		userAgent: defaultUserAgent,
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// WithHTTPClient overrides the default HTTP client (useful for testing).
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *clientConfig) {
		c.client = client
	}
}

// WithUserAgent sets the User-Agent header sent to the provider.
func WithUserAgent(ua string) ClientOption {
	return func(c *clientConfig) {
		c.userAgent = ua
	}
}

// OverpassClient queries an Overpass API endpoint for administrative
// boundaries. It implements AdminLookup.
type OverpassClient struct {
	baseURL   string
	client    *http.Client
	userAgent string
}

// NewOverpassClient creates a client for the given Overpass endpoint, e.g.
// "https://overpass-api.de/api/interpreter".
func NewOverpassClient(baseURL string, opts ...ClientOption) *OverpassClient {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}
	return &OverpassClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    client,
		userAgent: cfg.userAgent,
	}
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Tags   map[string]string `json:"tags"`
	Bounds *overpassBounds   `json:"bounds"`
}

type overpassBounds struct {
	MinLat float64 `json:"minlat"`
	MinLon float64 `json:"minlon"`
	MaxLat float64 `json:"maxlat"`
	MaxLon float64 `json:"maxlon"`
}

// AdminAreas queries named administrative boundary relations within the
// bounding box. Candidate geometries are the elements' bounding boxes.
func (c *OverpassClient) AdminAreas(ctx context.Context, bound orb.Bound) ([]AdminArea, error) {
	// Overpass bbox order is south,west,north,east.
	query := fmt.Sprintf(
		"[out:json][timeout:25];relation[\"boundary\"=\"administrative\"][\"name\"](%f,%f,%f,%f);out tags bb;",
		bound.Min[1], bound.Min[0], bound.Max[1], bound.Max[0],
	)

	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "build overpass request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "overpass request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("overpass status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLookupResponseBytes))
	if err != nil {
		return nil, eris.Wrap(err, "read overpass response")
	}

	var parsed overpassResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "decode overpass response")
	}

	areas := make([]AdminArea, 0, len(parsed.Elements))
	for _, el := range parsed.Elements {
		name := el.Tags["name"]
		if name == "" || el.Bounds == nil {
			continue
		}
		level := 0
		if raw := el.Tags["admin_level"]; raw != "" {
			if n, err := strconv.Atoi(raw); err == nil {
				level = n
			}
		}
		areas = append(areas, AdminArea{
			Name:  name,
			ID:    fmt.Sprintf("%s/%d", el.Type, el.ID),
			Level: level,
			Geometry: orb.Bound{
				Min: orb.Point{el.Bounds.MinLon, el.Bounds.MinLat},
				Max: orb.Point{el.Bounds.MaxLon, el.Bounds.MaxLat},
			},
		})
	}
	return areas, nil
}
