package location

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultGeocodeEndpoint = "https://nominatim.openstreetmap.org/reverse"
	DefaultGeocodeZoom     = 18
	DefaultUserAgent       = "photostamp/1.0"
	DefaultGeocodeTimeout  = 10 * time.Second
	// responses larger than this are not address lookups
	maxGeocodeResponseBytes = 1 << 20
)

// GeocoderConfig configures the reverse-geocoding client.
type GeocoderConfig struct {
	Endpoint          string
	UserAgent         string
	Zoom              int
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Geocoder resolves coordinates to a compact postal address using a Nominatim-compatible API.
type Geocoder struct {
	endpoint  string
	userAgent string
	zoom      int
	client    *http.Client
	limiter   *rate.Limiter
}

func NewGeocoder(cfg GeocoderConfig) *Geocoder {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultGeocodeEndpoint
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Zoom <= 0 {
		cfg.Zoom = DefaultGeocodeZoom
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGeocodeTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Geocoder{
		endpoint:  cfg.Endpoint,
		userAgent: cfg.UserAgent,
		zoom:      cfg.Zoom,
		client:    &http.Client{Timeout: cfg.Timeout},
		limiter:   limiter,
	}
}

// Address holds the structured address fields of a reverse lookup.
type Address struct {
	Road        string `json:"road"`
	HouseNumber string `json:"house_number"`
	Postcode    string `json:"postcode"`
	City        string `json:"city"`
	Town        string `json:"town"`
	Village     string `json:"village"`
}

type reverseResponse struct {
	Address     *Address `json:"address"`
	DisplayName string   `json:"display_name"`
}

// ReverseGeocode returns a compact address for the coordinates, or "" if none could be resolved.
// Failures are logged and never returned.
func (g *Geocoder) ReverseGeocode(ctx context.Context, lat, lng float64) string {
	address, err := g.reverseGeocode(ctx, lat, lng)
	if err != nil {
		slog.Warn("reverse geocoding failed", "lat", lat, "lng", lng, "error", err)
		return ""
	}
	return address
}

func (g *Geocoder) reverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.requestURL(lat, lng), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", g.userAgent)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body reverseResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxGeocodeResponseBytes)).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	address := ComposeAddress(body.Address, body.DisplayName)
	slog.Debug("reverse geocoding completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"has_address", address != "")
	return address, nil
}

func (g *Geocoder) requestURL(lat, lng float64) string {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("zoom", strconv.Itoa(g.zoom))
	q.Set("addressdetails", "1")

	sep := "?"
	if strings.Contains(g.endpoint, "?") {
		sep = "&"
	}
	return g.endpoint + sep + q.Encode()
}

// ComposeAddress builds "road house_number, postcode, city" from the structured fields.
// City falls back to town, then village. When no part is usable displayName is returned.
func ComposeAddress(a *Address, displayName string) string {
	if a == nil {
		return strings.TrimSpace(displayName)
	}

	var parts []string
	if road := strings.TrimSpace(a.Road); road != "" {
		street := road
		if number := strings.TrimSpace(a.HouseNumber); number != "" {
			street += " " + number
		}
		parts = append(parts, street)
	}
	if postcode := strings.TrimSpace(a.Postcode); postcode != "" {
		parts = append(parts, postcode)
	}
	if locality := firstNonEmpty(a.City, a.Town, a.Village); locality != "" {
		parts = append(parts, locality)
	}

	if len(parts) == 0 {
		return strings.TrimSpace(displayName)
	}
	return strings.Join(parts, ", ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
