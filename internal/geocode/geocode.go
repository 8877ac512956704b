// Package geocode turns coordinates into a human readable place using the
// OpenStreetMap Nominatim reverse geocoder.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clearskies/clearskies/internal/provider/resilience"
	"github.com/clearskies/clearskies/internal/source"
)

const (
	// DefaultBaseURL is the Nominatim reverse endpoint.
	DefaultBaseURL = "https://nominatim.openstreetmap.org/reverse"

	// DataSourceNominatim and DataSourceCoordinates label where a Location came from.
	DataSourceNominatim   = "OpenStreetMap Nominatim"
	DataSourceCoordinates = "Coordinates only"
)

// ErrNoAddress is returned when Nominatim answers without an address.
var ErrNoAddress = errors.New("no address for coordinates")

// Location is a resolved place.
type Location struct {
	Lat                  float64 `json:"lat"`
	Lon                  float64 `json:"lon"`
	DisplayName          string  `json:"displayName"`
	City                 string  `json:"city,omitempty"`
	State                string  `json:"state,omitempty"`
	Country              string  `json:"country,omitempty"`
	CountryCode          string  `json:"countryCode,omitempty"`
	Postcode             string  `json:"postcode,omitempty"`
	Neighbourhood        string  `json:"neighbourhood,omitempty"`
	Road                 string  `json:"road,omitempty"`
	PrecisionMeters      int     `json:"precisionMeters"`
	PrecisionDescription string  `json:"precisionDescription"`
	Timezone             string  `json:"timezone"`
	CoordinatesFormatted string  `json:"coordinatesFormatted"`
	DataSource           string  `json:"dataSource"`
}

// EstimateTimezone approximates a UTC offset from longitude at 15 degrees per hour.
func EstimateTimezone(lon float64) string {
	offset := UTCOffsetHours(lon)
	switch {
	case offset > 0:
		return fmt.Sprintf("UTC+%d", offset)
	case offset < 0:
		return fmt.Sprintf("UTC%d", offset)
	default:
		return "UTC"
	}
}

// UTCOffsetHours is the whole-hour offset used by EstimateTimezone.
func UTCOffsetHours(lon float64) int {
	return int(lon / 15)
}

// EstimatedZone returns a fixed zone for the longitude's estimated offset.
func EstimatedZone(lon float64) *time.Location {
	offset := UTCOffsetHours(lon)
	return time.FixedZone(EstimateTimezone(lon), offset*3600)
}

// Fallback builds a coordinate-only location.
func Fallback(lat, lon float64) Location {
	return Location{
		Lat:                  lat,
		Lon:                  lon,
		DisplayName:          fmt.Sprintf("%.4f, %.4f", lat, lon),
		PrecisionMeters:      100,
		PrecisionDescription: "Approximate location",
		Timezone:             EstimateTimezone(lon),
		CoordinatesFormatted: formatCoordinates(lat, lon),
		DataSource:           DataSourceCoordinates,
	}
}

func formatCoordinates(lat, lon float64) string {
	return fmt.Sprintf("%.6f°, %.6f°", lat, lon)
}

// precisionMeters is the display precision of six-decimal coordinates at lat.
func precisionMeters(lat float64) int {
	metersPerDegree := 111320 * math.Cos(lat*math.Pi/180)
	p := int(metersPerDegree / 1e6 * 10)
	if p < 1 {
		return 1
	}
	return p
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig configures the Nominatim client.
type ClientConfig struct {
	BaseURL string

	// HTTPClient defaults to a resilient client that sets the
	// application User-Agent Nominatim requires.
	HTTPClient HTTPDoer
}

// Client queries Nominatim.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
}

// NewClient creates a Nominatim client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(source.Geocoding))
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

type reverseResponse struct {
	Address map[string]string `json:"address"`
}

// Reverse resolves coordinates to a Location.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (Location, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%f", lat))
	q.Set("lon", fmt.Sprintf("%f", lon))
	q.Set("format", "json")
	q.Set("zoom", "18")
	q.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return Location{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", resilience.DefaultUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var body reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Location{}, fmt.Errorf("decoding response: %w", err)
	}
	if len(body.Address) == 0 {
		return Location{}, ErrNoAddress
	}

	return toLocation(lat, lon, body.Address), nil
}

func firstOf(address map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := address[k]; v != "" {
			return v
		}
	}
	return ""
}

func toLocation(lat, lon float64, address map[string]string) Location {
	neighbourhood := firstOf(address, "neighbourhood", "suburb")
	city := firstOf(address, "city", "town", "village", "municipality")
	state := firstOf(address, "state", "region")
	country := address["country"]

	var parts []string
	for _, p := range []string{neighbourhood, city, state, country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	display := strings.Join(parts, ", ")
	if display == "" {
		display = fmt.Sprintf("%.4f, %.4f", lat, lon)
	}

	precision := precisionMeters(lat)
	return Location{
		Lat:                  lat,
		Lon:                  lon,
		DisplayName:          display,
		City:                 city,
		State:                state,
		Country:              country,
		CountryCode:          strings.ToUpper(address["country_code"]),
		Postcode:             address["postcode"],
		Neighbourhood:        neighbourhood,
		Road:                 address["road"],
		PrecisionMeters:      precision,
		PrecisionDescription: fmt.Sprintf("Accurate to ±%dm", precision),
		Timezone:             EstimateTimezone(lon),
		CoordinatesFormatted: formatCoordinates(lat, lon),
		DataSource:           DataSourceNominatim,
	}
}

// Reverser resolves coordinates.
type Reverser interface {
	Reverse(ctx context.Context, lat, lon float64) (Location, error)
}

// ServiceConfig configures the caching geocoding service.
type ServiceConfig struct {
	// Reverser is nil when geocoding is disabled.
	Reverser Reverser
	Observer *source.Observer
	Logger   zerolog.Logger

	// CacheTTL defaults to 24 hours; places rarely move.
	CacheTTL time.Duration
}

// Service caches reverse lookups and never fails.
type Service struct {
	reverser Reverser
	observer *source.Observer
	logger   zerolog.Logger
	ttl      time.Duration

	mu    sync.RWMutex
	cache map[string]cachedLocation
}

type cachedLocation struct {
	loc       Location
	expiresAt time.Time
}

// NewService creates a geocoding service.
func NewService(cfg ServiceConfig) *Service {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		reverser: cfg.Reverser,
		observer: cfg.Observer,
		logger:   cfg.Logger,
		ttl:      ttl,
		cache:    make(map[string]cachedLocation),
	}
}

// Resolve returns the place for the coordinates, or a coordinate-only
// fallback when lookup is disabled or fails.
func (s *Service) Resolve(ctx context.Context, lat, lon float64) Location {
	if s.reverser == nil {
		return Fallback(lat, lon)
	}

	key := fmt.Sprintf("%.3f:%.3f", lat, lon)
	s.mu.RLock()
	c, ok := s.cache[key]
	s.mu.RUnlock()
	if ok && time.Now().Before(c.expiresAt) {
		return c.loc
	}

	start := time.Now()
	loc, err := s.reverser.Reverse(ctx, lat, lon)
	s.observer.Observe(source.Geocoding, "reverse", start, err)
	if err != nil {
		return Fallback(lat, lon)
	}

	s.mu.Lock()
	s.cache[key] = cachedLocation{loc: loc, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()

	return loc
}
