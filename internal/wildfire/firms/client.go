// Package firms implements wildfire.Provider on the NASA FIRMS area API.
package firms

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang/geo/s2"

	"github.com/clearskies/clearskies/internal/provider/resilience"
	"github.com/clearskies/clearskies/internal/wildfire"
)

const (
	// ProviderName identifies this provider.
	ProviderName = "firms"

	// DefaultBaseURL is the FIRMS area API returning CSV.
	DefaultBaseURL = "https://firms.modaps.eosdis.nasa.gov/api/area/csv"

	// DefaultSource is the VIIRS instrument on Suomi NPP, near real time.
	DefaultSource = "VIIRS_SNPP_NRT"

	// DefaultDayRange covers the last 24 hours.
	DefaultDayRange = 1

	earthRadiusKm = 6371.0
	kmPerDegree   = 111.0
)

// ErrUnexpectedResponse is returned when the body is not a detection CSV.
// FIRMS answers an invalid key with 200 and a plain text message.
var ErrUnexpectedResponse = errors.New("unexpected FIRMS response")

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the FIRMS client.
type ClientConfig struct {
	// MapKey is the FIRMS MAP_KEY. Calls fail with wildfire.ErrNotConfigured
	// when it is empty.
	MapKey string

	BaseURL  string
	Source   string
	DayRange int

	// HTTPClient defaults to a resilient client without retries.
	HTTPClient HTTPDoer
}

// Client is a FIRMS area API client.
type Client struct {
	mapKey     string
	baseURL    string
	source     string
	dayRange   int
	httpClient HTTPDoer
}

// NewClient creates a FIRMS client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Source == "" {
		cfg.Source = DefaultSource
	}
	if cfg.DayRange <= 0 {
		cfg.DayRange = DefaultDayRange
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}
	return &Client{
		mapKey:     cfg.MapKey,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		source:     cfg.Source,
		dayRange:   cfg.DayRange,
		httpClient: cfg.HTTPClient,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// ActiveFires lists detections within radiusKm of (lat, lon), nearest first.
func (c *Client) ActiveFires(ctx context.Context, lat, lon, radiusKm float64) ([]wildfire.Fire, error) {
	if c.mapKey == "" {
		return nil, wildfire.ErrNotConfigured
	}

	west, south, east, north := BoundingBox(lat, lon, radiusKm)
	area := fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", west, south, east, north)
	endpoint := fmt.Sprintf("%s/%s/%s/%s/%d", c.baseURL, c.mapKey, c.source, area, c.dayRange)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	fires, err := parseCSV(resp.Body, lat, lon, radiusKm)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(fires, func(i, j int) bool { return fires[i].DistanceKm < fires[j].DistanceKm })
	return fires, nil
}

// BoundingBox returns the west, south, east and north edges of a box that
// contains the circle of radiusKm around (lat, lon).
func BoundingBox(lat, lon, radiusKm float64) (west, south, east, north float64) {
	dLat := radiusKm / kmPerDegree
	dLon := 180.0
	if c := math.Cos(lat * math.Pi / 180); c > 1e-6 {
		dLon = math.Min(180, radiusKm/(kmPerDegree*c))
	}
	return math.Max(-180, lon-dLon), math.Max(-90, lat-dLat), math.Min(180, lon+dLon), math.Min(90, lat+dLat)
}

func parseCSV(body io.Reader, lat, lon, radiusKm float64) ([]wildfire.Fire, error) {
	r := csv.NewReader(body)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return []wildfire.Fire{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	latCol, okLat := col["latitude"]
	lonCol, okLon := col["longitude"]
	if !okLat || !okLon {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedResponse, strings.Join(header, ","))
	}

	field := func(row []string, names ...string) string {
		for _, name := range names {
			if i, ok := col[name]; ok && i < len(row) {
				return strings.TrimSpace(row[i])
			}
		}
		return ""
	}

	fires := []wildfire.Fire{}
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading detections: %w", err)
		}
		if latCol >= len(row) || lonCol >= len(row) {
			continue
		}

		fireLat, errLat := strconv.ParseFloat(strings.TrimSpace(row[latCol]), 64)
		fireLon, errLon := strconv.ParseFloat(strings.TrimSpace(row[lonCol]), 64)
		if errLat != nil || errLon != nil {
			continue
		}

		distance := distanceKm(lat, lon, fireLat, fireLon)
		if distance > radiusKm {
			continue
		}

		brightness, _ := strconv.ParseFloat(field(row, "bright_ti4", "brightness"), 64)
		confidence := parseConfidence(field(row, "confidence"))

		fires = append(fires, wildfire.Fire{
			Lat:        fireLat,
			Lon:        fireLon,
			Brightness: brightness,
			Confidence: confidence,
			AcquiredAt: acquiredAt(field(row, "acq_date"), field(row, "acq_time")),
			Satellite:  field(row, "satellite"),
			DistanceKm: math.Round(distance*100) / 100,
			Severity:   wildfire.ClassifySeverity(brightness, confidence),
		})
	}
	return fires, nil
}

// parseConfidence accepts MODIS percentages and the VIIRS low, nominal and
// high classes.
func parseConfidence(v string) float64 {
	switch strings.ToLower(v) {
	case "l", "low":
		return 30
	case "n", "nominal":
		return 60
	case "h", "high":
		return 90
	}
	c, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return c
}

// acquiredAt combines acq_date (2006-01-02) and acq_time (HHMM, UTC).
func acquiredAt(date, hhmm string) time.Time {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}
	}
	n, err := strconv.Atoi(hhmm)
	if err != nil {
		return day
	}
	return day.Add(time.Duration(n/100)*time.Hour + time.Duration(n%100)*time.Minute)
}

func distanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	return s2.LatLngFromDegrees(lat1, lon1).Distance(s2.LatLngFromDegrees(lat2, lon2)).Radians() * earthRadiusKm
}
