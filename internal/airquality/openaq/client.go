// Package openaq provides a client for the OpenAQ v3 API.
package openaq

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang/geo/s2"

	"github.com/clearskies/clearskies/internal/airquality"
	"github.com/clearskies/clearskies/internal/aqi"
	"github.com/clearskies/clearskies/internal/provider/resilience"
)

const (
	// DefaultBaseURL is the base URL for the OpenAQ v3 API.
	DefaultBaseURL = "https://api.openaq.org/v3"

	// ProviderName identifies this provider.
	ProviderName = "openaq"

	// DefaultLimit is the page size for location searches.
	DefaultLimit = 100

	earthRadiusKm = 6371.0
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OpenAQ client.
type ClientConfig struct {
	BaseURL string

	// APIKey is sent as X-API-Key when set.
	APIKey string

	// HTTPClient defaults to a resilient client without retries.
	HTTPClient HTTPDoer

	// Limit is the maximum number of locations returned per search.
	Limit int
}

// Client is an OpenAQ v3 API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient HTTPDoer
	limit      int
}

// NewClient creates an OpenAQ client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}
	limit := cfg.Limit
	if limit == 0 {
		limit = DefaultLimit
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		limit:      limit,
	}
}

// API response types.

type locationsResponse struct {
	Results []locationData `json:"results"`
}

type locationData struct {
	ID          int          `json:"id"`
	Name        string       `json:"name"`
	Distance    *float64     `json:"distance"`
	Coordinates coordinates  `json:"coordinates"`
	Provider    namedEntity  `json:"provider"`
	Owner       namedEntity  `json:"owner"`
	Sensors     []sensorData `json:"sensors"`
}

type coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type namedEntity struct {
	Name string `json:"name"`
}

type sensorData struct {
	ID        int           `json:"id"`
	Parameter parameterData `json:"parameter"`
}

type parameterData struct {
	Name  string `json:"name"`
	Units string `json:"units"`
}

type latestResponse struct {
	Results []latestData `json:"results"`
}

type latestData struct {
	Datetime  datetime `json:"datetime"`
	Value     float64  `json:"value"`
	SensorsID int      `json:"sensorsId"`
}

type datetime struct {
	UTC string `json:"utc"`
}

type daysResponse struct {
	Results []dayData `json:"results"`
}

type dayData struct {
	Value     float64       `json:"value"`
	Parameter parameterData `json:"parameter"`
	Period    struct {
		DatetimeFrom datetime `json:"datetimeFrom"`
	} `json:"period"`
}

// NearbyStations lists monitoring locations within radiusMeters of (lat, lon).
func (c *Client) NearbyStations(ctx context.Context, lat, lon float64, radiusMeters int) ([]airquality.Station, error) {
	q := url.Values{}
	q.Set("coordinates", fmt.Sprintf("%.4f,%.4f", lat, lon))
	q.Set("radius", strconv.Itoa(radiusMeters))
	q.Set("limit", strconv.Itoa(c.limit))

	var result locationsResponse
	if err := c.get(ctx, "/locations?"+q.Encode(), &result); err != nil {
		return nil, fmt.Errorf("fetch locations: %w", err)
	}

	stations := make([]airquality.Station, 0, len(result.Results))
	for _, loc := range result.Results {
		stations = append(stations, toStation(loc, lat, lon))
	}
	return stations, nil
}

// LatestMeasurements returns the latest value of every supported sensor at a station.
func (c *Client) LatestMeasurements(ctx context.Context, station airquality.Station) ([]airquality.Measurement, error) {
	var result latestResponse
	if err := c.get(ctx, fmt.Sprintf("/locations/%d/latest", station.ID), &result); err != nil {
		return nil, fmt.Errorf("fetch latest for location %d: %w", station.ID, err)
	}

	measurements := make([]airquality.Measurement, 0, len(result.Results))
	for _, r := range result.Results {
		sensor, ok := station.Sensors[r.SensorsID]
		if !ok {
			continue
		}
		value, unit := normalizeUnit(sensor.Parameter, r.Value, sensor.Unit)
		measuredAt, _ := time.Parse(time.RFC3339, r.Datetime.UTC)
		measurements = append(measurements, airquality.Measurement{
			StationID:  station.ID,
			Parameter:  sensor.Parameter,
			Value:      value,
			Unit:       unit,
			MeasuredAt: measuredAt,
		})
	}
	return measurements, nil
}

// DailyMeans returns daily averages for one sensor between from and to.
func (c *Client) DailyMeans(ctx context.Context, sensorID int, from, to time.Time) ([]airquality.DailyMean, error) {
	q := url.Values{}
	q.Set("datetime_from", from.UTC().Format("2006-01-02"))
	q.Set("datetime_to", to.UTC().Format("2006-01-02"))
	q.Set("limit", strconv.Itoa(c.limit))

	var result daysResponse
	if err := c.get(ctx, fmt.Sprintf("/sensors/%d/days?%s", sensorID, q.Encode()), &result); err != nil {
		return nil, fmt.Errorf("fetch daily means for sensor %d: %w", sensorID, err)
	}

	means := make([]airquality.DailyMean, 0, len(result.Results))
	for _, d := range result.Results {
		date, err := time.Parse(time.RFC3339, d.Period.DatetimeFrom.UTC)
		if err != nil {
			continue
		}
		means = append(means, airquality.DailyMean{
			Date:  date.UTC().Truncate(24 * time.Hour),
			Value: d.Value,
			Unit:  d.Parameter.Units,
		})
	}
	return means, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// toStation converts an API location to a domain Station.
func toStation(loc locationData, qLat, qLon float64) airquality.Station {
	sensors := make(map[int]airquality.Sensor, len(loc.Sensors))
	for _, s := range loc.Sensors {
		if p, ok := aqi.ParseParameter(s.Parameter.Name); ok {
			sensors[s.ID] = airquality.Sensor{Parameter: p, Unit: s.Parameter.Units}
		}
	}

	distance := distanceKm(qLat, qLon, loc.Coordinates.Latitude, loc.Coordinates.Longitude)
	if loc.Distance != nil {
		distance = *loc.Distance / 1000
	}

	operator := loc.Provider.Name
	if operator == "" {
		operator = loc.Owner.Name
	}

	return airquality.Station{
		ID:         loc.ID,
		Name:       loc.Name,
		Operator:   operator,
		Lat:        loc.Coordinates.Latitude,
		Lon:        loc.Coordinates.Longitude,
		DistanceKm: distance,
		Sensors:    sensors,
	}
}

// normalizeUnit converts gas readings to ppb, the unit of the index tables.
// Particulates are left untouched.
func normalizeUnit(p aqi.Parameter, value float64, unit string) (float64, string) {
	if p != aqi.NO2 && p != aqi.O3 && p != aqi.SO2 {
		return value, unit
	}

	switch strings.ToLower(unit) {
	case "ppm":
		return value * 1000, "ppb"
	case "µg/m³", "ug/m3", "µg/m3":
		return value / ugPerPPB[p], "ppb"
	default:
		return value, unit
	}
}

// ugPerPPB holds µg/m³ per ppb at 25 °C and 1 atm.
var ugPerPPB = map[aqi.Parameter]float64{
	aqi.NO2: 1.88,
	aqi.O3:  1.96,
	aqi.SO2: 2.62,
}

func distanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	return s2.LatLngFromDegrees(lat1, lon1).Distance(s2.LatLngFromDegrees(lat2, lon2)).Radians() * earthRadiusKm
}
