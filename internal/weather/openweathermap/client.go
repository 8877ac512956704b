// Package openweathermap implements weather.Provider on the OpenWeatherMap 2.5 API.
package openweathermap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clearskies/clearskies/internal/provider/resilience"
	"github.com/clearskies/clearskies/internal/weather"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "openweathermap"

	// DefaultBaseURL is the OpenWeatherMap API base URL.
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5"
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OpenWeatherMap client.
type ClientConfig struct {
	// APIKey is the OpenWeatherMap API key. Calls fail with
	// weather.ErrNotConfigured when it is empty.
	APIKey string

	// BaseURL is the API base URL (optional, defaults to OpenWeatherMap API).
	BaseURL string

	// HTTPClient defaults to a resilient client without retries.
	HTTPClient HTTPDoer
}

// Client is an OpenWeatherMap API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
}

// NewClient creates a new OpenWeatherMap client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// GetCurrentWeather fetches current weather for a location.
func (c *Client) GetCurrentWeather(ctx context.Context, lat, lon float64) (*weather.Observation, error) {
	var resp currentWeatherResponse
	if err := c.get(ctx, "/weather", lat, lon, &resp); err != nil {
		return nil, err
	}
	return toObservation(&resp, time.Now()), nil
}

// GetForecast fetches up to five days of 3-hour forecast slots.
func (c *Client) GetForecast(ctx context.Context, lat, lon float64) (*weather.Forecast, error) {
	var resp forecastResponse
	if err := c.get(ctx, "/forecast", lat, lon, &resp); err != nil {
		return nil, err
	}
	return toForecast(&resp, lat, lon, time.Now()), nil
}

func (c *Client) get(ctx context.Context, path string, lat, lon float64, out any) error {
	if c.apiKey == "" {
		return weather.ErrNotConfigured
	}

	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.6f", lat))
	q.Set("lon", fmt.Sprintf("%.6f", lon))
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func toObservation(resp *currentWeatherResponse, now time.Time) *weather.Observation {
	obs := &weather.Observation{
		Lat:           resp.Coord.Lat,
		Lon:           resp.Coord.Lon,
		Temperature:   resp.Main.Temp,
		Humidity:      resp.Main.Humidity,
		Pressure:      resp.Main.Pressure,
		WindSpeed:     resp.Wind.Speed,
		WindDirection: resp.Wind.Deg,
		Visibility:    weather.DefaultVisibility,
		ObservedAt:    time.Unix(resp.Dt, 0).UTC(),
		FetchedAt:     now,
	}
	if resp.Visibility != nil {
		obs.Visibility = float64(*resp.Visibility)
	}

	obs.Condition, obs.Description = firstCondition(resp.Weather)
	return obs
}

func toForecast(resp *forecastResponse, lat, lon float64, now time.Time) *weather.Forecast {
	n := len(resp.List)
	if n > weather.MaxSlots {
		n = weather.MaxSlots
	}

	forecast := &weather.Forecast{
		Lat:       lat,
		Lon:       lon,
		Slots:     make([]weather.Slot, 0, n),
		FetchedAt: now,
	}

	for _, item := range resp.List[:n] {
		slot := weather.Slot{
			Time:        time.Unix(item.Dt, 0).UTC(),
			Temperature: item.Main.Temp,
			Humidity:    item.Main.Humidity,
			WindSpeed:   item.Wind.Speed,
			PrecipMM:    item.Rain.ThreeHour + item.Snow.ThreeHour,
			PrecipProb:  item.Pop,
		}
		slot.Condition, slot.Description = firstCondition(item.Weather)
		forecast.Slots = append(forecast.Slots, slot)
	}

	return forecast
}

func firstCondition(conditions []conditionEntry) (weather.Condition, string) {
	if len(conditions) == 0 {
		return weather.ConditionUnknown, ""
	}
	return mapCondition(conditions[0].Main), conditions[0].Description
}

// mapCondition maps OpenWeatherMap condition to domain condition.
func mapCondition(owmCondition string) weather.Condition {
	switch owmCondition {
	case "Clear":
		return weather.ConditionClear
	case "Clouds":
		return weather.ConditionClouds
	case "Rain":
		return weather.ConditionRain
	case "Drizzle":
		return weather.ConditionDrizzle
	case "Thunderstorm":
		return weather.ConditionThunderstorm
	case "Snow":
		return weather.ConditionSnow
	case "Mist":
		return weather.ConditionMist
	case "Fog":
		return weather.ConditionFog
	case "Haze", "Dust", "Sand", "Ash", "Squall", "Tornado", "Smoke":
		return weather.ConditionHaze
	default:
		return weather.ConditionUnknown
	}
}

// OpenWeatherMap API response structures.

type conditionEntry struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}

type currentWeatherResponse struct {
	Coord struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Weather []conditionEntry `json:"weather"`
	Main    struct {
		Temp     float64 `json:"temp"`
		Pressure float64 `json:"pressure"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Visibility *int `json:"visibility"`
	Wind       struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Dt int64 `json:"dt"`
}

type volume struct {
	ThreeHour float64 `json:"3h"`
}

type forecastResponse struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp     float64 `json:"temp"`
			Humidity float64 `json:"humidity"`
		} `json:"main"`
		Weather []conditionEntry `json:"weather"`
		Wind    struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
		Pop  float64 `json:"pop"`
		Rain volume  `json:"rain"`
		Snow volume  `json:"snow"`
	} `json:"list"`
}
