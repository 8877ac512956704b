package dashboard

import (
	"time"

	"github.com/clearskies/clearskies/internal/alerts"
	"github.com/clearskies/clearskies/internal/aqi"
	"github.com/clearskies/clearskies/internal/breathscore"
	"github.com/clearskies/clearskies/internal/forecast"
	"github.com/clearskies/clearskies/internal/geocode"
	"github.com/clearskies/clearskies/internal/historical"
	"github.com/clearskies/clearskies/internal/narration"
	"github.com/clearskies/clearskies/internal/source"
	"github.com/clearskies/clearskies/internal/wildfire"
)

// Block pairs the computed data of one dashboard section with its narration.
type Block[R, S any] struct {
	Raw       R `json:"raw"`
	AISummary S `json:"aiSummary"`
}

// Payload is the full dashboard response.
type Payload struct {
	Location          geocode.Location                                      `json:"location"`
	CurrentAQI        Block[CurrentAQI, narration.AQISummary]               `json:"currentAQI"`
	DataSources       Block[Sources, narration.SourcesSummary]              `json:"dataSources"`
	Weather           Block[Weather, narration.WeatherSummary]              `json:"weather"`
	Forecast          Block[forecast.Result, narration.ForecastSummary]     `json:"forecast24h"`
	Historical        Block[historical.Result, narration.HistoricalSummary] `json:"historical7d"`
	HealthAlerts      Block[alerts.Result, narration.AlertsSummary]         `json:"healthAlerts"`
	Wildfires         wildfire.Result                                       `json:"wildfires"`
	Insights          Insights                                              `json:"insights"`
	PersonaInsights   *narration.PersonaInsights                            `json:"personaInsights,omitempty"`
	LiveWeatherReport *narration.LiveReport                                 `json:"liveWeatherReport,omitempty"`
	Metadata          Metadata                                              `json:"metadata"`
}

// PollutantDetail describes one measured pollutant.
type PollutantDetail struct {
	Value        float64 `json:"value"`
	Unit         string  `json:"unit"`
	Name         string  `json:"name"`
	FullName     string  `json:"fullName"`
	AQI          int     `json:"aqi"`
	Level        string  `json:"level"`
	Color        string  `json:"color"`
	StationCount int     `json:"stationCount"`
	Source       string  `json:"source"`
}

// CurrentAQI is the raw current-conditions block.
type CurrentAQI struct {
	AQI               int                               `json:"aqi"`
	Category          aqi.Category                      `json:"category"`
	Level             string                            `json:"level"`
	Color             string                            `json:"color"`
	HealthMessage     string                            `json:"healthMessage"`
	DominantPollutant aqi.Parameter                     `json:"dominantPollutant"`
	Pollutants        map[aqi.Parameter]float64         `json:"pollutants"`
	PollutantDetails  map[aqi.Parameter]PollutantDetail `json:"pollutantDetails"`
	BreathScore       breathscore.Score                 `json:"breathScore"`
	LastUpdated       time.Time                         `json:"lastUpdated"`
}

// SatelliteSource is the satellite entry of the source comparison.
type SatelliteSource struct {
	source.Availability
	AQI               int       `json:"aqi"`
	NO2Column         float64   `json:"no2Column"`
	NO2PPB            float64   `json:"no2Ppb"`
	Unit              string    `json:"unit,omitempty"`
	Product           string    `json:"product,omitempty"`
	DistanceKm        float64   `json:"distanceKm"`
	Coverage          string    `json:"coverage"`
	SpatialResolution string    `json:"spatialResolution"`
	ObservedAt        time.Time `json:"observedAt,omitzero"`
}

// Station is the nearest ground station as reported to clients.
type Station struct {
	Name       string  `json:"name"`
	Operator   string  `json:"operator,omitempty"`
	DistanceKm float64 `json:"distanceKm"`
}

// GroundSource is the ground-sensor entry of the source comparison.
type GroundSource struct {
	source.Availability
	AQI            int       `json:"aqi"`
	StationCount   int       `json:"stationCount"`
	NearestStation *Station  `json:"nearestStation,omitempty"`
	LatestAt       time.Time `json:"latestAt,omitzero"`
}

// Weights are the declared blend weights. They are reported for display only;
// the aggregated index is the maximum pollutant index.
type Weights struct {
	Satellite float64 `json:"satellite"`
	Ground    float64 `json:"ground"`
}

// Aggregated describes how the sources were combined.
type Aggregated struct {
	AQI               int      `json:"aqi"`
	Method            string   `json:"method"`
	Weights           Weights  `json:"weights"`
	WeightsDecorative bool     `json:"weightsDecorative"`
	Confidence        float64  `json:"confidence"`
	SourcesUsed       []string `json:"sourcesUsed"`
}

// Sources is the raw source-comparison block.
type Sources struct {
	Satellite  SatelliteSource     `json:"tempo"`
	Ground     GroundSource        `json:"ground"`
	Weather    source.Availability `json:"weather"`
	Aggregated Aggregated          `json:"aggregated"`
}

// Weather is the raw weather block. Fields are zero when Available is false.
type Weather struct {
	Available     bool      `json:"available"`
	Reason        string    `json:"reason,omitempty"`
	Temperature   float64   `json:"temperature"`
	Humidity      float64   `json:"humidity"`
	Pressure      float64   `json:"pressure"`
	WindSpeed     float64   `json:"windSpeed"`
	WindDirection float64   `json:"windDirection"`
	Conditions    string    `json:"conditions"`
	Description   string    `json:"description"`
	Visibility    float64   `json:"visibility"`
	ObservedAt    time.Time `json:"observedAt,omitzero"`
}

// Change compares the current index against an earlier day.
type Change struct {
	Available  bool              `json:"available"`
	Change     int               `json:"change"`
	Direction  string            `json:"direction"`
	Percentage float64           `json:"percentage"`
	Text       string            `json:"text"`
	Provenance source.Provenance `json:"provenance,omitempty"`
}

// Comparative holds the day-over-day and week-over-week changes.
type Comparative struct {
	VsYesterday Change `json:"vsYesterday"`
	VsLastWeek  Change `json:"vsLastWeek"`
}

// Insights are derived comparisons and tips.
type Insights struct {
	Comparative   Comparative `json:"comparative"`
	Tips          []string    `json:"personalizedTips"`
	NextMilestone string      `json:"nextMilestone"`
}

// NarrationMeta reports which narration sections were generated.
type NarrationMeta struct {
	Generated []string              `json:"generated"`
	Fallback  []string              `json:"fallback"`
	Persona   narration.PersonaType `json:"persona"`
}

// Metadata describes how the payload was produced.
type Metadata struct {
	APIVersion       string        `json:"apiVersion"`
	GeneratedAt      time.Time     `json:"generatedAt"`
	ProcessingTimeMs int64         `json:"processingTime"`
	CacheStatus      string        `json:"cacheStatus"`
	DataCompleteness float64       `json:"dataCompleteness"`
	NextUpdate       time.Time     `json:"nextUpdate"`
	DataSourcesUsed  []string      `json:"dataSourcesUsed"`
	DeviceID         string        `json:"deviceId,omitempty"`
	Narration        NarrationMeta `json:"narration"`
}

// CurrentResponse is returned by Aggregator.Current.
type CurrentResponse struct {
	Location   geocode.Location `json:"location"`
	CurrentAQI CurrentAQI       `json:"currentAQI"`
	Sources    Sources          `json:"dataSources"`
	Timestamp  time.Time        `json:"timestamp"`
}
