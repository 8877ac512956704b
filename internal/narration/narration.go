// Package narration turns computed dashboard data into plain-language text
// through a hosted language model, with deterministic fallbacks for every
// section so a dashboard never depends on the model being reachable.
package narration

import (
	"context"
	"errors"

	"github.com/clearskies/clearskies/internal/alerts"
	"github.com/clearskies/clearskies/internal/aqi"
	"github.com/clearskies/clearskies/internal/breathscore"
	"github.com/clearskies/clearskies/internal/forecast"
	"github.com/clearskies/clearskies/internal/geocode"
	"github.com/clearskies/clearskies/internal/historical"
	"github.com/clearskies/clearskies/internal/source"
	"github.com/clearskies/clearskies/internal/weather"
	"github.com/clearskies/clearskies/internal/wildfire"
)

var (
	// ErrRateLimited is returned when the local budget or the provider refuses a call.
	ErrRateLimited = errors.New("narration rate limited")
	// ErrNotConfigured is returned when no model is configured.
	ErrNotConfigured = errors.New("narration not configured")
	// ErrMalformedResponse is returned when the model answer is not the expected JSON.
	ErrMalformedResponse = errors.New("malformed narration response")
)

// Narrator is a text generation model.
type Narrator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Section names, in payload order. They are also the JSON keys the model is
// asked to produce.
const (
	SectionAQI        = "aqi_summary"
	SectionSources    = "sources_summary"
	SectionWeather    = "weather_summary"
	SectionForecast   = "forecast_summary"
	SectionHistorical = "historical_summary"
	SectionAlerts     = "alerts_summary"
)

// SectionNames lists every batched section.
var SectionNames = []string{
	SectionAQI, SectionSources, SectionWeather,
	SectionForecast, SectionHistorical, SectionAlerts,
}

// Input is the fully computed data a narration is written about.
type Input struct {
	Location   geocode.Location
	AQI        aqi.Result
	Pollutants map[string]float64
	// Weather is nil when the weather source was unavailable.
	Weather    *weather.Observation
	Sources    []source.Availability
	Forecast   forecast.Result
	Historical historical.Result
	Alerts     alerts.Result

	// BreathScore is nil when the caller did not compute one.
	BreathScore *breathscore.Score
	// NearestFire is nil when no active fire was detected nearby.
	NearestFire *wildfire.Fire
}

type AQISummary struct {
	Brief          string `json:"brief"`
	Detailed       string `json:"detailed"`
	Recommendation string `json:"recommendation"`
	Insight        string `json:"insight"`
}

type SourcesSummary struct {
	Brief       string `json:"brief"`
	Detailed    string `json:"detailed"`
	Validation  string `json:"validation"`
	DataQuality string `json:"dataQuality"`
}

type WeatherSummary struct {
	Brief    string `json:"brief"`
	Detailed string `json:"detailed"`
	Impact   string `json:"impact"`
	UVAlert  string `json:"uvAlert"`
}

type ForecastSummary struct {
	Brief           string   `json:"brief"`
	Detailed        string   `json:"detailed"`
	Recommendations []string `json:"recommendations"`
	KeyInsights     string   `json:"keyInsights"`
}

type HistoricalSummary struct {
	Brief          string `json:"brief"`
	Detailed       string `json:"detailed"`
	TrendAnalysis  string `json:"trendAnalysis"`
	WeeklyInsight  string `json:"weeklyInsight"`
	Recommendation string `json:"recommendation"`
}

type AlertsSummary struct {
	Brief          string `json:"brief"`
	Detailed       string `json:"detailed"`
	RiskLevel      string `json:"riskLevel"`
	ActionRequired string `json:"actionRequired"`
	NextUpdate     string `json:"nextUpdate"`
}

// Sections holds one narration per dashboard block.
type Sections struct {
	AQI        AQISummary
	Sources    SourcesSummary
	Weather    WeatherSummary
	Forecast   ForecastSummary
	Historical HistoricalSummary
	Alerts     AlertsSummary

	// Generated and Fallback partition SectionNames by origin.
	Generated []string
	Fallback  []string
}

// TimeWindow is a stretch of the day with a recommendation.
type TimeWindow struct {
	Start          string `json:"start"`
	End            string `json:"end"`
	AQI            int    `json:"aqi"`
	SafeFor        string `json:"safe_for"`
	Recommendation string `json:"recommendation"`
}

type RiskAssessment struct {
	Level          string   `json:"level"`
	AffectedGroups []string `json:"affected_groups"`
	SpecificRisks  string   `json:"specific_risks"`
}

type DataConfidence struct {
	Level       string `json:"level"`
	Explanation string `json:"explanation"`
}

// PersonaInsights is guidance written for one persona.
type PersonaInsights struct {
	Persona         PersonaType    `json:"persona"`
	ImmediateAction string         `json:"immediate_action"`
	TimeWindows     []TimeWindow   `json:"time_windows"`
	RiskAssessment  RiskAssessment `json:"risk_assessment"`
	Recommendations []string       `json:"recommendations"`
	Context         string         `json:"context"`
	Comparative     string         `json:"comparative"`
	DataConfidence  DataConfidence `json:"data_confidence"`
	KeyInsight      string         `json:"key_insight"`
	AIGenerated     bool           `json:"ai_generated"`
}

// LiveReport is a short news-style report for a location.
type LiveReport struct {
	Persona           PersonaType `json:"persona"`
	Headline          string      `json:"headline"`
	CurrentConditions string      `json:"current_conditions"`
	LocalAlerts       string      `json:"local_alerts"`
	HealthAdvisory    string      `json:"health_advisory"`
	TrendingInfo      string      `json:"trending_info"`
	Recommendations   []string    `json:"recommendations"`
	Sources           string      `json:"sources"`
	NextUpdate        string      `json:"next_update"`
	AIGenerated       bool        `json:"ai_generated"`
}
