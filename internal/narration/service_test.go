package narration_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/clearskies/clearskies/internal/alerts"
	"github.com/clearskies/clearskies/internal/aqi"
	"github.com/clearskies/clearskies/internal/breathscore"
	"github.com/clearskies/clearskies/internal/forecast"
	"github.com/clearskies/clearskies/internal/geocode"
	"github.com/clearskies/clearskies/internal/historical"
	"github.com/clearskies/clearskies/internal/narration"
	"github.com/clearskies/clearskies/internal/source"
	"github.com/clearskies/clearskies/internal/weather"
	"github.com/clearskies/clearskies/internal/wildfire"
)

type fakeNarrator struct {
	calls   atomic.Int32
	mu      sync.Mutex
	prompts []string
	answer  func(prompt string) (string, error)
}

func (f *fakeNarrator) Generate(_ context.Context, prompt string) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.answer(prompt)
}

func reply(text string) func(string) (string, error) {
	return func(string) (string, error) { return text, nil }
}

type cacheCounter struct {
	hits, misses atomic.Int32
}

func (c *cacheCounter) RecordCacheHit(string, string)  { c.hits.Add(1) }
func (c *cacheCounter) RecordCacheMiss(string, string) { c.misses.Add(1) }

var now = time.Date(2025, 10, 1, 18, 0, 0, 0, time.UTC)

func sampleInput() narration.Input {
	result := aqi.Result{Index: 112, Category: aqi.UnhealthyForSensitiveGroups, DominantParameter: aqi.PM25}
	return narration.Input{
		Location: geocode.Location{
			Lat: 37.7749, Lon: -122.4194,
			DisplayName: "Mission District, San Francisco, California, United States",
			City:        "San Francisco",
		},
		AQI:        result,
		Pollutants: map[string]float64{"pm25": 40},
		Weather:    &weather.Observation{Temperature: 18.5, Humidity: 70, WindSpeed: 4.2, Description: "few clouds"},
		Sources: []source.Availability{
			source.Available(source.Satellite, source.SatelliteConfidence, now),
			source.Available(source.GroundSensor, source.GroundConfidence, now),
			source.Unavailable(source.Weather, source.ReasonTimeout, now),
		},
		Forecast: forecast.Result{
			Hours: 24,
			Mode:  forecast.ModeLive,
			Summary: forecast.Summary{
				Best:  forecast.Extreme{Timestamp: now.Add(16 * time.Hour), AQI: 78, Hour: "02 AM"},
				Worst: forecast.Extreme{Timestamp: now.Add(22 * time.Hour), AQI: 145, Hour: "08 AM"},
				Trend: forecast.TrendStable,
			},
		},
		Historical: historical.Result{
			Days: 7,
			Statistics: historical.Statistics{
				Average: 64,
				Trend:   historical.Trend{Direction: historical.DirectionImproving, Percentage: -12.5, Magnitude: 12.5},
			},
		},
		Alerts: alerts.Generate(result.Index, now),
	}
}

const fullAnswer = "```json\n" + `{
  "aqi_summary": {"brief": "Hazy but okay.", "detailed": "d", "recommendation": "r", "insight": "i"},
  "sources_summary": {"brief": "Two sources agree.", "detailed": "d", "validation": "v", "dataQuality": "q"},
  "weather_summary": {"brief": "Mild and breezy.", "detailed": "d", "impact": "i", "uvAlert": "u"},
  "forecast_summary": {"brief": "Better tonight.", "detailed": "d", "recommendations": ["a", "b"], "keyInsights": "k"},
  "historical_summary": {"brief": "Cleaner week.", "detailed": "d", "trendAnalysis": "t", "weeklyInsight": "w", "recommendation": "r"},
  "alerts_summary": {"brief": "One advisory.", "detailed": "d", "riskLevel": "r", "actionRequired": "a", "nextUpdate": "n"}
}` + "\n```"

func newService(n narration.Narrator, opts ...func(*narration.Config)) *narration.Service {
	cfg := narration.Config{Logger: zerolog.New(io.Discard)}
	if n != nil {
		cfg.Narrator = n
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return narration.NewService(cfg)
}

func TestService_Sections_AllGenerated(t *testing.T) {
	svc := newService(&fakeNarrator{answer: reply(fullAnswer)})

	s := svc.Sections(context.Background(), sampleInput())

	assert.Equal(t, narration.SectionNames, s.Generated)
	assert.Empty(t, s.Fallback)
	assert.Equal(t, "Hazy but okay.", s.AQI.Brief)
	assert.Equal(t, []string{"a", "b"}, s.Forecast.Recommendations)
	assert.Equal(t, "n", s.Alerts.NextUpdate)
}

func TestService_Sections_PartialFallback(t *testing.T) {
	answer := `{"aqi_summary": {"brief": "Fine."}, "weather_summary": "not an object", "alerts_summary": {"brief": ""}}`
	svc := newService(&fakeNarrator{answer: reply(answer)})

	s := svc.Sections(context.Background(), sampleInput())

	assert.Equal(t, []string{narration.SectionAQI}, s.Generated)
	assert.Equal(t, []string{
		narration.SectionSources, narration.SectionWeather, narration.SectionForecast,
		narration.SectionHistorical, narration.SectionAlerts,
	}, s.Fallback)
	assert.Equal(t, "Fine.", s.AQI.Brief)
	assert.Equal(t, "Current temperature is 18.5°C with winds at 4.2 m/s.", s.Weather.Brief)
	assert.Equal(t, "1 active alert for current air quality conditions.", s.Alerts.Brief)
}

func TestService_Sections_FallbackOnFailure(t *testing.T) {
	tests := []struct {
		name     string
		narrator narration.Narrator
	}{
		{"not configured", nil},
		{"call fails", &fakeNarrator{answer: func(string) (string, error) { return "", errors.New("boom") }}},
		{"not json", &fakeNarrator{answer: reply("I cannot help with that.")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(tt.narrator)
			s := svc.Sections(context.Background(), sampleInput())

			assert.Empty(t, s.Generated)
			assert.Equal(t, narration.SectionNames, s.Fallback)
			assert.Equal(t, "Air quality is unhealthy for sensitive groups with AQI of 112.", s.AQI.Brief)
			assert.Equal(t, "Check current conditions before outdoor activities.", s.AQI.Recommendation)
			assert.Equal(t, "Moderate for sensitive groups", s.Alerts.RiskLevel)
		})
	}
}

func TestService_Sections_BreathScoreAndFire(t *testing.T) {
	fake := &fakeNarrator{answer: reply(fullAnswer)}
	svc := newService(fake)

	in := sampleInput()
	score := breathscore.Calculate(breathscore.Input{AQI: 180})
	in.BreathScore = &score
	in.NearestFire = &wildfire.Fire{DistanceKm: 22.4, Severity: wildfire.SeverityHigh}

	svc.Sections(context.Background(), in)
	require.Len(t, fake.prompts, 1)
	assert.Contains(t, fake.prompts[0], "Breath quality score: 38.0/100 (Unhealthy), mask: N95 mask (properly fitted)")
	assert.Contains(t, fake.prompts[0], "Nearest active fire: 22 km away (high severity)")

	fallback := narration.FallbackSections(in)
	assert.Equal(t, "Check current conditions before outdoor activities. "+
		"Air quality poor. N95 mask required for outdoor activities. "+
		"An active fire is 22 km away; watch for smoke.", fallback.AQI.Recommendation)
}

func TestService_RateLimitedCallsFallBack(t *testing.T) {
	fake := &fakeNarrator{answer: reply(fullAnswer)}
	svc := newService(fake, func(c *narration.Config) {
		c.Limiter = rate.NewLimiter(rate.Every(time.Hour), 1)
	})

	first := svc.Sections(context.Background(), sampleInput())
	in := sampleInput()
	in.AQI.Index = 113
	second := svc.Sections(context.Background(), in)

	assert.Len(t, first.Generated, 6)
	assert.Empty(t, second.Generated)
	assert.Equal(t, int32(1), fake.calls.Load())
}

func TestService_CacheReusesAnswers(t *testing.T) {
	fake := &fakeNarrator{answer: reply(fullAnswer)}
	counter := &cacheCounter{}
	svc := newService(fake, func(c *narration.Config) {
		c.Cache = narration.NewMemoryCache()
		c.Metrics = counter
	})

	for i := 0; i < 3; i++ {
		s := svc.Sections(context.Background(), sampleInput())
		require.Len(t, s.Generated, 6)
	}

	assert.Equal(t, int32(1), fake.calls.Load())
	assert.Equal(t, int32(2), counter.hits.Load())
	assert.Equal(t, int32(1), counter.misses.Load())
}

func TestService_PersonaInsights(t *testing.T) {
	answer := `Here you go: {"immediate_action": "Move practice indoors.", "recommendations": ["Hold PE in the gym"], "risk_assessment": {"affected_groups": ["students"]}}`
	svc := newService(&fakeNarrator{answer: reply(answer)})

	v := svc.PersonaInsights(context.Background(), narration.PersonaSchool, sampleInput())

	assert.True(t, v.AIGenerated)
	assert.Equal(t, narration.PersonaSchool, v.Persona)
	assert.Equal(t, "Move practice indoors.", v.ImmediateAction)
	assert.Equal(t, narration.RiskHigh, v.RiskAssessment.Level)
}

func TestFallbackPersonaInsights(t *testing.T) {
	in := sampleInput()

	school := narration.FallbackPersonaInsights(narration.PersonaSchool, in)
	assert.False(t, school.AIGenerated)
	assert.Equal(t, "Consider moving outdoor activities indoors. Air quality exceeds safe threshold for students.", school.ImmediateAction)
	assert.Len(t, school.Recommendations, 4)
	assert.Equal(t, narration.RiskHigh, school.RiskAssessment.Level)
	assert.Equal(t, "Air quality is better than recent patterns.", school.Comparative)

	require.Len(t, school.TimeWindows, 1)
	window := school.TimeWindows[0]
	assert.Equal(t, "02 AM", window.Start)
	assert.Equal(t, "05 AM", window.End)
	assert.Equal(t, 78, window.AQI)

	in.AQI = aqi.Result{Index: 42, Category: aqi.Good}
	vulnerable := narration.FallbackPersonaInsights(narration.PersonaVulnerable, in)
	assert.Equal(t, "Air quality is safe for outdoor activities.", vulnerable.ImmediateAction)
	assert.Equal(t, narration.RiskLow, vulnerable.RiskAssessment.Level)

	in.AQI = aqi.Result{Index: 160, Category: aqi.Unhealthy}
	in.Historical.Statistics.Trend.Direction = historical.DirectionWorsening
	parks := narration.FallbackPersonaInsights(narration.PersonaParks, in)
	assert.Equal(t, "Air quality is unhealthy. Limit outdoor activities.", parks.ImmediateAction)
	assert.Equal(t, "Air quality is similar to recent patterns.", parks.Comparative)
}

func TestService_LiveReport(t *testing.T) {
	svc := newService(nil)

	v := svc.LiveReport(context.Background(), narration.PersonaParks, sampleInput())

	assert.False(t, v.AIGenerated)
	assert.Equal(t, "Air quality in San Francisco is unhealthy for sensitive groups", v.Headline)
	assert.Contains(t, v.HealthAdvisory, "Parks/Recreation Coordinator")
}

func TestService_Narrate(t *testing.T) {
	fake := &fakeNarrator{answer: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "local news reporter"):
			return `{"headline": "Haze over the city"}`, nil
		case strings.Contains(prompt, "WHO YOU'RE HELPING"):
			return `{"immediate_action": "Keep windows closed."}`, nil
		default:
			return fullAnswer, nil
		}
	}}
	svc := newService(fake)

	t.Run("default persona", func(t *testing.T) {
		sections, insights, report := svc.Narrate(context.Background(), narration.PersonaGeneral, sampleInput())
		assert.Len(t, sections.Generated, 6)
		assert.Nil(t, insights)
		assert.Nil(t, report)
	})

	t.Run("specific persona", func(t *testing.T) {
		sections, insights, report := svc.Narrate(context.Background(), narration.PersonaEldercare, sampleInput())
		assert.Len(t, sections.Generated, 6)
		require.NotNil(t, insights)
		require.NotNil(t, report)
		assert.Equal(t, "Keep windows closed.", insights.ImmediateAction)
		assert.Equal(t, "Haze over the city", report.Headline)
	})
}

func TestSectionsPrompt(t *testing.T) {
	prompt, err := narration.SectionsPrompt(sampleInput())
	require.NoError(t, err)

	assert.Contains(t, prompt, "Mission District, San Francisco")
	assert.Contains(t, prompt, "AQI 112 (unhealthy-sensitive)")
	assert.Contains(t, prompt, "openweather: unavailable (timeout)")
	for _, name := range narration.SectionNames {
		assert.Contains(t, prompt, `"`+name+`"`)
	}

	only, err := narration.SectionsPrompt(sampleInput(), narration.SectionAQI)
	require.NoError(t, err)
	assert.NotContains(t, only, `"alerts_summary"`)
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, narration.StripFences(tt.in))
	}
}
