package breathscore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clearskies/clearskies/internal/breathscore"
)

func ptr(v float64) *float64 { return &v }

func TestBase(t *testing.T) {
	tests := []struct {
		aqi  int
		want float64
	}{
		{0, 100},
		{50, 85},
		{100, 70},
		{150, 50},
		{200, 30},
		{300, 10},
		{500, 0},
		{700, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, breathscore.Base(tt.aqi), 1e-9, "aqi %d", tt.aqi)
	}
}

func TestPollutantPenalty(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]float64
		want   float64
	}{
		{"none", nil, 0},
		{"clean", map[string]float64{"pm25": 8, "o3": 40}, 0},
		{"pm25 moderate band", map[string]float64{"pm25": 22}, 1},
		{"pm25 high band", map[string]float64{"pm25": 40}, 1.38},
		{"ozone only above limit", map[string]float64{"o3": 80}, 2},
		{"co high band", map[string]float64{"co": 10}, 2},
		{"capped", map[string]float64{"pm25": 300, "co": 50}, breathscore.MaxPollutantPenalty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, breathscore.PollutantPenalty(tt.values), 1e-9)
		})
	}
}

func TestWildfirePenalty(t *testing.T) {
	assert.Zero(t, breathscore.WildfirePenalty(nil))
	assert.Equal(t, 30.0, breathscore.WildfirePenalty(ptr(5)))
	assert.Equal(t, 20.0, breathscore.WildfirePenalty(ptr(10)))
	assert.Equal(t, 12.0, breathscore.WildfirePenalty(ptr(49.9)))
	assert.Equal(t, 5.0, breathscore.WildfirePenalty(ptr(55.3)))
	assert.Zero(t, breathscore.WildfirePenalty(ptr(100)))
}

func TestWeatherModifier(t *testing.T) {
	assert.Zero(t, breathscore.WeatherModifier(nil, nil))
	assert.Equal(t, 2.0, breathscore.WeatherModifier(ptr(45), ptr(20)))
	assert.Equal(t, -3.0, breathscore.WeatherModifier(ptr(90), nil))
	assert.Equal(t, -5.0, breathscore.WeatherModifier(ptr(10), ptr(38)))
	assert.Equal(t, -2.0, breathscore.WeatherModifier(nil, ptr(-4)))
	assert.Zero(t, breathscore.WeatherModifier(ptr(72), ptr(18.5)))
}

func TestMaskFor(t *testing.T) {
	tests := []struct {
		score    float64
		rating   string
		required bool
	}{
		{100, breathscore.RatingExcellent, false},
		{89.5, breathscore.RatingGood, false},
		{74.9, breathscore.RatingModerate, false},
		{59.5, breathscore.RatingSensitive, true},
		{30, breathscore.RatingUnhealthy, true},
		{14.9, breathscore.RatingHazardous, true},
		{0, breathscore.RatingHazardous, true},
	}
	for _, tt := range tests {
		m := breathscore.MaskFor(tt.score)
		assert.Equal(t, tt.rating, m.Rating, "score %v", tt.score)
		assert.Equal(t, tt.required, m.Required, "score %v", tt.score)
	}
}

func TestCalculate(t *testing.T) {
	score := breathscore.Calculate(breathscore.Input{
		AQI:        112,
		Pollutants: map[string]float64{"pm25": 40},
	})

	assert.Equal(t, 63.8, score.Value)
	assert.Equal(t, breathscore.RatingModerate, score.Rating)
	assert.Equal(t, 65.2, score.Breakdown.Base)
	assert.Equal(t, 1.4, score.Breakdown.PollutantPenalty)
	assert.Zero(t, score.Breakdown.WildfirePenalty)
	assert.Zero(t, score.Breakdown.WeatherModifier)
	assert.Equal(t, []string{"Elevated fine particulate matter (PM2.5)"}, score.RiskFactors)
	assert.Equal(t, "Reduce prolonged exertion", score.OutdoorActivity.Level)
	assert.Equal(t, "Reduce prolonged outdoor exertion", score.AgeGuidance.Adults)
}

func TestCalculate_WildfireAndWeather(t *testing.T) {
	score := breathscore.Calculate(breathscore.Input{
		AQI:         40,
		WildfireKm:  ptr(8),
		Humidity:    ptr(85),
		Temperature: ptr(37),
	})

	// 88 - 30 - 3 - 2
	assert.Equal(t, 53.0, score.Value)
	assert.True(t, score.Mask.Required)
	assert.Contains(t, score.RiskFactors, "Active wildfire 8km away - smoke inhalation risk")
	assert.Contains(t, score.RiskFactors, "High humidity may worsen respiratory symptoms")
	assert.Contains(t, score.RiskFactors, "Heat stress - affects breathing capacity")
}

func TestCalculate_Clamped(t *testing.T) {
	clean := breathscore.Calculate(breathscore.Input{AQI: 0, Humidity: ptr(45)})
	assert.Equal(t, 100.0, clean.Value)
	assert.Equal(t, []string{"No significant respiratory risks detected"}, clean.RiskFactors)

	worst := breathscore.Calculate(breathscore.Input{AQI: 450, WildfireKm: ptr(1), Pollutants: map[string]float64{"pm25": 400}})
	assert.Zero(t, worst.Value)
	assert.Equal(t, breathscore.RatingHazardous, worst.Rating)
	assert.Equal(t, "Stay indoors", worst.OutdoorActivity.Level)
}
