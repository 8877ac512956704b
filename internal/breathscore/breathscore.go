// Package breathscore rates how comfortable the air is to breathe on a 0-100
// scale, where 100 is clean air and 0 is hazardous, and turns the score into
// mask, activity and age group guidance.
package breathscore

import (
	"fmt"
	"math"
)

// MaxPollutantPenalty caps the points removed for individual pollutants.
const MaxPollutantPenalty = 40

// Ratings.
const (
	RatingExcellent     = "Excellent"
	RatingGood          = "Good"
	RatingModerate      = "Moderate"
	RatingSensitive     = "Unhealthy for Sensitive Groups"
	RatingUnhealthy     = "Unhealthy"
	RatingVeryUnhealthy = "Very Unhealthy"
	RatingHazardous     = "Hazardous"
)

// Input is what a score is computed from. Pollutants are keyed by parameter
// name (pm25, pm10, no2, o3, co, so2) in the units the ground sensors report.
type Input struct {
	AQI        int
	Pollutants map[string]float64

	// WildfireKm is the distance to the closest active fire, nil when none is known.
	WildfireKm *float64

	// Humidity (percent) and Temperature (°C) are nil when weather is unavailable.
	Humidity    *float64
	Temperature *float64
}

// Mask is the protection recommended for a score.
type Mask struct {
	Required bool   `json:"required"`
	Type     string `json:"type"`
	Rating   string `json:"rating"`
	Message  string `json:"message"`
	Color    string `json:"color"`
}

// Breakdown shows how the score was assembled.
type Breakdown struct {
	Base             float64 `json:"baseScore"`
	PollutantPenalty float64 `json:"pollutantPenalty"`
	WildfirePenalty  float64 `json:"wildfirePenalty"`
	WeatherModifier  float64 `json:"weatherModifier"`
}

// AgeGuidance holds advice per group.
type AgeGuidance struct {
	Children  string `json:"children"`
	Adults    string `json:"adults"`
	Seniors   string `json:"seniors"`
	Sensitive string `json:"sensitive"`
}

// Activity is outdoor activity guidance.
type Activity struct {
	Level     string `json:"level"`
	Duration  string `json:"duration"`
	Intensity string `json:"intensity"`
	Message   string `json:"message"`
	Color     string `json:"color"`
}

// Score is a computed breath score.
type Score struct {
	Value           float64     `json:"score"`
	Rating          string      `json:"rating"`
	Mask            Mask        `json:"mask"`
	Breakdown       Breakdown   `json:"breakdown"`
	RiskFactors     []string    `json:"riskFactors"`
	AgeGuidance     AgeGuidance `json:"ageGuidance"`
	OutdoorActivity Activity    `json:"outdoorActivity"`
}

// Calculate scores in. The result is clamped to [0, 100] and rounded to one
// decimal.
func Calculate(in Input) Score {
	base := Base(in.AQI)
	pollutants := PollutantPenalty(in.Pollutants)
	wildfire := WildfirePenalty(in.WildfireKm)
	weather := WeatherModifier(in.Humidity, in.Temperature)

	value := round1(clamp(base-pollutants-wildfire+weather, 0, 100))
	mask := MaskFor(value)

	return Score{
		Value:  value,
		Rating: mask.Rating,
		Mask:   mask,
		Breakdown: Breakdown{
			Base:             round1(base),
			PollutantPenalty: round1(pollutants),
			WildfirePenalty:  wildfire,
			WeatherModifier:  weather,
		},
		RiskFactors:     riskFactors(in),
		AgeGuidance:     ageGuidance(value),
		OutdoorActivity: activity(value),
	}
}

// Base maps an AQI onto the inverted 0-100 scale, piecewise per category.
func Base(index int) float64 {
	a := float64(index)
	switch {
	case a <= 50:
		return 100 - a/50*15
	case a <= 100:
		return 85 - (a-50)/50*15
	case a <= 150:
		return 70 - (a-100)/50*20
	case a <= 200:
		return 50 - (a-150)/50*20
	case a <= 300:
		return 30 - (a-200)/100*20
	default:
		return math.Max(0, 10-(a-300)/200*10)
	}
}

// penaltyRule charges highRate points per unit above high, or lowRate points
// per unit above low for concentrations between the two.
type penaltyRule struct {
	param          string
	low, lowRate   float64
	high, highRate float64
}

var penaltyRules = []penaltyRule{
	{param: "pm25", low: 12.0, lowRate: 0.1, high: 35.4, highRate: 0.3},
	{param: "pm10", low: 54, lowRate: 0.05, high: 154, highRate: 0.2},
	{param: "no2", low: 53, lowRate: 0.05, high: 100, highRate: 0.15},
	{param: "o3", low: 70, lowRate: 0, high: 70, highRate: 0.2},
	{param: "co", low: 4.4, lowRate: 0.5, high: 9, highRate: 2.0},
	{param: "so2", low: 75, lowRate: 0, high: 75, highRate: 0.25},
}

// PollutantPenalty sums the per-pollutant penalties, capped at MaxPollutantPenalty.
func PollutantPenalty(values map[string]float64) float64 {
	var penalty float64
	for _, rule := range penaltyRules {
		v, ok := values[rule.param]
		if !ok || v <= 0 {
			continue
		}
		switch {
		case v > rule.high:
			penalty += (v - rule.high) * rule.highRate
		case v > rule.low:
			penalty += (v - rule.low) * rule.lowRate
		}
	}
	return math.Min(penalty, MaxPollutantPenalty)
}

// WildfirePenalty grows as the closest fire gets nearer.
func WildfirePenalty(distanceKm *float64) float64 {
	if distanceKm == nil {
		return 0
	}
	switch d := *distanceKm; {
	case d < 10:
		return 30
	case d < 25:
		return 20
	case d < 50:
		return 12
	case d < 100:
		return 5
	default:
		return 0
	}
}

// WeatherModifier rewards comfortable humidity and penalises extremes.
// Unknown weather leaves the score unchanged.
func WeatherModifier(humidity, temperature *float64) float64 {
	var m float64
	if humidity != nil {
		switch h := *humidity; {
		case h >= 30 && h <= 60:
			m += 2
		case h < 20 || h > 80:
			m -= 3
		}
	}
	if temperature != nil && (*temperature < 0 || *temperature > 35) {
		m -= 2
	}
	return m
}

var masks = []struct {
	min  float64
	mask Mask
}{
	{90, Mask{Type: "None", Rating: RatingExcellent, Message: "Perfect air. Breathe freely without any protection.", Color: "#10b981"}},
	{75, Mask{Type: "None (optional for sensitive groups)", Rating: RatingGood, Message: "Good air quality. Mask optional for sensitive individuals.", Color: "#3b82f6"}},
	{60, Mask{Type: "Cloth mask (optional)", Rating: RatingModerate, Message: "Moderate air. Consider a cloth mask for prolonged outdoor activity.", Color: "#f59e0b"}},
	{45, Mask{Required: true, Type: "KN95 or surgical mask", Rating: RatingSensitive, Message: "Mask recommended. Use a KN95 or surgical mask outdoors.", Color: "#f97316"}},
	{30, Mask{Required: true, Type: "N95 mask (properly fitted)", Rating: RatingUnhealthy, Message: "Air quality poor. N95 mask required for outdoor activities.", Color: "#ef4444"}},
	{15, Mask{Required: true, Type: "N95/P100 respirator", Rating: RatingVeryUnhealthy, Message: "Dangerous air. N95/P100 respirator essential, limit outdoor time.", Color: "#dc2626"}},
	{0, Mask{Required: true, Type: "P100 respirator + stay indoors", Rating: RatingHazardous, Message: "Hazardous. Stay indoors and use a P100 respirator if you must go out.", Color: "#991b1b"}},
}

// MaskFor returns the mask recommendation for a score.
func MaskFor(score float64) Mask {
	for _, m := range masks {
		if score >= m.min {
			return m.mask
		}
	}
	return masks[len(masks)-1].mask
}

func riskFactors(in Input) []string {
	var risks []string
	if in.AQI > 150 {
		risks = append(risks, fmt.Sprintf("Very high AQI (%d)", in.AQI))
	}
	if in.Pollutants["pm25"] > 35.4 {
		risks = append(risks, "Elevated fine particulate matter (PM2.5)")
	}
	if in.Pollutants["pm10"] > 154 {
		risks = append(risks, "High coarse particulate matter (PM10)")
	}
	if in.Pollutants["o3"] > 70 {
		risks = append(risks, "Ground-level ozone exceeds safe limits")
	}
	if in.Pollutants["no2"] > 100 {
		risks = append(risks, "Nitrogen dioxide pollution")
	}
	if in.WildfireKm != nil && *in.WildfireKm < 50 {
		risks = append(risks, fmt.Sprintf("Active wildfire %.0fkm away - smoke inhalation risk", *in.WildfireKm))
	}
	if in.Humidity != nil {
		switch {
		case *in.Humidity > 80:
			risks = append(risks, "High humidity may worsen respiratory symptoms")
		case *in.Humidity < 20:
			risks = append(risks, "Low humidity - increased airway irritation")
		}
	}
	if in.Temperature != nil {
		switch {
		case *in.Temperature > 35:
			risks = append(risks, "Heat stress - affects breathing capacity")
		case *in.Temperature < 0:
			risks = append(risks, "Cold air - may trigger asthma or bronchospasm")
		}
	}
	if len(risks) == 0 {
		risks = append(risks, "No significant respiratory risks detected")
	}
	return risks
}

func ageGuidance(score float64) AgeGuidance {
	switch {
	case score >= 75:
		return AgeGuidance{
			Children:  "Safe for outdoor play and sports",
			Adults:    "All outdoor activities safe",
			Seniors:   "Normal outdoor activities fine",
			Sensitive: "Safe for those with respiratory conditions",
		}
	case score >= 60:
		return AgeGuidance{
			Children:  "Outdoor play OK, but watch for symptoms",
			Adults:    "Reduce prolonged outdoor exertion",
			Seniors:   "Take breaks during outdoor activities",
			Sensitive: "Limit outdoor exposure, use inhaler if needed",
		}
	case score >= 45:
		return AgeGuidance{
			Children:  "Limit outdoor play, stay indoors when possible",
			Adults:    "Avoid strenuous outdoor activities",
			Seniors:   "Stay indoors, use an air purifier",
			Sensitive: "Avoid outdoor exposure, keep rescue medication handy",
		}
	default:
		return AgeGuidance{
			Children:  "Keep children indoors, close windows",
			Adults:    "Avoid all outdoor activities",
			Seniors:   "Stay indoors, seek medical help if symptoms appear",
			Sensitive: "Stay indoors. Seek emergency care for breathing difficulties",
		}
	}
}

func activity(score float64) Activity {
	switch {
	case score >= 85:
		return Activity{Level: "All activities safe", Duration: "Unlimited", Intensity: "Any intensity",
			Message: "Perfect conditions for all outdoor activities", Color: "#10b981"}
	case score >= 70:
		return Activity{Level: "Most activities safe", Duration: "Normal duration", Intensity: "Moderate to high",
			Message: "Good for exercise, some may experience symptoms", Color: "#3b82f6"}
	case score >= 55:
		return Activity{Level: "Reduce prolonged exertion", Duration: "< 2 hours", Intensity: "Light to moderate",
			Message: "Limit intense outdoor workouts", Color: "#f59e0b"}
	case score >= 40:
		return Activity{Level: "Avoid outdoor exertion", Duration: "< 30 minutes", Intensity: "Light only",
			Message: "Avoid outdoor exercise, short walks only", Color: "#f97316"}
	default:
		return Activity{Level: "Stay indoors", Duration: "0", Intensity: "None",
			Message: "Do not go outside unless absolutely necessary", Color: "#dc2626"}
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
