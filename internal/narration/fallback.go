package narration

import (
	"fmt"
	"math"
	"strings"

	"github.com/clearskies/clearskies/internal/aqi"
	"github.com/clearskies/clearskies/internal/forecast"
	"github.com/clearskies/clearskies/internal/geocode"
	"github.com/clearskies/clearskies/internal/historical"
)

// Fallback texts that do not depend on the data.
const (
	fallbackInsight         = "Air quality varies throughout the day - early morning is often best"
	fallbackForecastDetail  = "Forecast shows expected air quality trends based on weather patterns and historical data."
	fallbackForecastInsight = "Air quality patterns follow daily traffic and weather cycles"
	fallbackHistoricalRec   = "Monitor daily conditions and plan outdoor activities during early morning hours when air quality is typically better."
	fallbackKeyInsight      = "Monitor conditions throughout the day as air quality can vary significantly with traffic patterns and weather."
)

var forecastRecommendations = []string{
	"Check forecast before planning outdoor activities",
	"Morning hours typically have different conditions than evening",
	"Monitor real-time updates for changes",
}

// describe renders a category for use inside a sentence.
func describe(c aqi.Category) string {
	if c == aqi.UnhealthyForSensitiveGroups {
		return "unhealthy for sensitive groups"
	}
	if c == "" {
		return "unknown"
	}
	return strings.ReplaceAll(string(c), "-", " ")
}

// FallbackSections builds every section without a model.
func FallbackSections(in Input) Sections {
	s := Sections{Fallback: append([]string(nil), SectionNames...)}
	s.AQI = fallbackAQI(in)
	s.Sources = fallbackSources(in)
	s.Weather = fallbackWeather(in)
	s.Forecast = fallbackForecast(in)
	s.Historical = fallbackHistorical(in)
	s.Alerts = fallbackAlerts(in)
	return s
}

func fallbackAQI(in Input) AQISummary {
	index := in.AQI.Index
	category := describe(in.AQI.Category)

	conditions := "safe for most activities"
	recommendation := "Air quality is suitable for outdoor activities."
	if index > 100 {
		conditions = "requiring caution for sensitive groups"
		recommendation = "Check current conditions before outdoor activities."
	}
	if b := in.BreathScore; b != nil && b.Mask.Required {
		recommendation += " " + b.Mask.Message
	}
	if f := in.NearestFire; f != nil && f.DistanceKm < 50 {
		recommendation += fmt.Sprintf(" An active fire is %.0f km away; watch for smoke.", f.DistanceKm)
	}

	return AQISummary{
		Brief: fmt.Sprintf("Air quality is %s with AQI of %d.", category, index),
		Detailed: fmt.Sprintf("Current air quality index is %d, classified as %s. The dominant pollutant is %s. Conditions are %s.",
			index, category, aqi.DisplayName(in.AQI.DominantParameter), conditions),
		Recommendation: recommendation,
		Insight:        fallbackInsight,
	}
}

func fallbackSources(in Input) SourcesSummary {
	available := 0
	for _, a := range in.Sources {
		if a.Available {
			available++
		}
	}

	switch {
	case available == 0:
		return SourcesSummary{
			Brief:       "Live data sources are unavailable, so readings are estimated.",
			Detailed:    "Satellite, ground sensor and weather data could not be reached. Values shown are defaults and estimates until the sources recover.",
			Validation:  "No sources available to cross-check",
			DataQuality: "Limited - Estimated values only",
		}
	case available < len(in.Sources):
		return SourcesSummary{
			Brief:       fmt.Sprintf("Data from %d of %d sources is available.", available, len(in.Sources)),
			Detailed:    "Some data sources are temporarily unavailable. Readings come from the sources that responded.",
			Validation:  "Partial agreement check between available sources",
			DataQuality: "Fair - Some sources unavailable",
		}
	default:
		return SourcesSummary{
			Brief:       "Data from multiple sources confirms reliable air quality readings.",
			Detailed:    "Satellite and ground sensor data are combined to provide accurate air quality information. Multiple data sources help validate measurements.",
			Validation:  "Data sources show good agreement",
			DataQuality: "Reliable - Multiple sources confirm readings",
		}
	}
}

func fallbackWeather(in Input) WeatherSummary {
	if in.Weather == nil {
		return WeatherSummary{
			Brief:    "Weather data is currently unavailable.",
			Detailed: "Without current weather, the forecast follows typical daily traffic patterns.",
			Impact:   "Weather impact on air quality cannot be assessed right now.",
			UVAlert:  "Monitor UV levels during peak sun hours",
		}
	}

	w := in.Weather
	return WeatherSummary{
		Brief:    fmt.Sprintf("Current temperature is %.1f°C with winds at %.1f m/s.", w.Temperature, w.WindSpeed),
		Detailed: fmt.Sprintf("Weather conditions are influencing air quality. Wind speed of %.1f m/s helps disperse pollutants.", w.WindSpeed),
		Impact:   "Weather conditions are moderately favorable for air quality.",
		UVAlert:  "Monitor UV levels during peak sun hours",
	}
}

func fallbackForecast(in Input) ForecastSummary {
	hours := in.Forecast.Hours
	if hours <= 0 {
		hours = forecast.DefaultHours
	}
	return ForecastSummary{
		Brief:           fmt.Sprintf("Air quality forecast available for the next %d hours.", hours),
		Detailed:        fallbackForecastDetail,
		Recommendations: append([]string(nil), forecastRecommendations...),
		KeyInsights:     fallbackForecastInsight,
	}
}

func fallbackHistorical(in Input) HistoricalSummary {
	stats := in.Historical.Statistics
	avg := stats.Average
	direction := stats.Trend.Direction
	if direction == "" {
		direction = historical.DirectionStable
	}
	pct := math.Abs(stats.Trend.Percentage)

	emoji := "➡️"
	switch direction {
	case historical.DirectionWorsening:
		emoji = "📈"
	case historical.DirectionImproving:
		emoji = "📉"
	}

	level := "good"
	if avg > 50 {
		level = "moderate"
	}
	size := "slight"
	if pct > 10 {
		size = "significant"
	}
	days := in.Historical.Days
	if days <= 0 {
		days = historical.DefaultDays
	}

	return HistoricalSummary{
		Brief: fmt.Sprintf("Average air quality was %s but showed a %s %s trend of %.1f%% over the past %d days.",
			level, size, direction, pct, days),
		Detailed: fmt.Sprintf("The period showed air quality patterns with an average AQI of %d. Analysis indicates %s conditions influenced by daily traffic patterns and weather conditions.",
			avg, direction),
		TrendAnalysis: fmt.Sprintf("The data shows a %s trajectory with air quality changing by %.1f%% over the period. %s",
			direction, pct, emoji),
		WeeklyInsight:  fmt.Sprintf("While average AQI of %d is typical for urban areas, the %s trend warrants attention.", avg, direction),
		Recommendation: fallbackHistoricalRec,
	}
}

func fallbackAlerts(in Input) AlertsSummary {
	n := len(in.Alerts.ActiveAlerts)
	plural := "s"
	if n == 1 {
		plural = ""
	}
	risk := "Low for general population"
	if in.AQI.Index > 100 {
		risk = "Moderate for sensitive groups"
	}
	return AlertsSummary{
		Brief:          fmt.Sprintf("%d active alert%s for current air quality conditions.", n, plural),
		Detailed:       "Air quality alerts provide guidance for sensitive groups and outdoor activities.",
		RiskLevel:      risk,
		ActionRequired: "Follow recommended precautions based on your sensitivity",
		NextUpdate:     "Check for updates in 2 hours",
	}
}

// FallbackPersonaInsights builds persona guidance without a model.
func FallbackPersonaInsights(t PersonaType, in Input) PersonaInsights {
	persona := GetPersona(t)
	index := in.AQI.Index
	category := describe(in.AQI.Category)

	action, recs := personaAdvice(persona.Type, index, category)

	relation := "at or below"
	if index > 50 {
		relation = "above"
	}
	comparison := "similar to"
	if in.Historical.Statistics.Trend.Direction == historical.DirectionImproving {
		comparison = "better than"
	}

	return PersonaInsights{
		Persona:         persona.Type,
		ImmediateAction: action,
		TimeWindows:     []TimeWindow{bestWindow(in)},
		RiskAssessment: RiskAssessment{
			Level:          RiskLevel(persona.Type, index),
			AffectedGroups: append([]string(nil), persona.Concerns...),
			SpecificRisks: fmt.Sprintf("Current AQI of %d may impact %s based on exposure duration and activity intensity.",
				index, strings.ToLower(persona.Name)),
		},
		Recommendations: recs,
		Context: fmt.Sprintf("Current air quality is %s with AQI of %d. This is %s recommended thresholds for sensitive activities.",
			category, index, relation),
		Comparative: fmt.Sprintf("Air quality is %s recent patterns.", comparison),
		DataConfidence: DataConfidence{
			Level:       "medium",
			Explanation: "Data from multiple ground sensors provides reliable measurements.",
		},
		KeyInsight: fallbackKeyInsight,
	}
}

func bestWindow(in Input) TimeWindow {
	best := in.Forecast.Summary.Best
	w := TimeWindow{
		Start:          "03 AM",
		End:            "06 AM",
		AQI:            35,
		SafeFor:        "all activities",
		Recommendation: "Best time for outdoor activities",
	}
	if best.Hour == "" || best.Timestamp.IsZero() {
		return w
	}
	zone := geocode.EstimatedZone(in.Location.Lon)
	w.Start = best.Hour
	w.End = best.Timestamp.Add(forecast.Step).In(zone).Format(forecast.HourLayout)
	w.AQI = best.AQI
	return w
}

func personaAdvice(t PersonaType, index int, category string) (string, []string) {
	switch t {
	case PersonaSchool:
		switch {
		case index > 100:
			return "Consider moving outdoor activities indoors. Air quality exceeds safe threshold for students.", []string{
				"Move recess and PE classes indoors",
				"Reschedule outdoor sports practice",
				"Notify parents of air quality conditions",
				"Monitor AQI updates throughout the day",
			}
		case index > 50:
			return "Modify outdoor activities to reduce intensity and duration.", []string{
				"Limit outdoor sports to light activities",
				"Reduce outdoor time for sensitive students",
				"Keep rescue inhalers accessible",
				"Monitor student symptoms",
			}
		default:
			return "Air quality is safe for all student activities.", []string{
				"All outdoor activities can proceed normally",
				"Good conditions for sports practice and PE",
				"Safe for extended outdoor time",
			}
		}

	case PersonaVulnerable:
		switch {
		case index > 100:
			return "Stay indoors. Air quality is unhealthy for sensitive individuals.", []string{
				"Remain indoors with windows closed",
				"Use air purifier if available",
				"Have rescue inhaler ready if you have asthma",
				"Avoid all outdoor physical activity",
			}
		case index > 50:
			return "Limit time outdoors and avoid strenuous activities.", []string{
				"Limit outdoor time to essential activities only",
				"Avoid exercise outdoors",
				"Monitor for symptoms (coughing, shortness of breath)",
				"Check AQI before going outside",
			}
		default:
			return "Air quality is safe for outdoor activities.", []string{
				"Safe to go outside",
				"Light outdoor activities are fine",
				"Continue to monitor if you have respiratory conditions",
			}
		}
	}

	if index > 100 {
		return fmt.Sprintf("Air quality is %s. Limit outdoor activities.", category), []string{
			"Reduce time spent outdoors",
			"Avoid strenuous outdoor activities",
			"Monitor air quality updates",
			"Check forecast for better times",
		}
	}
	return "Air quality is acceptable for most activities.", []string{
		"Monitor conditions throughout the day",
		"Check forecast for changes",
		"Be aware of sensitive group concerns",
	}
}

// FallbackLiveReport builds a location report without a model.
func FallbackLiveReport(t PersonaType, in Input) LiveReport {
	persona := GetPersona(t)
	city := in.Location.City
	if city == "" {
		city = in.Location.DisplayName
	}
	if city == "" {
		city = "your area"
	}
	category := describe(in.AQI.Category)

	return LiveReport{
		Persona:           persona.Type,
		Headline:          fmt.Sprintf("Air quality in %s is %s", city, category),
		CurrentConditions: fmt.Sprintf("Current AQI of %d indicates %s air quality conditions.", in.AQI.Index, category),
		LocalAlerts:       "No specific local alerts available at this time.",
		HealthAdvisory: fmt.Sprintf("As a %s, monitor air quality and adjust outdoor activities accordingly.",
			persona.DisplayName),
		TrendingInfo: "Check back later for updated conditions.",
		Recommendations: []string{
			"Monitor local air quality throughout the day",
			"Follow general health guidelines for current AQI level",
			"Check back for updates",
		},
		Sources:    "Based on sensor data",
		NextUpdate: "Check back in a few hours for updated conditions",
	}
}
