// Package alerts derives active and upcoming health alerts from an AQI value.
package alerts

import (
	"fmt"
	"time"

	"github.com/clearskies/clearskies/internal/aqi"
)

// Severity of an active alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	// Issuer is reported on every active alert.
	Issuer = "Air Quality Management District"

	// UpcomingType labels the rush-hour prediction.
	UpcomingType = "morning_traffic"

	// UpcomingMessage accompanies the rush-hour prediction.
	UpcomingMessage = "Tomorrow morning may see elevated pollution during rush hour"

	ActiveValidity = 8 * time.Hour
	UpcomingOffset = 12 * time.Hour

	// UpcomingFactor scales the current AQI into the predicted value.
	UpcomingFactor = 1.2
)

// Thresholds.
const (
	ActiveThreshold   = 100
	CriticalThreshold = 150
	SevereThreshold   = 200
	UpcomingThreshold = 50
)

var (
	sensitiveRecommendations = []string{
		"Sensitive individuals should limit prolonged outdoor exertion",
		"Keep windows closed during high-traffic hours (7-9 AM, 5-7 PM)",
		"Use HEPA air purifiers indoors if available",
		"Monitor symptoms and adjust activities accordingly",
	}
	unhealthyRecommendations = []string{
		"Wear an N95 mask outdoors",
		"Avoid outdoor exercise",
		"Use air purifiers indoors",
	}
	severeRecommendations = []string{
		"Stay indoors as much as possible",
		"Seek medical attention if experiencing symptoms",
	}

	sensitiveGroups = []string{
		"People with asthma",
		"Children under 5",
		"Elderly (65+)",
		"People with heart disease",
	}
)

// Alert is an active health advisory.
type Alert struct {
	ID              string       `json:"id"`
	Severity        Severity     `json:"severity"`
	Category        aqi.Category `json:"category"`
	Priority        int          `json:"priority"`
	Title           string       `json:"title"`
	Message         string       `json:"message"`
	AffectedGroups  []string     `json:"affectedGroups"`
	Recommendations []string     `json:"recommendations"`
	ValidFrom       time.Time    `json:"validFrom"`
	ValidTo         time.Time    `json:"validTo"`
	IssuedBy        string       `json:"issuedBy"`
	Urgency         string       `json:"urgency"`
}

// Upcoming is a predicted future episode.
type Upcoming struct {
	Timestamp    time.Time `json:"timestamp"`
	Type         string    `json:"type"`
	PredictedAQI int       `json:"predictedAQI"`
	Message      string    `json:"message"`
}

// Result holds the generated alerts. Both slices are non-nil.
type Result struct {
	CurrentAQI     int        `json:"currentAQI"`
	SensitiveGroup bool       `json:"sensitiveGroup"`
	ActiveAlerts   []Alert    `json:"activeAlerts"`
	UpcomingAlerts []Upcoming `json:"upcomingAlerts"`
}

// Generate derives alerts for index at now.
func Generate(index int, now time.Time) Result {
	now = now.UTC()
	result := Result{
		CurrentAQI:     index,
		ActiveAlerts:   []Alert{},
		UpcomingAlerts: []Upcoming{},
	}

	if index > ActiveThreshold {
		result.ActiveAlerts = append(result.ActiveAlerts, active(index, now))
	}

	if index > UpcomingThreshold {
		result.UpcomingAlerts = append(result.UpcomingAlerts, Upcoming{
			Timestamp:    now.Add(UpcomingOffset),
			Type:         UpcomingType,
			PredictedAQI: int(float64(index) * UpcomingFactor),
			Message:      UpcomingMessage,
		})
	}

	return result
}

// ForGroup is Generate with the caller's sensitive-group flag echoed back.
// Thresholds are the same for everyone; the active alert already names
// sensitive groups.
func ForGroup(index int, sensitiveGroup bool, now time.Time) Result {
	r := Generate(index, now)
	r.SensitiveGroup = sensitiveGroup
	return r
}

func active(index int, now time.Time) Alert {
	category := aqi.CategoryOf(index)

	severity, priority, urgency := SeverityWarning, 2, "moderate"
	if index > CriticalThreshold {
		severity, priority, urgency = SeverityCritical, 3, "high"
	}

	recommendations := append([]string{}, sensitiveRecommendations...)
	groups := append([]string{}, sensitiveGroups...)
	if index > CriticalThreshold {
		recommendations = append(recommendations, unhealthyRecommendations...)
	}
	if index > SevereThreshold {
		recommendations = append(recommendations, severeRecommendations...)
		groups = append(groups, "Everyone")
	}

	return Alert{
		ID:              fmt.Sprintf("alert-%s-001", category),
		Severity:        severity,
		Category:        category,
		Priority:        priority,
		Title:           fmt.Sprintf("%s Air Quality Advisory", category.Label()),
		Message:         aqi.HealthMessageOf(index),
		AffectedGroups:  groups,
		Recommendations: recommendations,
		ValidFrom:       now,
		ValidTo:         now.Add(ActiveValidity),
		IssuedBy:        Issuer,
		Urgency:         urgency,
	}
}
