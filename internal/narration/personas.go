package narration

import "sort"

// PersonaType identifies a user persona.
type PersonaType string

const (
	PersonaVulnerable PersonaType = "vulnerable_population"
	PersonaSchool     PersonaType = "school_administrator"
	PersonaEldercare  PersonaType = "eldercare_manager"
	PersonaGovernment PersonaType = "government_official"
	PersonaTransport  PersonaType = "transportation_authority"
	PersonaParks      PersonaType = "parks_recreation"
	PersonaEmergency  PersonaType = "emergency_response"
	PersonaInsurance  PersonaType = "insurance_assessor"
	PersonaCitizen    PersonaType = "citizen_scientist"
	PersonaGeneral    PersonaType = "general"
)

// Risk levels returned by RiskLevel.
const (
	RiskLow      = "low"
	RiskModerate = "moderate"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// Threshold is a named AQI limit in a persona's escalation ladder.
type Threshold struct {
	Name string `json:"name"`
	AQI  int    `json:"aqi"`
}

// Persona describes who a narration is written for.
type Persona struct {
	Type               PersonaType    `json:"type"`
	Name               string         `json:"name"`
	DisplayName        string         `json:"displayName"`
	Description        string         `json:"description"`
	Icon               string         `json:"icon"`
	Sensitivities      []string       `json:"sensitivities"`
	Thresholds         []Threshold    `json:"aqiThresholds"`
	PriorityPollutants []string       `json:"priorityPollutants"`
	ActivityLimits     map[string]int `json:"activityRestrictions,omitempty"`
	Concerns           []string       `json:"concerns"`
	KeyQuestions       []string       `json:"keyQuestions"`
}

// Default reports whether p is the general persona.
func (p PersonaType) Default() bool {
	return p == "" || p == PersonaGeneral
}

var personaOrder = []PersonaType{
	PersonaVulnerable, PersonaSchool, PersonaEldercare, PersonaGovernment,
	PersonaTransport, PersonaParks, PersonaEmergency, PersonaInsurance,
	PersonaCitizen,
}

var personas = map[PersonaType]Persona{
	PersonaVulnerable: {
		Name:          "Vulnerable Individual",
		DisplayName:   "Parent/Guardian of Vulnerable Person",
		Description:   "Elderly, children, individuals with asthma, respiratory or cardiovascular conditions",
		Icon:          "shield-alert",
		Sensitivities: []string{"respiratory", "cardiovascular", "age_sensitive"},
		Thresholds: []Threshold{
			{"safe", 50}, {"caution", 75}, {"unsafe", 100}, {"emergency", 150},
		},
		PriorityPollutants: []string{"pm25", "o3", "no2"},
		ActivityLimits:     map[string]int{"light_outdoor": 75, "moderate_outdoor": 50, "strenuous": 40},
		Concerns: []string{
			"Respiratory health impacts",
			"Symptom triggers (wheezing, shortness of breath)",
			"Safe time windows for outdoor activities",
			"When to use rescue inhaler",
			"When to seek medical attention",
		},
		KeyQuestions: []string{
			"Is it safe to go outside?",
			"Should I use my inhaler before going out?",
			"What time of day is safest?",
			"Do I need to keep my child indoors?",
		},
	},
	PersonaSchool: {
		Name:          "School Administrator",
		DisplayName:   "School/Athletic Administrator",
		Description:   "Principals, athletic directors, coaches making outdoor activity decisions",
		Icon:          "school",
		Sensitivities: []string{"student_health", "liability", "performance_impact"},
		Thresholds: []Threshold{
			{"full_activities", 50}, {"modified_activities", 100}, {"indoor_only", 150}, {"emergency", 200},
		},
		PriorityPollutants: []string{"pm25", "o3"},
		ActivityLimits:     map[string]int{"recess": 100, "pe_class": 75, "sports_practice": 50, "extended_outdoor": 75},
		Concerns: []string{
			"Student safety and health",
			"Liability for outdoor activities",
			"Performance impact on student athletes",
			"Communication to parents",
			"Schedule modifications",
		},
		KeyQuestions: []string{
			"Should we cancel outdoor sports practice?",
			"Can students have recess outside?",
			"What time is best for PE class?",
			"Do we need to notify parents?",
		},
	},
	PersonaEldercare: {
		Name:          "Eldercare Facility Manager",
		DisplayName:   "Senior Care Facility Manager",
		Description:   "Nursing homes, assisted living, senior centers managing resident health",
		Icon:          "heart-pulse",
		Sensitivities: []string{"senior_health", "facility_management", "respiratory"},
		Thresholds: []Threshold{
			{"safe", 50}, {"monitor", 75}, {"restrict", 100}, {"critical", 150},
		},
		PriorityPollutants: []string{"pm25", "pm10", "o3"},
		ActivityLimits:     map[string]int{"windows": 75, "air_filtration": 100, "outdoor_restriction": 100, "medical_alert": 150},
		Concerns: []string{
			"Respiratory health of seniors",
			"Cardiovascular impact",
			"Facility air quality management",
			"Medical response readiness",
			"Staff communication",
		},
		KeyQuestions: []string{
			"Should we close windows?",
			"Do we need to activate air purifiers?",
			"Can residents go outside?",
			"Should we alert medical staff?",
			"Do we need to stock extra medications?",
		},
	},
	PersonaGovernment: {
		Name:          "Government Official",
		DisplayName:   "Policy Maker/Municipal Leader",
		Description:   "City officials, environmental agencies, public health departments",
		Icon:          "landmark",
		Sensitivities: []string{"population_exposure", "policy_effectiveness", "public_health"},
		Thresholds: []Threshold{
			{"good", 50}, {"advisory", 100}, {"alert", 150}, {"emergency", 200},
		},
		PriorityPollutants: []string{"pm25", "o3", "no2"},
		Concerns: []string{
			"Public health protection",
			"Policy effectiveness",
			"Communication strategy",
			"Resource allocation",
			"Regulatory compliance",
		},
		KeyQuestions: []string{
			"Should we issue a public health advisory?",
			"Are our clean air policies effective?",
			"How do we compare to other cities?",
			"What's the population exposure level?",
			"Should we implement traffic restrictions?",
		},
	},
	PersonaTransport: {
		Name:          "Transportation Authority",
		DisplayName:   "Transit/Traffic Manager",
		Description:   "DOT, port authority, airport operations, traffic management",
		Icon:          "train-track",
		Sensitivities: []string{"visibility", "operations", "emissions"},
		Thresholds: []Threshold{
			{"normal", 75}, {"advisory", 100}, {"restrictions", 150}, {"critical", 200},
		},
		PriorityPollutants: []string{"no2", "pm25", "co"},
		Concerns: []string{
			"Operations safety",
			"Traffic management",
			"Emissions reduction",
			"Public transit promotion",
			"Emergency routing",
		},
		KeyQuestions: []string{
			"Are visibility levels safe for operations?",
			"Should we promote public transit?",
			"Are traffic emissions a major contributor?",
			"Do we need alternative routing?",
			"Should we implement congestion pricing?",
		},
	},
	PersonaParks: {
		Name:          "Parks & Recreation",
		DisplayName:   "Parks/Recreation Coordinator",
		Description:   "Parks departments, rec centers, event coordinators, trail managers",
		Icon:          "trees",
		Sensitivities: []string{"outdoor_activities", "event_safety", "visitor_experience"},
		Thresholds: []Threshold{
			{"all_activities", 50}, {"light_activities", 100}, {"restricted", 150}, {"closed", 200},
		},
		PriorityPollutants: []string{"pm25", "o3"},
		ActivityLimits:     map[string]int{"light": 100, "moderate": 75, "strenuous": 50, "events": 75},
		Concerns: []string{
			"Visitor safety",
			"Event scheduling",
			"Warning signage",
			"Liability",
			"User experience",
		},
		KeyQuestions: []string{
			"Should we cancel outdoor events?",
			"Do we need to post warnings on trails?",
			"What activities are safe?",
			"Should we close certain areas?",
			"How do we communicate with visitors?",
		},
	},
	PersonaEmergency: {
		Name:          "Emergency Response",
		DisplayName:   "Emergency Management",
		Description:   "Fire departments, disaster response, wildfire management, crisis teams",
		Icon:          "shield-check",
		Sensitivities: []string{"rapid_deterioration", "population_risk", "resource_deployment"},
		Thresholds: []Threshold{
			{"normal", 100}, {"elevated", 150}, {"alert", 200}, {"emergency", 300},
		},
		PriorityPollutants: []string{"pm25", "pm10", "co"},
		ActivityLimits:     map[string]int{"monitoring": 150, "pre_positioning": 200, "evacuation_prep": 250, "active_evacuation": 300},
		Concerns: []string{
			"Rapid air quality deterioration",
			"Population exposure",
			"Evacuation readiness",
			"Resource allocation",
			"Communication protocols",
		},
		KeyQuestions: []string{
			"Is air quality deteriorating rapidly?",
			"Should we prepare for evacuations?",
			"What's the population at risk?",
			"Do we need to pre-position resources?",
			"Are wildfires a contributing factor?",
		},
	},
	PersonaInsurance: {
		Name:          "Insurance Risk Assessor",
		DisplayName:   "Insurance/Risk Analyst",
		Description:   "Insurance companies, risk assessors evaluating health and property implications",
		Icon:          "file-chart-column",
		Sensitivities: []string{"long_term_trends", "health_correlation", "regional_risk"},
		Thresholds: []Threshold{
			{"low_risk", 50}, {"moderate_risk", 100}, {"elevated_risk", 150}, {"high_risk", 200},
		},
		PriorityPollutants: []string{"pm25", "o3", "no2"},
		Concerns: []string{
			"Long-term exposure patterns",
			"Health outcome correlation",
			"Regional risk assessment",
			"Premium adjustments",
			"Claims forecasting",
		},
		KeyQuestions: []string{
			"What are long-term exposure trends?",
			"How does this correlate with health claims?",
			"What's the regional risk profile?",
			"Are conditions improving or worsening?",
			"How does this area compare to others?",
		},
	},
	PersonaCitizen: {
		Name:          "Citizen Scientist",
		DisplayName:   "Citizen Scientist/Data Contributor",
		Description:   "Community members contributing to air quality monitoring and data collection",
		Icon:          "microscope",
		Sensitivities: []string{"data_quality", "contribution_impact", "data_gaps"},
		Thresholds: []Threshold{
			{"normal", 100}, {"elevated", 150}, {"high", 200}, {"critical", 300},
		},
		PriorityPollutants: []string{"pm25", "pm10", "o3", "no2"},
		Concerns: []string{
			"Data accuracy and validation",
			"Coverage gaps",
			"Measurement priorities",
			"Community benefit",
			"Scientific contribution",
		},
		KeyQuestions: []string{
			"Where are the data gaps?",
			"How accurate are ground sensors?",
			"What measurements are priorities?",
			"How does satellite data compare to ground truth?",
			"Where should we deploy more sensors?",
		},
	},
	PersonaGeneral: {
		Name:          "General User",
		DisplayName:   "General Public",
		Description:   "General population without specific role",
		Icon:          "user",
		Sensitivities: []string{"general_health", "outdoor_activities"},
		Thresholds: []Threshold{
			{"good", 50}, {"moderate", 100}, {"unhealthy_sensitive", 150}, {"unhealthy", 200},
		},
		PriorityPollutants: []string{"pm25", "o3"},
		Concerns: []string{
			"Is it safe to be outdoors?",
			"Air quality trends",
			"When conditions will improve",
		},
		KeyQuestions: []string{
			"What's the current air quality?",
			"Is it safe to exercise outside?",
			"When will conditions improve?",
			"What are the main pollutants?",
		},
	},
}

// GetPersona returns the persona for t, or the general persona for unknown types.
func GetPersona(t PersonaType) Persona {
	p, ok := personas[t]
	if !ok {
		t = PersonaGeneral
		p = personas[PersonaGeneral]
	}
	p.Type = t
	return p
}

// KnownPersona reports whether t names a defined persona.
func KnownPersona(t PersonaType) bool {
	_, ok := personas[t]
	return ok
}

// Personas lists every selectable persona, excluding the general one.
func Personas() []Persona {
	out := make([]Persona, 0, len(personaOrder))
	for _, t := range personaOrder {
		out = append(out, GetPersona(t))
	}
	return out
}

// RiskLevel places aqi on the persona's threshold ladder: at or below the
// first rung is low, the second moderate, the third high, above it critical.
func RiskLevel(t PersonaType, aqi int) string {
	ladder := append([]Threshold(nil), GetPersona(t).Thresholds...)
	sort.SliceStable(ladder, func(i, j int) bool { return ladder[i].AQI < ladder[j].AQI })

	levels := []string{RiskLow, RiskModerate, RiskHigh}
	for i, level := range levels {
		if i < len(ladder) && aqi <= ladder[i].AQI {
			return level
		}
	}
	return RiskCritical
}

// ActivitySafe reports whether an activity is within the persona's limit.
// Unknown activities use the persona's first threshold.
func ActivitySafe(t PersonaType, activity string, aqi int) bool {
	p := GetPersona(t)
	if limit, ok := p.ActivityLimits[activity]; ok {
		return aqi <= limit
	}
	if len(p.Thresholds) > 0 {
		return aqi <= p.Thresholds[0].AQI
	}
	return aqi <= 50
}
