package aqi

import "strings"

// Category is the health band of an index value.
type Category string

const (
	Good                        Category = "good"
	Moderate                    Category = "moderate"
	UnhealthyForSensitiveGroups Category = "unhealthy-sensitive"
	Unhealthy                   Category = "unhealthy"
	VeryUnhealthy               Category = "very-unhealthy"
	Hazardous                   Category = "hazardous"
)

// UnknownColor is used when a level cannot be determined.
const UnknownColor = "#9CA3AF"

type band struct {
	upper    int
	category Category
	message  string
	color    string
}

var bands = []band{
	{50, Good, "Air quality is excellent, ideal for outdoor activities", "#10B981"},
	{100, Moderate, "Air quality is acceptable for most people", "#F59E0B"},
	{150, UnhealthyForSensitiveGroups, "Sensitive groups should limit prolonged outdoor exertion", "#F97316"},
	{200, Unhealthy, "Everyone should reduce prolonged outdoor exertion", "#EF4444"},
	{300, VeryUnhealthy, "Avoid outdoor activities", "#9333EA"},
}

var hazardous = band{MaxIndex, Hazardous, "Health alert: remain indoors with air filtration", "#7F1D1D"}

func bandOf(index int) band {
	for _, b := range bands {
		if index <= b.upper {
			return b
		}
	}
	return hazardous
}

// CategoryOf returns the category of an index value.
func CategoryOf(index int) Category { return bandOf(index).category }

// HealthMessageOf returns the advisory sentence for an index value.
func HealthMessageOf(index int) string { return bandOf(index).message }

// ColorOf returns the display color of an index value.
func ColorOf(index int) string { return bandOf(index).color }

// Label title-cases the category ("unhealthy-sensitive" -> "Unhealthy-Sensitive").
func (c Category) Label() string {
	if c == "" {
		return "Unknown"
	}
	parts := strings.Split(string(c), "-")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, "-")
}

// Valid reports whether c is one of the defined categories.
func (c Category) Valid() bool {
	if c == Hazardous {
		return true
	}
	for _, b := range bands {
		if b.category == c {
			return true
		}
	}
	return false
}

type names struct {
	short string
	full  string
}

var displayNames = map[Parameter]names{
	PM25: {"PM2.5", "Fine Particulate Matter"},
	PM10: {"PM10", "Particulate Matter"},
	O3:   {"O₃", "Ozone"},
	NO2:  {"NO₂", "Nitrogen Dioxide"},
	SO2:  {"SO₂", "Sulfur Dioxide"},
	CO:   {"CO", "Carbon Monoxide"},
}

// DisplayName returns the short chemical name of p.
func DisplayName(p Parameter) string {
	if n, ok := displayNames[p]; ok {
		return n.short
	}
	return strings.ToUpper(string(p))
}

// FullName returns the long descriptive name of p.
func FullName(p Parameter) string {
	if n, ok := displayNames[p]; ok {
		return n.full
	}
	return strings.ToUpper(string(p))
}
