package narration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/clearskies/clearskies/internal/geocode"
)

// sectionSpec describes one JSON object the model must return.
type sectionSpec struct {
	Name   string
	Role   string
	Fields []fieldSpec
}

type fieldSpec struct {
	Key  string
	Hint string
	List bool
}

var sectionSpecs = []sectionSpec{
	{SectionAQI, "today's air quality", []fieldSpec{
		{Key: "brief", Hint: "One friendly sentence on how the air is right now"},
		{Key: "detailed", Hint: "Two or three sentences on what the numbers mean for a normal day"},
		{Key: "recommendation", Hint: "What people should do today"},
		{Key: "insight", Hint: "One interesting thing about today's air"},
	}},
	{SectionSources, "where the data comes from", []fieldSpec{
		{Key: "brief", Hint: "One sentence on how trustworthy today's readings are"},
		{Key: "detailed", Hint: "How satellite and ground sensors complement each other"},
		{Key: "validation", Hint: "Do the sources agree?"},
		{Key: "dataQuality", Hint: "Short quality verdict"},
	}},
	{SectionWeather, "how the weather affects the air", []fieldSpec{
		{Key: "brief", Hint: "One sentence on today's weather"},
		{Key: "detailed", Hint: "How wind, rain and temperature move pollution around"},
		{Key: "impact", Hint: "Is the weather helping or hurting air quality?"},
		{Key: "uvAlert", Hint: "A short sun exposure tip"},
	}},
	{SectionForecast, "the coming hours", []fieldSpec{
		{Key: "brief", Hint: "One sentence on where the air is heading"},
		{Key: "detailed", Hint: "When it will be best and worst, and why"},
		{Key: "recommendations", Hint: "Three practical timing tips", List: true},
		{Key: "keyInsights", Hint: "The one pattern worth remembering"},
	}},
	{SectionHistorical, "the recent trend", []fieldSpec{
		{Key: "brief", Hint: "One sentence on how the past days compare"},
		{Key: "detailed", Hint: "What changed and what likely drove it"},
		{Key: "trendAnalysis", Hint: "Direction and size of the change"},
		{Key: "weeklyInsight", Hint: "What the week tells us"},
		{Key: "recommendation", Hint: "How to use this going forward"},
	}},
	{SectionAlerts, "health alerts", []fieldSpec{
		{Key: "brief", Hint: "One sentence on whether anyone needs to worry"},
		{Key: "detailed", Hint: "Who is affected and how"},
		{Key: "riskLevel", Hint: "Plain risk verdict"},
		{Key: "actionRequired", Hint: "What to do about it"},
		{Key: "nextUpdate", Hint: "When to check again"},
	}},
}

const sectionsTemplate = `You are a friendly weather reporter explaining air quality to everyday people. Write like you're talking to a friend, not giving a technical report.

LOCATION: {{ place .Location }}

CURRENT AIR QUALITY:
AQI {{ .AQI.Index }} ({{ .AQI.Category }}), main pollutant {{ .AQI.DominantParameter }}
Pollutants: {{ json .Pollutants }}
{{ with .BreathScore }}Breath quality score: {{ printf "%.1f" .Value }}/100 ({{ .Rating }}), mask: {{ .Mask.Type }}
{{ end }}{{ with .NearestFire }}Nearest active fire: {{ printf "%.0f" .DistanceKm }} km away ({{ .Severity }} severity)
{{ end }}
DATA SOURCES:
{{ range .Sources }}- {{ .Source }}: {{ if .Available }}available (confidence {{ printf "%.2f" .Confidence }}){{ else }}unavailable ({{ .Reason }}){{ end }}
{{ end }}
WEATHER:
{{ with .Weather }}{{ printf "%.1f" .Temperature }}°C, humidity {{ printf "%.0f" .Humidity }}%, wind {{ printf "%.1f" .WindSpeed }} m/s, {{ .Description }}{{ else }}unavailable{{ end }}

FORECAST ({{ .Forecast.Hours }} hours, {{ .Forecast.Mode }}):
Best {{ .Forecast.Summary.Best.Hour }} (AQI {{ .Forecast.Summary.Best.AQI }}), worst {{ .Forecast.Summary.Worst.Hour }} (AQI {{ .Forecast.Summary.Worst.AQI }}), trend {{ .Forecast.Summary.Trend }}
{{ range .Forecast.Hourly }}- {{ .Hour }}: AQI {{ .AQI }}
{{ end }}
PAST {{ .Historical.Days }} DAYS:
Average {{ .Historical.Statistics.Average }}, range {{ .Historical.Statistics.Min }}-{{ .Historical.Statistics.Max }}, trend {{ .Historical.Statistics.Trend.Direction }} ({{ printf "%.1f" .Historical.Statistics.Trend.Percentage }}%)
Good days: {{ .Historical.Statistics.GoodDays }}, best day: {{ .Historical.Patterns.BestDay }}

ALERTS:
{{ len .Alerts.ActiveAlerts }} active, {{ len .Alerts.UpcomingAlerts }} upcoming
{{ range .Alerts.ActiveAlerts }}- {{ .Title }}: {{ .Message }}
{{ end }}
Respond with a single JSON object and nothing else. It must have these keys:
{{ range .Specs }}
"{{ .Name }}" ({{ .Role }}):
{{ range .Fields }}  "{{ .Key }}": {{ if .List }}["..."]{{ else }}"..."{{ end }} -- {{ .Hint }}
{{ end }}{{ end }}`

const personaTemplate = `You're a helpful air quality advisor talking to a {{ .Persona.Name }}. Speak directly to them like a friendly expert who understands their world.

WHO YOU'RE HELPING: {{ .Persona.DisplayName }}
WHAT THEY DO: {{ .Persona.Description }}

WHAT THEY'RE WORRIED ABOUT:
{{ range .Persona.Concerns }}- {{ . }}
{{ end }}
QUESTIONS THEY NEED ANSWERS TO:
{{ range .Persona.KeyQuestions }}- {{ . }}
{{ end }}
WHAT'S HAPPENING RIGHT NOW:
Where: {{ place .Location }}
Air Quality: {{ .AQI.Index }} ({{ .AQI.Category }})
Main Issue: {{ .AQI.DominantParameter }} levels
Risk for them: {{ .Risk }}
Pollutants: {{ json .Pollutants }}
{{ with .BreathScore }}Breath quality score: {{ printf "%.1f" .Value }}/100 ({{ .Rating }}), mask: {{ .Mask.Type }}
{{ end }}{{ with .NearestFire }}Nearest active fire: {{ printf "%.0f" .DistanceKm }} km away ({{ .Severity }} severity)
{{ end }}{{ with .Weather }}
WEATHER: {{ printf "%.1f" .Temperature }}°C, humidity {{ printf "%.0f" .Humidity }}%, wind {{ printf "%.1f" .WindSpeed }} m/s, {{ .Description }}
{{ end }}
WHAT'S COMING:
{{ range $i, $p := .Forecast.Hourly }}{{ if lt $i 8 }}- {{ $p.Hour }}: AQI {{ $p.AQI }}
{{ end }}{{ end }}Best air: {{ .Forecast.Summary.Best.Hour }} (AQI {{ .Forecast.Summary.Best.AQI }})
Worst air: {{ .Forecast.Summary.Worst.Hour }} (AQI {{ .Forecast.Summary.Worst.AQI }})

HOW IT'S BEEN LATELY:
Average: {{ .Historical.Statistics.Average }}, trend {{ .Historical.Statistics.Trend.Direction }} ({{ printf "%.1f" .Historical.Statistics.Trend.Percentage }}%)
Good days: {{ .Historical.Statistics.GoodDays }} out of {{ .Historical.Statistics.DataPoints }}

THEIR SAFETY LIMITS:
{{ range .Persona.Thresholds }}- {{ .Name }}: {{ .AQI }}
{{ end }}
Respond with a single JSON object and nothing else:
{
  "immediate_action": "what to do right now",
  "time_windows": [{"start": "time", "end": "time", "aqi": 0, "safe_for": "...", "recommendation": "..."}],
  "risk_assessment": {"level": "{{ .Risk }}", "affected_groups": ["..."], "specific_risks": "..."},
  "recommendations": ["3-5 concrete actions for today"],
  "context": "why today matters for them",
  "comparative": "how today compares to normal",
  "data_confidence": {"level": "high|medium|low", "explanation": "..."},
  "key_insight": "the one thing to remember"
}`

const liveReportTemplate = `You are a local news reporter covering air quality in {{ place .Location }}.
Your audience: {{ .Persona.DisplayName }} ({{ .Persona.Description }}).

Current AQI {{ .AQI.Index }} ({{ .AQI.Category }}), main pollutant {{ .AQI.DominantParameter }}.
{{ with .Weather }}Weather: {{ printf "%.1f" .Temperature }}°C, wind {{ printf "%.1f" .WindSpeed }} m/s, {{ .Description }}.
{{ end }}Active alerts: {{ len .Alerts.ActiveAlerts }}.
Past {{ .Historical.Days }} days trend: {{ .Historical.Statistics.Trend.Direction }}.

Respond with a single JSON object and nothing else:
{
  "headline": "short headline",
  "current_conditions": "two sentences",
  "local_alerts": "any local advisories",
  "health_advisory": "advice for this audience",
  "trending_info": "what is changing",
  "recommendations": ["three short actions"],
  "sources": "what the report is based on",
  "next_update": "when to check again"
}`

var prompts = template.Must(template.New("narration").Funcs(template.FuncMap{
	"json":  toJSON,
	"place": place,
}).Parse(`{{ define "sections" }}` + sectionsTemplate + `{{ end }}` +
	`{{ define "persona" }}` + personaTemplate + `{{ end }}` +
	`{{ define "live" }}` + liveReportTemplate + `{{ end }}`))

func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func place(loc geocode.Location) string {
	if loc.DisplayName != "" {
		return loc.DisplayName
	}
	return geocode.Fallback(loc.Lat, loc.Lon).DisplayName
}

type sectionsData struct {
	Input
	Specs []sectionSpec
}

type personaData struct {
	Input
	Persona Persona
	Risk    string
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// SectionsPrompt renders the batched prompt for the named sections.
func SectionsPrompt(in Input, names ...string) (string, error) {
	if len(names) == 0 {
		names = SectionNames
	}
	specs := make([]sectionSpec, 0, len(names))
	for _, name := range names {
		for _, s := range sectionSpecs {
			if s.Name == name {
				specs = append(specs, s)
			}
		}
	}
	return render("sections", sectionsData{Input: in, Specs: specs})
}

// PersonaPrompt renders the persona guidance prompt.
func PersonaPrompt(t PersonaType, in Input) (string, error) {
	return render("persona", personaData{Input: in, Persona: GetPersona(t), Risk: RiskLevel(t, in.AQI.Index)})
}

// LiveReportPrompt renders the live report prompt.
func LiveReportPrompt(t PersonaType, in Input) (string, error) {
	return render("live", personaData{Input: in, Persona: GetPersona(t), Risk: RiskLevel(t, in.AQI.Index)})
}
