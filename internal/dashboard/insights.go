package dashboard

import (
	"fmt"
	"math"
	"time"

	"github.com/clearskies/clearskies/internal/forecast"
	"github.com/clearskies/clearskies/internal/historical"
	"github.com/clearskies/clearskies/internal/history"
)

// Change directions.
const (
	DirectionBetter = "better"
	DirectionWorse  = "worse"
	DirectionSame   = "same"
)

func buildInsights(index int, series historical.Result, outlook forecast.Result, now time.Time) Insights {
	today := history.Day(now)
	return Insights{
		Comparative: Comparative{
			VsYesterday: compare(index, series, today.AddDate(0, 0, -1), "yesterday"),
			VsLastWeek:  compare(index, series, today.AddDate(0, 0, -7), "last week"),
		},
		Tips:          tips(index, series.Statistics.Average),
		NextMilestone: milestone(index, outlook),
	}
}

// compare measures index against the reading for day. Negative changes are
// improvements.
func compare(index int, series historical.Result, day time.Time, label string) Change {
	date := day.Format(history.DateLayout)
	for _, r := range series.Readings {
		if r.Date != date {
			continue
		}

		c := Change{
			Available:  true,
			Change:     index - r.AQI,
			Direction:  DirectionSame,
			Provenance: r.Provenance,
		}
		if r.AQI > 0 {
			c.Percentage = math.Round(float64(c.Change)/float64(r.AQI)*1000) / 10
		}

		pct := int(math.Round(math.Abs(c.Percentage)))
		switch {
		case c.Change < 0:
			c.Direction = DirectionBetter
			c.Text = fmt.Sprintf("Air quality is %d%% better than %s", pct, label)
		case c.Change > 0:
			c.Direction = DirectionWorse
			c.Text = fmt.Sprintf("Air quality is %d%% worse than %s", pct, label)
		default:
			c.Text = fmt.Sprintf("Air quality is the same as %s", label)
		}
		return c
	}

	return Change{
		Direction: DirectionSame,
		Text:      fmt.Sprintf("No reading for %s yet", label),
	}
}

func tips(index, average int) []string {
	var out []string
	switch {
	case index <= 50:
		out = []string{
			"🏃 Good conditions for outdoor exercise",
			"🪟 Consider opening windows while AQI stays below 50",
		}
	case index <= 100:
		out = []string{
			"🚶 Outdoor activity is fine for most people",
			"🪟 Keep windows closed during rush hours (7-9 AM, 5-7 PM)",
		}
	case index <= 150:
		out = []string{
			"⚠️ Sensitive groups should limit prolonged outdoor exertion",
			"🌀 Run an air purifier indoors if you have one",
		}
	default:
		out = []string{
			"🏠 Limit time outdoors",
			"😷 Wear an N95 mask if you must go outside",
			"🪟 Keep windows and doors closed",
		}
	}

	switch {
	case average <= 0:
	case index < average:
		out = append(out, "🌳 Air quality is better than this week's average")
	case index > average:
		out = append(out, "📈 Air quality is worse than this week's average")
	}
	return out
}

func milestone(index int, outlook forecast.Result) string {
	best := outlook.Summary.Best
	switch {
	case len(outlook.Hourly) > 0 && best.AQI < index:
		return fmt.Sprintf("AQI expected to improve to %d around %s", best.AQI, best.Hour)
	case index <= 50:
		return "AQI expected to remain good in the next few hours"
	default:
		return fmt.Sprintf("AQI expected to stay near %d over the next %d hours", index, outlook.Hours)
	}
}
