package historical

import (
	"math"
	"sort"
	"time"
)

// Trend directions.
const (
	DirectionImproving = "improving"
	DirectionWorsening = "worsening"
	DirectionStable    = "stable"
)

// Compute derives summary statistics from readings in chronological order.
func Compute(readings []Reading) Statistics {
	n := len(readings)
	stats := Statistics{DataPoints: n}
	if n == 0 {
		stats.Trend.Direction = DirectionStable
		return stats
	}

	values := make([]int, n)
	sum := 0
	for i, r := range readings {
		values[i] = r.AQI
		sum += r.AQI

		switch {
		case r.AQI <= 50:
			stats.GoodDays++
		case r.AQI <= 100:
			stats.ModerateDays++
		default:
			stats.UnhealthyDays++
		}
	}

	mean := float64(sum) / float64(n)
	stats.Average = int(mean)

	var sq float64
	for _, v := range values {
		d := float64(v) - mean
		sq += d * d
	}
	stats.StandardDeviation = round1(math.Sqrt(sq / float64(n)))

	sorted := append([]int(nil), values...)
	sort.Ints(sorted)
	stats.Min = sorted[0]
	stats.Max = sorted[n-1]
	if n%2 == 1 {
		stats.Median = sorted[n/2]
	} else {
		stats.Median = int(float64(sorted[n/2-1]+sorted[n/2]) / 2)
	}

	stats.Trend = TrendOf(values[0], values[n-1])
	return stats
}

// TrendOf compares the last value against the first. The percentage keeps
// its sign; Magnitude is its absolute value.
func TrendOf(first, last int) Trend {
	var pct float64
	if first != 0 {
		pct = round1(float64(last-first) / float64(first) * 100)
	}

	t := Trend{Percentage: pct, Magnitude: math.Abs(pct)}
	switch {
	case pct < 0:
		t.Direction = DirectionImproving
	case pct > 0:
		t.Direction = DirectionWorsening
	default:
		t.Direction = DirectionStable
	}
	return t
}

var weekdayOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// Weekdays returns the weekday names with the lowest and highest mean AQI.
// Ties go to the earlier day of the week. Both are empty without readings.
func Weekdays(readings []Reading) (best, worst string) {
	type bucket struct{ sum, n int }
	buckets := make(map[time.Weekday]*bucket)
	for _, r := range readings {
		wd := r.Timestamp.UTC().Weekday()
		b, ok := buckets[wd]
		if !ok {
			b = &bucket{}
			buckets[wd] = b
		}
		b.sum += r.AQI
		b.n++
	}

	bestMean, worstMean := math.Inf(1), math.Inf(-1)
	for _, wd := range weekdayOrder {
		b, ok := buckets[wd]
		if !ok {
			continue
		}
		mean := float64(b.sum) / float64(b.n)
		if mean < bestMean {
			bestMean, best = mean, wd.String()
		}
		if mean > worstMean {
			worstMean, worst = mean, wd.String()
		}
	}
	return best, worst
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
