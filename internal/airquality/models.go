// Package airquality provides ground-sensor air quality readings near a location.
package airquality

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/clearskies/clearskies/internal/aqi"
	"github.com/clearskies/clearskies/internal/source"
)

// Provider errors.
var (
	ErrNoStations          = errors.New("no stations near location")
	ErrNoMeasurements      = errors.New("no measurements available")
	ErrProviderUnavailable = errors.New("air quality provider unavailable")
)

// Station is a monitoring location near the query point.
type Station struct {
	ID         int
	Name       string
	Operator   string
	Lat        float64
	Lon        float64
	DistanceKm float64

	// Sensors is keyed by the provider's sensor id.
	Sensors map[int]Sensor
}

// Sensor is one instrument at a station.
type Sensor struct {
	Parameter aqi.Parameter
	Unit      string
}

// Measurement is a single latest value reported by one station.
type Measurement struct {
	StationID  int
	Parameter  aqi.Parameter
	Value      float64
	Unit       string
	MeasuredAt time.Time
}

// Reading is the per-parameter mean across contributing stations.
type Reading struct {
	Parameter    aqi.Parameter `json:"parameter"`
	Value        float64       `json:"value"`
	Unit         string        `json:"unit"`
	SourceName   string        `json:"source"`
	StationCount int           `json:"stationCount"`
}

// GroundResult is the outcome of one ground-sensor fetch.
type GroundResult struct {
	Availability source.Availability
	Readings     map[aqi.Parameter]Reading
	StationCount int
	Nearest      *Station
	LatestAt     time.Time
}

// Value returns the reading value for p and whether it exists.
func (r GroundResult) Value(p aqi.Parameter) (float64, bool) {
	reading, ok := r.Readings[p]
	return reading.Value, ok
}

// DailyMean is one day of an external daily-average series.
type DailyMean struct {
	Date  time.Time
	Value float64
	Unit  string
}

// SourceName labels readings produced from ground stations.
const SourceName = "OpenAQ Ground Stations"

// Aggregate averages measurements per parameter. Values are rounded to two
// decimals and each reading counts the distinct stations that contributed.
func Aggregate(measurements []Measurement) map[aqi.Parameter]Reading {
	type acc struct {
		sum      float64
		n        int
		unit     string
		stations map[int]struct{}
	}
	byParam := make(map[aqi.Parameter]*acc)

	for _, m := range measurements {
		if math.IsNaN(m.Value) || m.Value < 0 {
			continue
		}
		a, ok := byParam[m.Parameter]
		if !ok {
			a = &acc{unit: m.Unit, stations: make(map[int]struct{})}
			byParam[m.Parameter] = a
		}
		a.sum += m.Value
		a.n++
		a.stations[m.StationID] = struct{}{}
	}

	readings := make(map[aqi.Parameter]Reading, len(byParam))
	for p, a := range byParam {
		readings[p] = Reading{
			Parameter:    p,
			Value:        math.Round(a.sum/float64(a.n)*100) / 100,
			Unit:         a.unit,
			SourceName:   SourceName,
			StationCount: len(a.stations),
		}
	}
	return readings
}

// NearestStation returns the closest station, or nil for an empty list.
func NearestStation(stations []Station) *Station {
	if len(stations) == 0 {
		return nil
	}
	sorted := make([]Station, len(stations))
	copy(sorted, stations)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].DistanceKm < sorted[j].DistanceKm })
	return &sorted[0]
}
