// Package aqi converts pollutant concentrations into US EPA Air Quality Index values.
package aqi

import "strings"

// Parameter identifies a pollutant.
type Parameter string

const (
	PM25 Parameter = "pm25"
	PM10 Parameter = "pm10"
	O3   Parameter = "o3"
	NO2  Parameter = "no2"
	SO2  Parameter = "so2"
	CO   Parameter = "co"
)

// Parameters lists every known pollutant in dominant-pollutant tie-break order.
var Parameters = []Parameter{PM25, PM10, O3, NO2, SO2, CO}

// ParseParameter normalizes provider spellings ("PM2.5", "pm2_5", "NO2") to a Parameter.
func ParseParameter(s string) (Parameter, bool) {
	key := strings.ToLower(strings.NewReplacer(".", "", "_", "", " ", "").Replace(s))
	switch key {
	case "pm25":
		return PM25, true
	case "pm10":
		return PM10, true
	case "o3":
		return O3, true
	case "no2":
		return NO2, true
	case "so2":
		return SO2, true
	case "co":
		return CO, true
	}
	return "", false
}

// Breakpoint maps a concentration range onto an index range.
type Breakpoint struct {
	CLow  float64
	CHigh float64
	ILow  int
	IHigh int
}

// MaxIndex is returned for concentrations beyond the highest breakpoint.
const MaxIndex = 500

var breakpoints = map[Parameter][]Breakpoint{
	// µg/m³, 24-hour
	PM25: {
		{0.0, 12.0, 0, 50},
		{12.1, 35.4, 51, 100},
		{35.5, 55.4, 101, 150},
		{55.5, 150.4, 151, 200},
		{150.5, 250.4, 201, 300},
		{250.5, 500.4, 301, 500},
	},
	// ppb, 1-hour
	NO2: {
		{0, 53, 0, 50},
		{54, 100, 51, 100},
		{101, 360, 101, 150},
		{361, 649, 151, 200},
		{650, 1249, 201, 300},
		{1250, 2049, 301, 500},
	},
	// ppb, 8-hour
	O3: {
		{0, 54, 0, 50},
		{55, 70, 51, 100},
		{71, 85, 101, 150},
		{86, 105, 151, 200},
		{106, 200, 201, 300},
	},
}

// Breakpoints returns a copy of the table for p, or nil when p has none.
func Breakpoints(p Parameter) []Breakpoint {
	table, ok := breakpoints[p]
	if !ok {
		return nil
	}
	out := make([]Breakpoint, len(table))
	copy(out, table)
	return out
}

// Calculate returns the index for a concentration of p.
// The second return value is false when p has no breakpoint table.
//
// Concentrations falling between two published ranges (for example PM2.5 12.05)
// take the lower index of the next range, which keeps the result monotonic.
func Calculate(p Parameter, concentration float64) (int, bool) {
	table, ok := breakpoints[p]
	if !ok {
		return 0, false
	}
	if concentration < 0 {
		concentration = 0
	}

	for _, bp := range table {
		if concentration < bp.CLow {
			return bp.ILow, true
		}
		if concentration <= bp.CHigh {
			return interpolate(bp, concentration), true
		}
	}
	return MaxIndex, true
}

func interpolate(bp Breakpoint, c float64) int {
	ratio := float64(bp.IHigh-bp.ILow) / (bp.CHigh - bp.CLow)
	return int(ratio*(c-bp.CLow) + float64(bp.ILow))
}

// Result is the overall index for a location.
type Result struct {
	Index             int
	Category          Category
	DominantParameter Parameter
}

// DefaultIndex is used when no pollutant could be scored.
const DefaultIndex = 50

// Overall picks the maximum of the per-parameter indexes. Ties resolve in
// Parameters order. extra holds indexes that are not tied to a parameter table
// (for example a satellite estimate) together with the parameter they describe.
func Overall(indexes map[Parameter]int, extra ...Scored) Result {
	best := -1
	var dominant Parameter

	for _, p := range Parameters {
		if v, ok := indexes[p]; ok && v > best {
			best = v
			dominant = p
		}
	}
	for _, s := range extra {
		if s.Index > best {
			best = s.Index
			dominant = s.Parameter
		}
	}

	if best < 0 {
		return Result{Index: DefaultIndex, Category: CategoryOf(DefaultIndex), DominantParameter: PM25}
	}
	return Result{Index: best, Category: CategoryOf(best), DominantParameter: dominant}
}

// Scored is an index attributed to a parameter.
type Scored struct {
	Parameter Parameter
	Index     int
}
