// Package satellite reads gridded NO2 column snapshots and resolves the value
// nearest to a location.
package satellite

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

var (
	ErrNoSnapshot    = errors.New("no satellite snapshot available")
	ErrNoValue       = errors.New("no valid satellite value near location")
	ErrMalformedGrid = errors.New("malformed satellite grid")
)

// Coverage is the lat/lon box observed by the instrument.
type Coverage struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// TEMPOCoverage covers North America.
var TEMPOCoverage = Coverage{MinLat: 17, MaxLat: 64, MinLon: -140, MaxLon: -50}

// Contains reports whether (lat, lon) falls inside the box.
// Longitudes are normalised to [-180, 180] first.
func (c Coverage) Contains(lat, lon float64) bool {
	lon = NormalizeLongitude(lon)
	return lat >= c.MinLat && lat <= c.MaxLat && lon >= c.MinLon && lon <= c.MaxLon
}

// NormalizeLongitude maps any longitude into [-180, 180].
func NormalizeLongitude(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}

// Grid is one regular lat/lon snapshot of a single variable.
// Values is indexed [latIndex][lonIndex].
type Grid struct {
	Product    string      `json:"product"`
	Variable   string      `json:"variable"`
	Unit       string      `json:"unit"`
	ObservedAt time.Time   `json:"observedAt"`
	Lats       []float64   `json:"lats"`
	Lons       []float64   `json:"lons"`
	Values     [][]float64 `json:"values"`
	FillValue  *float64    `json:"fillValue,omitempty"`

	// Name is the file or object the grid was read from.
	Name string `json:"-"`
}

// Decode reads and validates a JSON grid.
func Decode(r io.Reader) (*Grid, error) {
	var g Grid
	if err := json.NewDecoder(r).Decode(&g); err != nil {
		return nil, fmt.Errorf("decoding grid: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// Validate checks that the value matrix matches the axes.
func (g *Grid) Validate() error {
	if len(g.Lats) == 0 || len(g.Lons) == 0 {
		return fmt.Errorf("%w: empty axes", ErrMalformedGrid)
	}
	if len(g.Values) != len(g.Lats) {
		return fmt.Errorf("%w: %d rows for %d latitudes", ErrMalformedGrid, len(g.Values), len(g.Lats))
	}
	for i, row := range g.Values {
		if len(row) != len(g.Lons) {
			return fmt.Errorf("%w: row %d has %d values for %d longitudes", ErrMalformedGrid, i, len(row), len(g.Lons))
		}
	}
	return nil
}

// Cell is the grid point nearest to a query.
type Cell struct {
	Lat   float64
	Lon   float64
	Value float64
}

// Nearest returns the cell whose axes are closest to (lat, lon).
// Grids stored with 0..360 longitudes are handled.
func (g *Grid) Nearest(lat, lon float64) (Cell, error) {
	lon = NormalizeLongitude(lon)
	if maxOf(g.Lons) > 180 && lon < 0 {
		lon += 360
	}

	i := nearestIndex(g.Lats, lat)
	j := nearestIndex(g.Lons, lon)

	value := g.Values[i][j]
	if g.missing(value) {
		return Cell{}, ErrNoValue
	}
	return Cell{Lat: g.Lats[i], Lon: NormalizeLongitude(g.Lons[j]), Value: value}, nil
}

func (g *Grid) missing(v float64) bool {
	if math.IsNaN(v) || v < 0 {
		return true
	}
	return g.FillValue != nil && v == *g.FillValue
}

func nearestIndex(axis []float64, v float64) int {
	best := 0
	bestDist := math.Inf(1)
	for i, a := range axis {
		if d := math.Abs(a - v); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

func maxOf(values []float64) float64 {
	m := math.Inf(-1)
	for _, v := range values {
		m = math.Max(m, v)
	}
	return m
}

// Calibration converts a column density into an approximate surface mixing ratio:
// ppb = raw / Scale * Factor. It is an empirical placeholder, not a physical conversion.
type Calibration struct {
	Scale  float64
	Factor float64
}

// DefaultCalibration is the conversion used when none is configured.
var DefaultCalibration = Calibration{Scale: 1e15, Factor: 20}

// PPB converts a raw column value in molecules/cm² to ppb.
func (c Calibration) PPB(raw float64) float64 {
	if c.Scale == 0 {
		c = DefaultCalibration
	}
	return raw / c.Scale * c.Factor
}
