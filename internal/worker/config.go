// Package worker provides background jobs for ClearSkies: satellite snapshot
// refresh and history warm-up for frequently requested places.
package worker

import (
	"sort"
	"time"
)

// RefreshTarget is a named group of points to warm.
type RefreshTarget struct {
	// Name is the human-readable name of the target.
	Name string `yaml:"name"`

	// Points are the coordinates to warm, typically city centers.
	Points []Point `yaml:"points"`

	// Priority determines warm-up order (lower = higher priority).
	Priority int `yaml:"priority"`
}

// Point is a geographic coordinate.
type Point struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// RefreshConfig holds configuration for the refresh job.
type RefreshConfig struct {
	// Targets are the places to warm.
	// If empty, uses DefaultRefreshTargets.
	Targets []RefreshTarget `yaml:"targets"`

	// Concurrency is the number of points warmed at once.
	// Default: 3
	Concurrency int `yaml:"concurrency"`

	// Timeout bounds the work for one point.
	// Default: 30 seconds
	Timeout time.Duration `yaml:"timeout"`

	// RefreshSatellite downloads a new satellite snapshot before warming.
	// Default: true
	RefreshSatellite bool `yaml:"refreshSatellite"`

	// WarmHistory writes today's reading for every point.
	// Default: true
	WarmHistory bool `yaml:"warmHistory"`
}

// DefaultRefreshConfig returns the default refresh configuration.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Targets:          DefaultRefreshTargets(),
		Concurrency:      3,
		Timeout:          30 * time.Second,
		RefreshSatellite: true,
		WarmHistory:      true,
	}
}

// DefaultRefreshTargets returns metropolitan areas inside the satellite's
// North American coverage.
func DefaultRefreshTargets() []RefreshTarget {
	return []RefreshTarget{
		{
			Name:     "New York",
			Priority: 1,
			Points: []Point{
				{Lat: 40.7128, Lon: -74.0060}, // Lower Manhattan
				{Lat: 40.7831, Lon: -73.9712}, // Upper West Side
				{Lat: 40.6782, Lon: -73.9442}, // Brooklyn
			},
		},
		{
			Name:     "Los Angeles",
			Priority: 1,
			Points: []Point{
				{Lat: 34.0522, Lon: -118.2437}, // Downtown
				{Lat: 34.0195, Lon: -118.4912}, // Santa Monica
				{Lat: 34.1808, Lon: -118.3090}, // Burbank
			},
		},
		{
			Name:     "San Francisco",
			Priority: 1,
			Points: []Point{
				{Lat: 37.7749, Lon: -122.4194}, // Civic Center
				{Lat: 37.8044, Lon: -122.2712}, // Oakland
			},
		},
		{
			Name:     "Chicago",
			Priority: 1,
			Points: []Point{
				{Lat: 41.8781, Lon: -87.6298}, // Loop
				{Lat: 41.9742, Lon: -87.9073}, // O'Hare
			},
		},
		{
			Name:     "Houston",
			Priority: 2,
			Points: []Point{
				{Lat: 29.7604, Lon: -95.3698}, // Downtown
				{Lat: 29.7355, Lon: -95.2627}, // Ship Channel
			},
		},
		{
			Name:     "Phoenix",
			Priority: 2,
			Points: []Point{
				{Lat: 33.4484, Lon: -112.0740}, // Downtown
			},
		},
		{
			Name:     "Toronto",
			Priority: 2,
			Points: []Point{
				{Lat: 43.6532, Lon: -79.3832}, // Downtown
			},
		},
		{
			Name:     "Mexico City",
			Priority: 2,
			Points: []Point{
				{Lat: 19.4326, Lon: -99.1332}, // Zocalo
			},
		},
		{
			Name:     "Denver",
			Priority: 3,
			Points: []Point{
				{Lat: 39.7392, Lon: -104.9903}, // Downtown
			},
		},
		{
			Name:     "Seattle",
			Priority: 3,
			Points: []Point{
				{Lat: 47.6062, Lon: -122.3321}, // Downtown
			},
		},
		{
			Name:     "Atlanta",
			Priority: 3,
			Points: []Point{
				{Lat: 33.7490, Lon: -84.3880}, // Downtown
			},
		},
	}
}

// AllPoints returns all points from all targets, ordered by priority.
func (c RefreshConfig) AllPoints() []Point {
	targets := make([]RefreshTarget, len(c.Targets))
	copy(targets, c.Targets)
	sort.SliceStable(targets, func(i, j int) bool { return targets[i].Priority < targets[j].Priority })

	var points []Point
	for _, target := range targets {
		points = append(points, target.Points...)
	}
	return points
}

// TotalPoints returns the total number of points to warm.
func (c RefreshConfig) TotalPoints() int {
	total := 0
	for _, target := range c.Targets {
		total += len(target.Points)
	}
	return total
}
