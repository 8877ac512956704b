package dashboard

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clearskies/clearskies/internal/airquality"
	"github.com/clearskies/clearskies/internal/aqi"
	"github.com/clearskies/clearskies/internal/breathscore"
	"github.com/clearskies/clearskies/internal/featureflags"
	"github.com/clearskies/clearskies/internal/geocode"
	"github.com/clearskies/clearskies/internal/satellite"
	"github.com/clearskies/clearskies/internal/source"
	"github.com/clearskies/clearskies/internal/weather"
	"github.com/clearskies/clearskies/internal/wildfire"
)

// Source comparison constants.
const (
	AggregationMethod = "max_pollutant"
	SatelliteWeight   = 0.4
	GroundWeight      = 0.6

	SatelliteCoverage    = "regional"
	SatelliteResolution  = "2km x 4.5km"
	SatelliteSourceLabel = "TEMPO Satellite"
	SatelliteUnit        = "ppb"

	reasonDisabled = "disabled by feature flag"
	levelUnknown   = "Unknown"
)

// snapshot holds one concurrent fetch of every source. Each goroutine
// writes only its own fields.
type snapshot struct {
	satellite satellite.Reading
	ground    airquality.GroundResult
	weather   weather.CurrentResult
	wildfire  wildfire.Result
	location  geocode.Location

	satelliteTook time.Duration
	groundTook    time.Duration
	weatherTook   time.Duration
}

// part selects which sources a fetch calls.
type part uint8

const (
	partSatellite part = 1 << iota
	partGround
	partWeather
	partLocation
	partWildfire

	partAll = partSatellite | partGround | partWeather | partLocation | partWildfire
)

func (a *Aggregator) fetch(ctx context.Context, lat, lon float64, want part) snapshot {
	at := a.now().UTC()
	s := snapshot{
		satellite: satellite.Reading{Availability: source.Unavailable(source.Satellite, source.ReasonNotConfigured, at)},
		ground:    airquality.GroundResult{Availability: source.Unavailable(source.GroundSensor, source.ReasonNotConfigured, at)},
		weather:   weather.CurrentResult{Availability: source.Unavailable(source.Weather, source.ReasonNotConfigured, at)},
		wildfire: wildfire.Result{
			Availability: source.Unavailable(source.Wildfire, source.ReasonNotConfigured, at),
			Fires:        []wildfire.Fire{},
		},
		location: geocode.Fallback(lat, lon),
	}

	var g errgroup.Group
	if a.satellite != nil && want&partSatellite != 0 {
		if a.enabled(ctx, featureflags.FlagSatelliteSource) {
			g.Go(func() error {
				start := time.Now()
				s.satellite = a.satellite.Fetch(ctx, lat, lon)
				s.satelliteTook = time.Since(start)
				return nil
			})
		} else {
			s.satellite.Availability.Reason = reasonDisabled
		}
	}
	if a.ground != nil && want&partGround != 0 {
		g.Go(func() error {
			start := time.Now()
			s.ground = a.ground.Fetch(ctx, lat, lon)
			s.groundTook = time.Since(start)
			return nil
		})
	}
	if a.weather != nil && want&partWeather != 0 {
		g.Go(func() error {
			start := time.Now()
			s.weather = a.weather.Current(ctx, lat, lon)
			s.weatherTook = time.Since(start)
			return nil
		})
	}
	if a.wildfires != nil && want&partWildfire != 0 {
		g.Go(func() error {
			s.wildfire = a.wildfires.Fetch(ctx, lat, lon)
			return nil
		})
	}
	if a.geocoder != nil && want&partLocation != 0 {
		g.Go(func() error {
			s.location = a.geocoder.Resolve(ctx, lat, lon)
			return nil
		})
	}
	_ = g.Wait()

	return s
}

// availabilities covers the sources behind the AQI. Wildfire context is
// reported separately.
func (s snapshot) availabilities() []source.Availability {
	return []source.Availability{s.satellite.Availability, s.ground.Availability, s.weather.Availability}
}

// used lists the sources that answered, in a fixed order.
func (s snapshot) used() []string {
	used := []string{}
	for _, av := range s.availabilities() {
		if av.Available {
			used = append(used, av.Source)
		}
	}
	return used
}

// scored is the AQI computation over one snapshot.
type scored struct {
	result aqi.Result

	// ground holds the scorable ground indexes.
	ground map[aqi.Parameter]int
	// values holds every present concentration. NO2 falls back to the
	// calibrated satellite value when no station reports it.
	values map[aqi.Parameter]float64

	satelliteScored bool
	satelliteAQI    int
	satellitePPB    float64
}

func (a *Aggregator) score(snap snapshot) scored {
	sc := scored{
		ground: make(map[aqi.Parameter]int),
		values: make(map[aqi.Parameter]float64),
	}

	for p, r := range snap.ground.Readings {
		sc.values[p] = r.Value
		if index, ok := aqi.Calculate(p, r.Value); ok {
			sc.ground[p] = index
		}
	}

	var extra []aqi.Scored
	if sat := snap.satellite; sat.Availability.Available && sat.NO2 > 0 {
		ppb := a.calibration.PPB(sat.NO2)
		if index, ok := aqi.Calculate(aqi.NO2, ppb); ok {
			sc.satelliteScored = true
			sc.satelliteAQI = index
			sc.satellitePPB = round2(ppb)
			extra = append(extra, aqi.Scored{Parameter: aqi.NO2, Index: index})
			if _, ok := sc.values[aqi.NO2]; !ok {
				sc.values[aqi.NO2] = sc.satellitePPB
			}
		}
	}

	sc.result = aqi.Overall(sc.ground, extra...)
	return sc
}

// pollutants returns the present concentrations keyed by parameter name.
func (sc scored) pollutants() map[string]float64 {
	out := make(map[string]float64, len(sc.values))
	for p, v := range sc.values {
		out[string(p)] = v
	}
	return out
}

// forecastBaseline is the ground PM2.5 index, or the default index when no
// station reports PM2.5.
func (sc scored) forecastBaseline() int {
	if index, ok := sc.ground[aqi.PM25]; ok {
		return index
	}
	return aqi.DefaultIndex
}

// measured reports whether any source produced a scorable reading. When it is
// false the result holds the default index.
func (sc scored) measured() bool {
	return len(sc.ground) > 0 || sc.satelliteScored
}

// groundAQI is the maximum ground index and whether any parameter scored.
func (sc scored) groundAQI() (int, bool) {
	best, ok := 0, false
	for _, index := range sc.ground {
		if !ok || index > best {
			best, ok = index, true
		}
	}
	return best, ok
}

func (a *Aggregator) currentBlock(sc scored, snap snapshot, now time.Time) CurrentAQI {
	flat := make(map[aqi.Parameter]float64, len(aqi.Parameters))
	for _, p := range aqi.Parameters {
		flat[p] = 0
	}

	details := make(map[aqi.Parameter]PollutantDetail, len(sc.values))
	for p, r := range snap.ground.Readings {
		flat[p] = round2(r.Value)
		details[p] = detail(p, r.Value, r.Unit, r.StationCount, r.SourceName, sc.ground)
	}
	if _, ok := snap.ground.Readings[aqi.NO2]; !ok && sc.satelliteScored {
		flat[aqi.NO2] = sc.satellitePPB
		details[aqi.NO2] = detail(aqi.NO2, sc.satellitePPB, SatelliteUnit, 0, SatelliteSourceLabel,
			map[aqi.Parameter]int{aqi.NO2: sc.satelliteAQI})
	}

	updated := snap.ground.LatestAt
	if updated.IsZero() {
		updated = now
	}

	index := sc.result.Index
	return CurrentAQI{
		AQI:               index,
		Category:          sc.result.Category,
		Level:             sc.result.Category.Label(),
		Color:             aqi.ColorOf(index),
		HealthMessage:     aqi.HealthMessageOf(index),
		DominantPollutant: sc.result.DominantParameter,
		Pollutants:        flat,
		PollutantDetails:  details,
		BreathScore:       breathScore(sc, snap),
		LastUpdated:       updated,
	}
}

// breathScore scores the current reading with the closest fire and the
// current weather when they are known.
func breathScore(sc scored, snap snapshot) breathscore.Score {
	in := breathscore.Input{
		AQI:        sc.result.Index,
		Pollutants: sc.pollutants(),
		WildfireKm: snap.wildfire.ClosestKm(),
	}
	if obs := snap.weather.Observation; obs != nil {
		humidity, temperature := obs.Humidity, obs.Temperature
		in.Humidity = &humidity
		in.Temperature = &temperature
	}
	return breathscore.Calculate(in)
}

func detail(p aqi.Parameter, value float64, unit string, stations int, src string, indexes map[aqi.Parameter]int) PollutantDetail {
	d := PollutantDetail{
		Value:        round2(value),
		Unit:         unit,
		Name:         aqi.DisplayName(p),
		FullName:     aqi.FullName(p),
		Level:        levelUnknown,
		Color:        aqi.UnknownColor,
		StationCount: stations,
		Source:       src,
	}
	if index, ok := indexes[p]; ok {
		d.AQI = index
		d.Level = aqi.CategoryOf(index).Label()
		d.Color = aqi.ColorOf(index)
	}
	return d
}

func (a *Aggregator) sourcesBlock(sc scored, snap snapshot) Sources {
	sat := SatelliteSource{
		Availability:      snap.satellite.Availability,
		Coverage:          SatelliteCoverage,
		SpatialResolution: SatelliteResolution,
	}
	if sc.satelliteScored {
		sat.AQI = sc.satelliteAQI
		sat.NO2Column = snap.satellite.NO2
		sat.NO2PPB = sc.satellitePPB
		sat.Unit = snap.satellite.Unit
		sat.Product = snap.satellite.Product
		sat.DistanceKm = round2(snap.satellite.DistanceKm)
		sat.ObservedAt = snap.satellite.ObservedAt
	}

	ground := GroundSource{
		Availability: snap.ground.Availability,
		StationCount: snap.ground.StationCount,
		LatestAt:     snap.ground.LatestAt,
	}
	if index, ok := sc.groundAQI(); ok {
		ground.AQI = index
	}
	if n := snap.ground.Nearest; n != nil {
		ground.NearestStation = &Station{Name: n.Name, Operator: n.Operator, DistanceKm: round2(n.DistanceKm)}
	}

	used := []string{}
	for _, av := range []source.Availability{sat.Availability, ground.Availability} {
		if av.Available {
			used = append(used, av.Source)
		}
	}

	return Sources{
		Satellite: sat,
		Ground:    ground,
		Weather:   snap.weather.Availability,
		Aggregated: Aggregated{
			AQI:               sc.result.Index,
			Method:            AggregationMethod,
			Weights:           Weights{Satellite: SatelliteWeight, Ground: GroundWeight},
			WeightsDecorative: true,
			Confidence:        blendedConfidence(sat.Availability, ground.Availability),
			SourcesUsed:       used,
		},
	}
}

func blendedConfidence(sat, ground source.Availability) float64 {
	switch {
	case sat.Available && ground.Available:
		return source.BlendedConfidence
	case sat.Available:
		return sat.Confidence
	case ground.Available:
		return ground.Confidence
	default:
		return 0
	}
}

func weatherBlock(r weather.CurrentResult) Weather {
	w := Weather{Available: r.Availability.Available, Reason: r.Availability.Reason}
	obs := r.Observation
	if obs == nil {
		w.Available = false
		return w
	}
	w.Temperature = obs.Temperature
	w.Humidity = obs.Humidity
	w.Pressure = obs.Pressure
	w.WindSpeed = obs.WindSpeed
	w.WindDirection = obs.WindDirection
	w.Conditions = string(obs.Condition)
	w.Description = obs.Description
	w.Visibility = obs.Visibility
	w.ObservedAt = obs.ObservedAt
	return w
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
