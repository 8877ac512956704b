package dashboard

import (
	"context"
	"fmt"

	"github.com/clearskies/clearskies/internal/alerts"
	"github.com/clearskies/clearskies/internal/aqi"
	"github.com/clearskies/clearskies/internal/forecast"
	"github.com/clearskies/clearskies/internal/historical"
)

// Current returns the current AQI block and source comparison.
func (a *Aggregator) Current(ctx context.Context, lat, lon float64) (*CurrentResponse, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}

	snap := a.fetch(ctx, lat, lon, partAll)
	sc := a.score(snap)
	now := a.now().UTC()

	return &CurrentResponse{
		Location:   snap.location,
		CurrentAQI: a.currentBlock(sc, snap, now),
		Sources:    a.sourcesBlock(sc, snap),
		Timestamp:  now,
	}, nil
}

// Forecast projects the ground PM2.5 index over hours.
func (a *Aggregator) Forecast(ctx context.Context, lat, lon float64, hours int) (*forecast.Result, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}

	sc := a.score(a.fetch(ctx, lat, lon, partGround))
	result := a.forecaster.Generate(ctx, lat, lon, sc.forecastBaseline(), hours)
	return &result, nil
}

// Historical builds the series for the last days days.
func (a *Aggregator) Historical(ctx context.Context, lat, lon float64, days int) (*historical.Result, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}

	result := a.historical.Build(ctx, lat, lon, days)
	return &result, nil
}

// Alerts scores the satellite and ground sources and derives alerts from
// the higher of the two.
func (a *Aggregator) Alerts(ctx context.Context, lat, lon float64, sensitiveGroup bool) (*alerts.Result, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}

	sc := a.score(a.fetch(ctx, lat, lon, partSatellite|partGround))
	result := alerts.ForGroup(sc.result.Index, sensitiveGroup, a.now())
	return &result, nil
}

// Warm scores the satellite and ground sources at the point and upserts
// today's reading into the history store. Unlike a dashboard request it
// refuses to store the default index when nothing was measured.
func (a *Aggregator) Warm(ctx context.Context, lat, lon float64) (*aqi.Result, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}
	if a.history == nil {
		return nil, fmt.Errorf("warm %.2f,%.2f: no history store", lat, lon)
	}

	sc := a.score(a.fetch(ctx, lat, lon, partSatellite|partGround))
	if !sc.measured() {
		return nil, ErrNoData
	}
	if err := a.history.Record(ctx, lat, lon, sc.result, sc.pollutants(), WarmSource); err != nil {
		return nil, err
	}
	return &sc.result, nil
}
