package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clearskies/clearskies/internal/aqi"
	"github.com/clearskies/clearskies/internal/dashboard"
)

// Job types accepted by Handle.
const (
	JobRefresh          = "refresh"
	JobSatelliteRefresh = "satellite_refresh"
	JobHistoryWarmup    = "history_warmup"
	JobHealthCheck      = "health_check"
)

// ErrUnknownJob is returned by Handle for job types it does not know.
var ErrUnknownJob = errors.New("unknown job type")

// SnapshotRefresher downloads a new satellite snapshot and returns its name.
// *satellite.Fetcher implements it.
type SnapshotRefresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Warmer scores a point and stores today's reading.
// *dashboard.Aggregator implements it.
type Warmer interface {
	Warm(ctx context.Context, lat, lon float64) (*aqi.Result, error)
}

// RefreshJob runs satellite refreshes and history warm-ups.
type RefreshJob struct {
	config RefreshConfig
	logger zerolog.Logger

	// Optional, nil if not configured
	snapshots SnapshotRefresher
	warmer    Warmer

	metrics *RefreshMetrics
}

// RefreshMetrics tracks refresh job statistics.
type RefreshMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalRefreshes    int64
	SuccessfulRefresh int64
	FailedRefreshes   int64
	SnapshotRefreshes int64
	SnapshotFailures  int64
	SkippedNoData     int64

	// Timings
	LastRefreshAt       time.Time
	LastRefreshDuration time.Duration
	TotalDuration       time.Duration
	LastSnapshot        string
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Config    RefreshConfig
	Logger    zerolog.Logger
	Snapshots SnapshotRefresher
	Warmer    Warmer
}

// NewRefreshJob creates a new refresh job.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	config := cfg.Config
	if len(config.Targets) == 0 {
		config.Targets = DefaultRefreshTargets()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 3
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &RefreshJob{
		config:    config,
		logger:    cfg.Logger,
		snapshots: cfg.Snapshots,
		warmer:    cfg.Warmer,
		metrics:   &RefreshMetrics{},
	}
}

// RefreshResult contains the result of one run.
type RefreshResult struct {
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	Snapshot    string
	TotalPoints int
	Successful  int
	Failed      int
	NoData      int
	Errors      []RefreshError
}

// RefreshError is one failed step of a run.
type RefreshError struct {
	Step  string
	Point Point
	Error string
}

// Handle runs the job named by jobType.
func (j *RefreshJob) Handle(ctx context.Context, jobType string) error {
	switch jobType {
	case JobRefresh:
		return j.Run(ctx).Err()
	case JobSatelliteRefresh:
		_, err := j.RefreshSatellite(ctx)
		return err
	case JobHistoryWarmup:
		return j.WarmHistory(ctx, j.config.AllPoints()).Err()
	case JobHealthCheck:
		return j.HealthCheck(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, jobType)
	}
}

// Err reports a run as failed when more points failed than succeeded.
// Points without data do not count either way.
func (r *RefreshResult) Err() error {
	if r.Failed > r.Successful {
		return fmt.Errorf("too many warm-up failures: %d/%d", r.Failed, r.TotalPoints)
	}
	for _, e := range r.Errors {
		if e.Step == stepSatellite {
			return fmt.Errorf("satellite refresh failed: %s", e.Error)
		}
	}
	return nil
}

const (
	stepSatellite = "satellite"
	stepWarm      = "warm"
)

// Run refreshes the satellite snapshot and then warms every target point.
func (j *RefreshJob) Run(ctx context.Context) *RefreshResult {
	startTime := time.Now()

	var snapshot string
	var snapshotErr error
	if j.config.RefreshSatellite && j.snapshots != nil {
		snapshot, snapshotErr = j.RefreshSatellite(ctx)
	}

	var result *RefreshResult
	if j.config.WarmHistory {
		result = j.WarmHistory(ctx, j.config.AllPoints())
	} else {
		result = &RefreshResult{}
	}

	result.StartTime = startTime
	result.Snapshot = snapshot
	if snapshotErr != nil {
		result.Errors = append(result.Errors, RefreshError{Step: stepSatellite, Error: snapshotErr.Error()})
	}
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Str("snapshot", result.Snapshot).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int("no_data", result.NoData).
		Msg("refresh job completed")

	return result
}

// RefreshSatellite downloads one snapshot. It is a no-op without a fetcher.
func (j *RefreshJob) RefreshSatellite(ctx context.Context) (string, error) {
	if j.snapshots == nil {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	name, err := j.snapshots.Refresh(ctx)

	j.metrics.mu.Lock()
	if err != nil {
		j.metrics.SnapshotFailures++
	} else {
		j.metrics.SnapshotRefreshes++
		j.metrics.LastSnapshot = name
	}
	j.metrics.mu.Unlock()

	if err != nil {
		j.logger.Error().Err(err).Msg("satellite snapshot refresh failed")
		return "", err
	}
	j.logger.Info().Str("snapshot", name).Msg("satellite snapshot refreshed")
	return name, nil
}

// WarmHistory warms the given points with a bounded worker pool.
func (j *RefreshJob) WarmHistory(ctx context.Context, points []Point) *RefreshResult {
	startTime := time.Now()
	result := &RefreshResult{
		StartTime:   startTime,
		TotalPoints: len(points),
	}

	if j.warmer == nil {
		j.logger.Warn().Msg("history warm-up skipped: no history store")
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(startTime)
		return result
	}

	j.logger.Info().
		Int("total_points", result.TotalPoints).
		Int("concurrency", j.config.Concurrency).
		Msg("starting history warm-up")

	// Create work channels
	pointsChan := make(chan Point, len(points))
	resultsChan := make(chan pointResult, len(points))

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.warmWorker(ctx, pointsChan, resultsChan)
		}()
	}

	for _, p := range points {
		pointsChan <- p
	}
	close(pointsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for pr := range resultsChan {
		switch {
		case pr.err == nil:
			result.Successful++
		case errors.Is(pr.err, dashboard.ErrNoData):
			result.NoData++
		default:
			result.Failed++
			result.Errors = append(result.Errors, RefreshError{
				Step:  stepWarm,
				Point: pr.point,
				Error: pr.err.Error(),
			})
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)
	return result
}

type pointResult struct {
	point Point
	err   error
}

func (j *RefreshJob) warmWorker(ctx context.Context, points <-chan Point, results chan<- pointResult) {
	for point := range points {
		if ctx.Err() != nil {
			results <- pointResult{point: point, err: ctx.Err()}
			continue
		}
		results <- pointResult{point: point, err: j.warmPoint(ctx, point)}
	}
}

func (j *RefreshJob) warmPoint(ctx context.Context, point Point) error {
	pointCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	result, err := j.warmer.Warm(pointCtx, point.Lat, point.Lon)
	if err != nil {
		return err
	}
	j.logger.Debug().
		Float64("lat", point.Lat).
		Float64("lon", point.Lon).
		Int("aqi", result.Index).
		Msg("history warmed")
	return nil
}

// HealthCheck warms a single point to verify source connectivity.
func (j *RefreshJob) HealthCheck(ctx context.Context) error {
	points := j.config.AllPoints()
	if len(points) == 0 {
		return nil
	}

	result := j.WarmHistory(ctx, points[:1])
	if result.Failed > 0 {
		return fmt.Errorf("health check failed: %s", result.Errors[0].Error)
	}
	return nil
}

func (j *RefreshJob) updateMetrics(result *RefreshResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRefreshes++
	j.metrics.SuccessfulRefresh += int64(result.Successful)
	j.metrics.FailedRefreshes += int64(result.Failed)
	j.metrics.SkippedNoData += int64(result.NoData)
	j.metrics.LastRefreshAt = result.EndTime
	j.metrics.LastRefreshDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *RefreshJob) GetMetrics() RefreshMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return RefreshMetrics{
		TotalRefreshes:      j.metrics.TotalRefreshes,
		SuccessfulRefresh:   j.metrics.SuccessfulRefresh,
		FailedRefreshes:     j.metrics.FailedRefreshes,
		SnapshotRefreshes:   j.metrics.SnapshotRefreshes,
		SnapshotFailures:    j.metrics.SnapshotFailures,
		SkippedNoData:       j.metrics.SkippedNoData,
		LastRefreshAt:       j.metrics.LastRefreshAt,
		LastRefreshDuration: j.metrics.LastRefreshDuration,
		TotalDuration:       j.metrics.TotalDuration,
		LastSnapshot:        j.metrics.LastSnapshot,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *RefreshJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_refreshes":       m.TotalRefreshes,
		"successful_refreshes":  m.SuccessfulRefresh,
		"failed_refreshes":      m.FailedRefreshes,
		"snapshot_refreshes":    m.SnapshotRefreshes,
		"snapshot_failures":     m.SnapshotFailures,
		"skipped_no_data":       m.SkippedNoData,
		"last_snapshot":         m.LastSnapshot,
		"last_refresh_at":       m.LastRefreshAt,
		"last_refresh_duration": m.LastRefreshDuration.String(),
		"total_duration":        m.TotalDuration.String(),
	}
}
