package worker

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule parses a cron spec with an optional leading seconds field.
func ParseSchedule(spec string) (cron.Schedule, error) {
	return scheduleParser.Parse(spec)
}

// NewScheduler returns a stopped cron that runs the full refresh on spec.
// A run still in progress when the next one is due is skipped.
func NewScheduler(ctx context.Context, spec string, job *RefreshJob, logger zerolog.Logger) (*cron.Cron, error) {
	c := cron.New(
		cron.WithParser(scheduleParser),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})),
		cron.WithLogger(cronLogger{logger}),
	)

	_, err := c.AddFunc(spec, func() {
		if err := job.Run(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("scheduled refresh finished with errors")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("error scheduling refresh job: %w", err)
	}
	return c, nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
