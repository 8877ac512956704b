package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearskies/clearskies/internal/worker"
)

func TestParseSchedule(t *testing.T) {
	from := time.Date(2025, 10, 1, 18, 7, 0, 0, time.UTC)

	tests := []struct {
		spec string
		next time.Time
	}{
		{"0 */30 * * * *", time.Date(2025, 10, 1, 18, 30, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2025, 10, 1, 18, 15, 0, 0, time.UTC)},
		{"@hourly", time.Date(2025, 10, 1, 19, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			schedule, err := worker.ParseSchedule(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.next, schedule.Next(from))
		})
	}

	_, err := worker.ParseSchedule("every half hour")
	assert.Error(t, err)
}

func TestNewScheduler(t *testing.T) {
	job := worker.NewRefreshJob(worker.RefreshJobConfig{Logger: zerolog.Nop()})

	c, err := worker.NewScheduler(context.Background(), "@every 1h", job, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)

	_, err = worker.NewScheduler(context.Background(), "61 * * * *", job, zerolog.Nop())
	assert.Error(t, err)
}
