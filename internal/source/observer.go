package source

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/clearskies/clearskies/internal/provider/resilience"
)

// RequestRecorder receives per-call metrics. It is satisfied by the
// OpenTelemetry source metrics in the API middleware package.
type RequestRecorder interface {
	RecordRequest(provider, operation string, duration time.Duration, err error)
}

// Observer reports every source call to the health registry, metrics and the log.
// The zero value and a nil *Observer are both usable and record nothing.
type Observer struct {
	Registry *resilience.Registry
	Metrics  RequestRecorder
	Logger   zerolog.Logger
}

// Observe records the outcome of one call that started at start.
func (o *Observer) Observe(name, operation string, start time.Time, err error) {
	if o == nil {
		return
	}
	duration := time.Since(start)

	if o.Metrics != nil {
		o.Metrics.RecordRequest(name, operation, duration, err)
	}

	if err != nil {
		if o.Registry != nil {
			o.Registry.RecordFailure(name, err)
		}
		o.Logger.Warn().
			Err(err).
			Str("provider", name).
			Str("operation", operation).
			Dur("duration", duration).
			Msg("source call failed")
		return
	}

	if o.Registry != nil {
		o.Registry.RecordSuccess(name)
	}
	o.Logger.Debug().
		Str("provider", name).
		Str("operation", operation).
		Dur("duration", duration).
		Msg("source call succeeded")
}

// Reason maps an error to a short availability reason.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, resilience.ErrCircuitOpen):
		return ReasonCircuitOpen
	default:
		return ReasonUpstream
	}
}
