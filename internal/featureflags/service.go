package featureflags

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL bounds how stale a replica's view of the switches can be.
const DefaultCacheTTL = time.Minute

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger
	CacheTTL   time.Duration
	// Defaults replaces the built-in state of the named switches. Unknown
	// keys are ignored.
	Defaults map[string]bool
}

// Service evaluates switches from a cached snapshot of the overrides. When
// the repository fails the last good snapshot keeps serving, or the
// defaults when there is none, so a database outage never flips a switch.
type Service struct {
	repo     Repository
	logger   zerolog.Logger
	ttl      time.Duration
	defaults map[string]bool
	now      func() time.Time

	loads singleflight.Group

	mu       sync.RWMutex
	snapshot map[string]Override
	loadedAt time.Time
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	defaults := Defaults()
	for k, v := range cfg.Defaults {
		if IsKnown(k) {
			defaults[k] = v
		}
	}

	return &Service{
		repo:     cfg.Repository,
		logger:   cfg.Logger,
		ttl:      ttl,
		defaults: defaults,
		now:      time.Now,
	}
}

// IsEnabled reports the effective state of key. Unknown keys are off.
func (s *Service) IsEnabled(ctx context.Context, key string) bool {
	if o, ok := s.overrides(ctx)[key]; ok {
		return o.Enabled
	}
	return s.defaults[key]
}

// LiveForecastEnabled reports whether forecasts may use weather data.
func (s *Service) LiveForecastEnabled(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagLiveForecast)
}

// Flags returns every switch in display order.
func (s *Service) Flags(ctx context.Context) []Flag {
	overrides := s.overrides(ctx)
	out := make([]Flag, 0, len(Definitions))
	for _, d := range Definitions {
		f := Flag{Key: d.Key, Enabled: s.defaults[d.Key], Description: d.Description}
		if o, ok := overrides[d.Key]; ok {
			f.Enabled = o.Enabled
			f.Overridden = true
			f.Reason = o.Reason
			f.UpdatedAt = o.UpdatedAt
		}
		out = append(out, f)
	}
	return out
}

// Disabled returns the keys of switches currently off, sorted.
func (s *Service) Disabled(ctx context.Context) []string {
	var out []string
	for _, f := range s.Flags(ctx) {
		if !f.Enabled {
			out = append(out, f.Key)
		}
	}
	sort.Strings(out)
	return out
}

// Set stores changes with reason and drops the snapshot so this replica
// sees them immediately. Other replicas pick them up within the cache TTL.
func (s *Service) Set(ctx context.Context, changes map[string]bool, reason string) error {
	now := s.now().UTC()
	list := make([]Override, 0, len(changes))
	for k, v := range changes {
		list = append(list, Override{Key: k, Enabled: v, Reason: reason, UpdatedAt: now})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })

	if err := s.repo.Save(ctx, list); err != nil {
		return err
	}
	s.InvalidateCache()
	return nil
}

// InvalidateCache forces the next evaluation to reload the overrides.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	s.loadedAt = time.Time{}
	s.mu.Unlock()
}

func (s *Service) overrides(ctx context.Context) map[string]Override {
	if snapshot, fresh := s.cached(); fresh {
		return snapshot
	}

	// Concurrent requests share one load. The load is detached from the
	// first caller's cancellation so its result serves everyone.
	v, _, _ := s.loads.Do("overrides", func() (interface{}, error) {
		if snapshot, fresh := s.cached(); fresh {
			return snapshot, nil
		}

		loaded, err := s.repo.Overrides(context.WithoutCancel(ctx))
		if err != nil {
			s.logger.Warn().Err(err).Msg("loading feature flag overrides failed, keeping previous state")
			s.mu.Lock()
			// Retry after a full TTL rather than on every request
			s.loadedAt = s.now()
			stale := s.snapshot
			s.mu.Unlock()
			return stale, nil
		}

		s.mu.Lock()
		s.snapshot = loaded
		s.loadedAt = s.now()
		s.mu.Unlock()
		return loaded, nil
	})

	overrides, _ := v.(map[string]Override)
	return overrides
}

func (s *Service) cached() (map[string]Override, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot, s.now().Sub(s.loadedAt) < s.ttl
}
