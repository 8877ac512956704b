package narration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/clearskies/clearskies/internal/source"
)

// Call names used in logs, metrics and cache accounting.
const (
	opSections = "sections"
	opPersona  = "persona_insights"
	opLive     = "live_report"
)

// DefaultTimeout bounds one model call.
const DefaultTimeout = 15 * time.Second

// CacheRecorder counts cache hits and misses.
type CacheRecorder interface {
	RecordCacheHit(provider, operation string)
	RecordCacheMiss(provider, operation string)
}

// Config configures a Service.
type Config struct {
	// Narrator is optional; without it every call falls back.
	Narrator Narrator

	// Limiter is the local call budget. Calls over budget fall back at once.
	Limiter *rate.Limiter

	// Cache is optional.
	Cache    Cache
	CacheTTL time.Duration

	Timeout  time.Duration
	Observer *source.Observer
	Metrics  CacheRecorder
	Logger   zerolog.Logger
}

// Service generates narrations with per-section fallbacks.
type Service struct {
	narrator Narrator
	limiter  *rate.Limiter
	cache    Cache
	cacheTTL time.Duration
	timeout  time.Duration
	observer *source.Observer
	metrics  CacheRecorder
	logger   zerolog.Logger
}

// NewService creates a Service.
func NewService(cfg Config) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	return &Service{
		narrator: cfg.Narrator,
		limiter:  cfg.Limiter,
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
		timeout:  cfg.Timeout,
		observer: cfg.Observer,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

// Configured reports whether a model is wired.
func (s *Service) Configured() bool {
	return s.narrator != nil
}

// Sections narrates every dashboard block with one model call. Sections the
// model omits or gets wrong are replaced individually by their fallback.
func (s *Service) Sections(ctx context.Context, in Input) Sections {
	out := FallbackSections(in)
	out.Fallback = nil

	var answer map[string]json.RawMessage
	prompt, err := SectionsPrompt(in)
	if err == nil {
		var text string
		text, err = s.call(ctx, opSections, prompt)
		if err == nil {
			err = decodeJSON(text, &answer)
		}
	}
	if err != nil {
		s.logFallback(opSections, err, SectionNames)
		out.Fallback = append([]string(nil), SectionNames...)
		return out
	}

	targets := map[string]any{
		SectionAQI:        &out.AQI,
		SectionSources:    &out.Sources,
		SectionWeather:    &out.Weather,
		SectionForecast:   &out.Forecast,
		SectionHistorical: &out.Historical,
		SectionAlerts:     &out.Alerts,
	}
	for _, name := range SectionNames {
		if decodeSection(answer[name], targets[name]) {
			out.Generated = append(out.Generated, name)
		} else {
			out.Fallback = append(out.Fallback, name)
		}
	}
	if len(out.Fallback) > 0 {
		s.logFallback(opSections, ErrMalformedResponse, out.Fallback)
	}
	return out
}

// decodeSection decodes raw into a scratch copy of target and only commits it
// when the model filled in the brief text.
func decodeSection(raw json.RawMessage, target any) bool {
	if len(raw) == 0 {
		return false
	}
	switch t := target.(type) {
	case *AQISummary:
		return commit(raw, t, func(v AQISummary) bool { return v.Brief != "" })
	case *SourcesSummary:
		return commit(raw, t, func(v SourcesSummary) bool { return v.Brief != "" })
	case *WeatherSummary:
		return commit(raw, t, func(v WeatherSummary) bool { return v.Brief != "" })
	case *ForecastSummary:
		return commit(raw, t, func(v ForecastSummary) bool { return v.Brief != "" })
	case *HistoricalSummary:
		return commit(raw, t, func(v HistoricalSummary) bool { return v.Brief != "" })
	case *AlertsSummary:
		return commit(raw, t, func(v AlertsSummary) bool { return v.Brief != "" })
	}
	return false
}

func commit[T any](raw json.RawMessage, target *T, ok func(T) bool) bool {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil || !ok(v) {
		return false
	}
	*target = v
	return true
}

// PersonaInsights writes guidance for a persona.
func (s *Service) PersonaInsights(ctx context.Context, t PersonaType, in Input) PersonaInsights {
	fallback := FallbackPersonaInsights(t, in)

	prompt, err := PersonaPrompt(t, in)
	if err != nil {
		s.logFallback(opPersona, err, nil)
		return fallback
	}
	text, err := s.call(ctx, opPersona, prompt)
	if err != nil {
		s.logFallback(opPersona, err, nil)
		return fallback
	}

	var v PersonaInsights
	if err := decodeJSON(text, &v); err != nil || v.ImmediateAction == "" {
		s.logFallback(opPersona, ErrMalformedResponse, nil)
		return fallback
	}
	v.Persona = fallback.Persona
	v.AIGenerated = true
	if v.RiskAssessment.Level == "" {
		v.RiskAssessment.Level = fallback.RiskAssessment.Level
	}
	return v
}

// LiveReport writes a short location report for a persona.
func (s *Service) LiveReport(ctx context.Context, t PersonaType, in Input) LiveReport {
	fallback := FallbackLiveReport(t, in)

	prompt, err := LiveReportPrompt(t, in)
	if err != nil {
		s.logFallback(opLive, err, nil)
		return fallback
	}
	text, err := s.call(ctx, opLive, prompt)
	if err != nil {
		s.logFallback(opLive, err, nil)
		return fallback
	}

	var v LiveReport
	if err := decodeJSON(text, &v); err != nil || v.Headline == "" {
		s.logFallback(opLive, ErrMalformedResponse, nil)
		return fallback
	}
	v.Persona = fallback.Persona
	v.AIGenerated = true
	return v
}

// Narrate runs the batched call and, for a non-default persona, the persona
// and live report calls concurrently.
func (s *Service) Narrate(ctx context.Context, t PersonaType, in Input) (Sections, *PersonaInsights, *LiveReport) {
	var (
		sections Sections
		insights *PersonaInsights
		report   *LiveReport
	)

	var g errgroup.Group
	g.Go(func() error {
		sections = s.Sections(ctx, in)
		return nil
	})
	if !t.Default() {
		g.Go(func() error {
			v := s.PersonaInsights(ctx, t, in)
			insights = &v
			return nil
		})
		g.Go(func() error {
			v := s.LiveReport(ctx, t, in)
			report = &v
			return nil
		})
	}
	_ = g.Wait()

	return sections, insights, report
}

func (s *Service) call(ctx context.Context, op, prompt string) (string, error) {
	if s.narrator == nil {
		return "", ErrNotConfigured
	}

	key := CacheKey(prompt)
	if s.cache != nil {
		value, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Str("operation", op).Msg("narration cache read failed")
		case ok:
			s.recordCache(op, true)
			return value, nil
		default:
			s.recordCache(op, false)
		}
	}

	if s.limiter != nil && !s.limiter.Allow() {
		return "", ErrRateLimited
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	text, err := s.narrator.Generate(ctx, prompt)
	s.observer.Observe(source.Narration, op, start, err)
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", op, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, text, s.cacheTTL); err != nil {
			s.logger.Warn().Err(err).Str("operation", op).Msg("narration cache write failed")
		}
	}
	return text, nil
}

func (s *Service) recordCache(op string, hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.RecordCacheHit(source.Narration, op)
	} else {
		s.metrics.RecordCacheMiss(source.Narration, op)
	}
}

func (s *Service) logFallback(op string, err error, sections []string) {
	event := s.logger.Warn()
	if errors.Is(err, ErrNotConfigured) || errors.Is(err, ErrRateLimited) {
		event = s.logger.Info()
	}
	if len(sections) > 0 {
		event = event.Strs("sections", sections)
	}
	event.Err(err).Str("operation", op).Msg("narration fallback used")
}

// decodeJSON parses a model answer, tolerating Markdown code fences and
// chatter around the JSON object.
func decodeJSON(text string, v any) error {
	body := StripFences(text)
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// StripFences removes a surrounding ``` or ```json fence.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[i+1:]
	} else {
		text = strings.TrimPrefix(text, "json")
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
