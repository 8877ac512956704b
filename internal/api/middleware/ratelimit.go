package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/clearskies/clearskies/internal/api/models"
)

// RateLimit is a request budget per sliding window.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// PerMinute returns a budget of n requests per minute.
func PerMinute(n int) RateLimit {
	return RateLimit{Requests: n, Window: time.Minute}
}

// RateLimits holds the budget of each endpoint category.
type RateLimits struct {
	// Token covers device token issuance and is always keyed by IP.
	Token RateLimit
	// Dashboard covers POST /dashboard, which fans out to every source and
	// the language model.
	Dashboard RateLimit
	// Sections covers the per-section data endpoints.
	Sections RateLimit
	// Admin covers /admin and is keyed by IP.
	Admin RateLimit
}

// DefaultRateLimits returns the production budgets.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		Token:     PerMinute(10),
		Dashboard: PerMinute(30),
		Sections:  PerMinute(100),
		Admin:     PerMinute(100),
	}
}

// WithDefaults replaces unset budgets with the production ones.
func (l RateLimits) WithDefaults() RateLimits {
	d := DefaultRateLimits()
	fill := func(dst *RateLimit, def RateLimit) {
		if dst.Requests <= 0 {
			dst.Requests = def.Requests
		}
		if dst.Window <= 0 {
			dst.Window = def.Window
		}
	}
	fill(&l.Token, d.Token)
	fill(&l.Dashboard, d.Dashboard)
	fill(&l.Sections, d.Sections)
	fill(&l.Admin, d.Admin)
	return l
}

// LimitByIP limits by client IP, as resolved by chi's RealIP.
func LimitByIP(limit RateLimit) func(http.Handler) http.Handler {
	return newLimiter(limit, httprate.KeyByRealIP)
}

// LimitByCaller limits device-token callers per device, so a phone keeps its
// budget across networks. API key and anonymous callers are limited per IP.
func LimitByCaller(limit RateLimit) func(http.Handler) http.Handler {
	return newLimiter(limit, keyByDeviceOrIP)
}

func newLimiter(limit RateLimit, key httprate.KeyFunc) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(math.Ceil(limit.Window.Seconds())))
	return httprate.Limit(
		limit.Requests,
		limit.Window,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			// httprate does not expose the window reset, so ask for a full window
			w.Header().Set("Retry-After", retryAfter)

			problem := models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.")
			problem.Instance = r.URL.Path
			problem.Write(w)
		}),
	)
}

func keyByDeviceOrIP(r *http.Request) (string, error) {
	if deviceID := GetDeviceID(r.Context()); deviceID != "" {
		return "device:" + deviceID, nil
	}
	return httprate.KeyByRealIP(r)
}
