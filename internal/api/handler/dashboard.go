package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/clearskies/clearskies/internal/alerts"
	"github.com/clearskies/clearskies/internal/api/models"
	"github.com/clearskies/clearskies/internal/api/response"
	"github.com/clearskies/clearskies/internal/dashboard"
	"github.com/clearskies/clearskies/internal/forecast"
	"github.com/clearskies/clearskies/internal/historical"
	"github.com/clearskies/clearskies/internal/narration"
)

// DashboardService is the aggregation surface behind the data endpoints.
// *dashboard.Aggregator implements it.
type DashboardService interface {
	Dashboard(ctx context.Context, req dashboard.Request) (*dashboard.Payload, error)
	Current(ctx context.Context, lat, lon float64) (*dashboard.CurrentResponse, error)
	Forecast(ctx context.Context, lat, lon float64, hours int) (*forecast.Result, error)
	Historical(ctx context.Context, lat, lon float64, days int) (*historical.Result, error)
	Alerts(ctx context.Context, lat, lon float64, sensitiveGroup bool) (*alerts.Result, error)
	Health(ctx context.Context) dashboard.HealthReport
}

// DashboardHandler handles the dashboard and per-section data endpoints.
type DashboardHandler struct {
	service DashboardService
	logger  zerolog.Logger
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(service DashboardService, logger zerolog.Logger) *DashboardHandler {
	return &DashboardHandler{
		service: service,
		logger:  logger,
	}
}

// Dashboard handles POST /dashboard - the full payload with narration.
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	var req models.DashboardRequest
	lat, lon, ok := decodeLocation(w, r, &req, &req.Location)
	if !ok {
		return
	}

	// A device token names the device; the body may only repeat it
	deviceID := req.DeviceID
	if tokenDevice := GetDeviceID(r.Context()); tokenDevice != "" {
		deviceID = tokenDevice
	}

	h.logger.Info().
		Float64("lat", lat).
		Float64("lon", lon).
		Str("device_id", deviceID).
		Str("persona", req.Persona).
		Msg("dashboard requested")

	payload, err := h.service.Dashboard(r.Context(), dashboard.Request{
		Lat:            lat,
		Lon:            lon,
		Persona:        req.Persona,
		DeviceID:       deviceID,
		SensitiveGroup: req.UserPreferences != nil && req.UserPreferences.SensitiveGroup,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, r, payload)
}

// Current handles POST /api/air-quality/current.
func (h *DashboardHandler) Current(w http.ResponseWriter, r *http.Request) {
	var req models.Location
	lat, lon, ok := decodeLocation(w, r, &req, &req)
	if !ok {
		return
	}

	current, err := h.service.Current(r.Context(), lat, lon)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, r, current)
}

// Forecast handles POST /api/forecast.
func (h *DashboardHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	var req models.ForecastRequest
	lat, lon, ok := decodeLocation(w, r, &req, &req.Location)
	if !ok {
		return
	}

	result, err := h.service.Forecast(r.Context(), lat, lon, forecast.NormalizeHours(req.Hours))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, r, result)
}

// Alerts handles POST /api/alerts.
func (h *DashboardHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	var req models.AlertsRequest
	lat, lon, ok := decodeLocation(w, r, &req, &req.Location)
	if !ok {
		return
	}

	result, err := h.service.Alerts(r.Context(), lat, lon, req.SensitiveGroup)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, r, result)
}

// Historical handles POST /api/historical.
func (h *DashboardHandler) Historical(w http.ResponseWriter, r *http.Request) {
	var req models.HistoricalRequest
	lat, lon, ok := decodeLocation(w, r, &req, &req.Location)
	if !ok {
		return
	}

	result, err := h.service.Historical(r.Context(), lat, lon, req.Days())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, r, result)
}

// Personas handles GET /api/personas.
func (h *DashboardHandler) Personas(w http.ResponseWriter, r *http.Request) {
	response.OK(w, r, map[string]any{
		"personas": narration.Personas(),
		"default":  narration.PersonaGeneral,
	})
}

// Health handles GET /api/health - probes every source at a fixed location.
// The report is returned unwrapped and always with 200; callers read status.
func (h *DashboardHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.service.Health(r.Context()))
}

func (h *DashboardHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if !writeLocationError(w, r, err) {
		h.logger.Error().
			Err(err).
			Str("request_id", GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		response.InternalError(w, r, "Internal server error")
	}
}

// writeLocationError writes the problem for a location validation error and
// reports whether err was one.
func writeLocationError(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case errors.Is(err, dashboard.ErrOutOfBounds):
		response.BadRequest(w, r, models.CodeOutOfBounds,
			"Latitude must be between -90 and 90, longitude between -180 and 180", nil)
	case errors.Is(err, dashboard.ErrInvalidLocation), errors.Is(err, models.ErrInvalidLocation):
		response.BadRequest(w, r, models.CodeInvalidLocation, "Latitude and longitude must be valid numbers", nil)
	default:
		return false
	}
	return true
}

// decodeLocation decodes the body into dst and parses loc, which must point
// into dst. Range checks happen here so that nothing downstream is called
// for an invalid location. On failure the problem has been written.
func decodeLocation(w http.ResponseWriter, r *http.Request, dst any, loc *models.Location) (lat, lon float64, ok bool) {
	if err := response.DecodeJSON(r, dst); err != nil && !errors.Is(err, response.ErrEmptyBody) {
		response.DecodeError(w, r, err, models.CodeMissingLocation, "Request body must be a JSON object with latitude and longitude")
		return 0, 0, false
	}

	lat, lon, err := loc.Coordinates()
	if errors.Is(err, models.ErrMissingLocation) {
		response.BadRequest(w, r, models.CodeMissingLocation, "Latitude and longitude are required", nil)
		return 0, 0, false
	}
	if err == nil {
		err = dashboard.ValidateCoordinates(lat, lon)
	}
	if err != nil {
		if !writeLocationError(w, r, err) {
			response.BadRequest(w, r, models.CodeInvalidLocation, "Latitude and longitude must be valid numbers", nil)
		}
		return 0, 0, false
	}
	return lat, lon, true
}
