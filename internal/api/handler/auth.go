package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/clearskies/clearskies/internal/api/models"
	"github.com/clearskies/clearskies/internal/api/response"
	"github.com/clearskies/clearskies/internal/auth"
)

// AuthHandler handles device token endpoints.
type AuthHandler struct {
	authService *auth.Service
	logger      zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *auth.Service, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// IssueDeviceToken handles POST /api/auth/device-token.
func (h *AuthHandler) IssueDeviceToken(w http.ResponseWriter, r *http.Request) {
	var req auth.DeviceTokenRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		response.DecodeError(w, r, err, models.CodeValidation, "invalid JSON body")
		return
	}

	// Validate request
	if errs := req.Validate(); len(errs) > 0 {
		fieldErrors := make([]models.FieldError, len(errs))
		for i, e := range errs {
			fieldErrors[i] = models.FieldError{
				Field:   e.Field,
				Message: e.Message,
				Code:    e.Code,
			}
		}
		response.BadRequest(w, r, models.CodeValidation, "validation error", fieldErrors)
		return
	}

	tokenResp, err := h.authService.IssueDeviceToken(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrNotConfigured):
			response.ServiceUnavailable(w, r, "device tokens are disabled because no API key is configured")
		case errors.Is(err, auth.ErrDeviceRevoked):
			response.Forbidden(w, r, "device has been revoked")
		default:
			h.logger.Error().Err(err).Str("device_id", req.DeviceID).Msg("issuing device token failed")
			response.InternalError(w, r, "token issue failed")
		}
		return
	}

	response.OK(w, r, tokenResp)
}

// GetDevice handles GET /admin/devices/{deviceId}.
func (h *AuthHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
	device, err := h.authService.GetDevice(r.Context(), chi.URLParam(r, "deviceId"))
	if err != nil {
		h.writeDeviceError(w, r, err)
		return
	}
	response.OK(w, r, device)
}

// RevokeDevice handles DELETE /admin/devices/{deviceId}.
func (h *AuthHandler) RevokeDevice(w http.ResponseWriter, r *http.Request) {
	if err := h.authService.RevokeDevice(r.Context(), chi.URLParam(r, "deviceId")); err != nil {
		h.writeDeviceError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

func (h *AuthHandler) writeDeviceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, auth.ErrDeviceNotFound) {
		response.NotFound(w, r, "device not found")
		return
	}
	h.logger.Error().Err(err).Msg("device lookup failed")
	response.InternalError(w, r, "device lookup failed")
}
