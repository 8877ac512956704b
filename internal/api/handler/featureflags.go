package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/clearskies/clearskies/internal/api/models"
	"github.com/clearskies/clearskies/internal/api/response"
	"github.com/clearskies/clearskies/internal/featureflags"
)

// FeatureFlagsHandler serves the admin switch endpoints.
type FeatureFlagsHandler struct {
	service *featureflags.Service
	logger  zerolog.Logger
}

// NewFeatureFlagsHandler creates a new FeatureFlagsHandler.
func NewFeatureFlagsHandler(service *featureflags.Service, logger zerolog.Logger) *FeatureFlagsHandler {
	return &FeatureFlagsHandler{service: service, logger: logger}
}

// ListFeatureFlags handles GET /admin/feature-flags.
func (h *FeatureFlagsHandler) ListFeatureFlags(w http.ResponseWriter, r *http.Request) {
	response.OK(w, r, featureflags.FlagList{Items: h.service.Flags(r.Context())})
}

// UpsertFeatureFlags handles PUT /admin/feature-flags. The update is all or
// nothing: one bad entry rejects the request.
func (h *FeatureFlagsHandler) UpsertFeatureFlags(w http.ResponseWriter, r *http.Request) {
	var req featureflags.FlagUpdateRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		response.DecodeError(w, r, err, models.CodeValidation, "invalid JSON body")
		return
	}

	changes, errs := req.Validate()
	if len(errs) > 0 {
		fieldErrors := make([]models.FieldError, len(errs))
		for i, e := range errs {
			fieldErrors[i] = models.FieldError{Field: e.Field, Message: e.Message, Code: e.Code}
		}
		response.BadRequest(w, r, models.CodeValidation, "validation error", fieldErrors)
		return
	}

	if err := h.service.Set(r.Context(), changes, req.Reason); err != nil {
		h.logger.Error().Err(err).Msg("updating feature flags failed")
		response.InternalError(w, r, "updating feature flags failed")
		return
	}

	event := h.logger.Info().Str("reason", req.Reason)
	for k, v := range changes {
		event = event.Bool(k, v)
	}
	event.Msg("feature flags updated")

	response.OK(w, r, featureflags.FlagList{Items: h.service.Flags(r.Context())})
}

// InvalidateCache handles POST /admin/feature-flags/invalidate. It only
// affects the replica that serves the request.
func (h *FeatureFlagsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateCache()
	response.NoContent(w, r)
}
