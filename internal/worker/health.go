package worker

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/clearskies/clearskies/internal/api/response"
)

// NewHealthRouter serves liveness and job metrics for the worker process.
// POST /run triggers a refresh outside the schedule.
func NewHealthRouter(job *RefreshJob, version string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]interface{}{
			"status":  "healthy",
			"version": version,
		})
	})

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, r, job.MetricsSnapshot())
	})

	r.Post("/run", func(w http.ResponseWriter, r *http.Request) {
		jobType := r.URL.Query().Get("job")
		if jobType == "" {
			jobType = JobRefresh
		}
		err := job.Handle(r.Context(), jobType)
		switch {
		case errors.Is(err, ErrUnknownJob):
			response.BadRequest(w, r, "UNKNOWN_JOB", "unknown job type: "+jobType, nil)
			return
		case err != nil:
			response.InternalError(w, r, err.Error())
			return
		}
		response.OK(w, r, job.MetricsSnapshot())
	})

	return r
}
