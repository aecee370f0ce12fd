package handlers

import (
	"errors"
	"net/http"

	"github.com/MrSnakeDoc/pagewatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pagewatch/internal/logger"
	"github.com/MrSnakeDoc/pagewatch/internal/scheduler"
)

// RunJob forces one pass of a periodic job and returns its result.
// A pass already in flight yields 409.
func RunJob(d deps.Deps, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := d.Jobs.Run(r.Context(), name)
		switch {
		case errors.Is(err, scheduler.ErrAlreadyRunning):
			writeError(w, d.Logger, http.StatusConflict, err.Error())
		case errors.Is(err, scheduler.ErrUnknownJob):
			writeError(w, d.Logger, http.StatusNotFound, err.Error())
		case err != nil:
			d.Logger.Error("forced job failed",
				logger.String("job", name),
				logger.Error(err))
			writeError(w, d.Logger, http.StatusInternalServerError, err.Error())
		default:
			writeJSON(w, d.Logger, http.StatusOK, out)
		}
	}
}

type schedulerStatusResponse struct {
	Jobs []scheduler.JobStatus `json:"jobs"`
}

func SchedulerStatus(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, d.Logger, http.StatusOK, schedulerStatusResponse{Jobs: d.Jobs.Status()})
	}
}
