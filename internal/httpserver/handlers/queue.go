package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/pagewatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pagewatch/internal/queue"
)

type queueResponse struct {
	Depth   queue.Depth `json:"depth"`
	Pending []queue.Job `json:"pending"`
}

func QueueOverview(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		depth, err := d.Queue.Depth(r.Context())
		if err != nil {
			writeError(w, d.Logger, http.StatusServiceUnavailable, err.Error())
			return
		}
		pending, err := d.Queue.ListPending(r.Context())
		if err != nil {
			writeError(w, d.Logger, http.StatusServiceUnavailable, err.Error())
			return
		}
		if pending == nil {
			pending = []queue.Job{}
		}
		writeJSON(w, d.Logger, http.StatusOK, queueResponse{Depth: depth, Pending: pending})
	}
}

func QueueJob(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := d.Queue.Fetch(r.Context(), chi.URLParam(r, "jobID"))
		switch {
		case errors.Is(err, queue.ErrJobNotFound):
			writeError(w, d.Logger, http.StatusNotFound, "job not found")
		case err != nil:
			writeError(w, d.Logger, http.StatusServiceUnavailable, err.Error())
		default:
			writeJSON(w, d.Logger, http.StatusOK, job)
		}
	}
}
