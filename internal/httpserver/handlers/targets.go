package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/MrSnakeDoc/pagewatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pagewatch/internal/logger"
	"github.com/MrSnakeDoc/pagewatch/internal/queue"
	"github.com/MrSnakeDoc/pagewatch/internal/store"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// CheckTarget runs a check now and answers with its outcome. It answers 409
// while a queued job holds the target. The check is not cancelled if the
// client goes away.
func CheckTarget(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := targetID(r)
		if !ok {
			writeError(w, d.Logger, http.StatusBadRequest, "invalid target id")
			return
		}

		ctx := context.WithoutCancel(r.Context())
		lease, err := d.Queue.Acquire(ctx, id)
		if err != nil {
			d.Logger.Error("failed to claim target for manual check",
				logger.Int64("target_id", id),
				logger.Error(err))
			writeError(w, d.Logger, http.StatusServiceUnavailable, err.Error())
			return
		}
		if !lease.Acquired {
			writeJSON(w, d.Logger, http.StatusConflict, map[string]any{
				"error":  "a check is already queued or running for this target",
				"job_id": lease.Holder,
			})
			return
		}
		defer func() {
			if err := d.Queue.Release(ctx, lease); err != nil {
				d.Logger.Warn("failed to release target after manual check",
					logger.Int64("target_id", id),
					logger.Error(err))
			}
		}()

		res, err := d.Checker.Run(ctx, id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, d.Logger, http.StatusNotFound, "target not found")
		case err != nil:
			d.Logger.Error("manual check failed",
				logger.Int64("target_id", id),
				logger.Error(err))
			writeJSON(w, d.Logger, http.StatusInternalServerError, res)
		default:
			writeJSON(w, d.Logger, http.StatusOK, res)
		}
	}
}

// EnqueueTarget queues a check unless one is already pending or running.
func EnqueueTarget(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := targetID(r)
		if !ok {
			writeError(w, d.Logger, http.StatusBadRequest, "invalid target id")
			return
		}
		if _, err := d.Records.GetTarget(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, d.Logger, http.StatusNotFound, "target not found")
				return
			}
			writeError(w, d.Logger, http.StatusInternalServerError, err.Error())
			return
		}

		res, err := d.Queue.EnqueueUnique(r.Context(), id, queue.SourceManual)
		if err != nil {
			d.Logger.Error("manual enqueue failed",
				logger.Int64("target_id", id),
				logger.Error(err))
			writeError(w, d.Logger, http.StatusServiceUnavailable, err.Error())
			return
		}

		status := http.StatusAccepted
		if res.Skipped {
			status = http.StatusOK
		}
		writeJSON(w, d.Logger, status, res)
	}
}

// TargetHistory lists check records newest first. ?limit= caps the count.
func TargetHistory(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := targetID(r)
		if !ok {
			writeError(w, d.Logger, http.StatusBadRequest, "invalid target id")
			return
		}

		limit := defaultHistoryLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeError(w, d.Logger, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = min(n, maxHistoryLimit)
		}

		if _, err := d.Records.GetTarget(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, d.Logger, http.StatusNotFound, "target not found")
				return
			}
			writeError(w, d.Logger, http.StatusInternalServerError, err.Error())
			return
		}

		checks, err := d.Records.ListChecks(r.Context(), id, limit)
		if err != nil {
			writeError(w, d.Logger, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, d.Logger, http.StatusOK, checks)
	}
}
