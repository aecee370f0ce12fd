package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/pagewatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pagewatch/internal/queue"
)

type componentStatus struct {
	OK     bool   `json:"ok"`
	Mode   string `json:"mode,omitempty"`
	Impact string `json:"impact,omitempty"`
	Error  string `json:"error,omitempty"`
}

type infraResponse struct {
	Mode       string                     `json:"mode"`
	Components map[string]componentStatus `json:"components"`
	Queue      *queue.Depth               `json:"queue,omitempty"`
}

func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		components := map[string]componentStatus{
			"redis":    checkRedis(ctx, d),
			"database": checkDatabase(ctx, d),
		}

		resp := infraResponse{
			Mode:       determineMode(components),
			Components: components,
		}
		if d.Queue != nil && components["redis"].OK {
			if depth, err := d.Queue.Depth(ctx); err == nil {
				resp.Queue = &depth
			}
		}

		writeJSON(w, d.Logger, http.StatusOK, resp)
	}
}

func determineMode(components map[string]componentStatus) string {
	// Without the database nothing can be checked or recorded.
	if db, exists := components["database"]; exists && !db.OK {
		return "critical"
	}
	// Without Redis only synchronous checks work.
	if redis, exists := components["redis"]; exists && !redis.OK {
		return "degraded"
	}
	return "operational"
}

func checkRedis(ctx context.Context, d deps.Deps) componentStatus {
	if d.RedisClient == nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "queue-and-summaries-disabled",
			Error:  "client not initialized",
		}
	}
	if err := d.RedisClient.Ping(ctx).Err(); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "queue-and-summaries-disabled",
			Error:  err.Error(),
		}
	}
	return componentStatus{OK: true, Mode: "optimal"}
}

func checkDatabase(ctx context.Context, d deps.Deps) componentStatus {
	if d.Records == nil {
		return componentStatus{OK: false, Impact: "checks-disabled", Error: "store not initialized"}
	}
	if err := d.Records.Ping(ctx); err != nil {
		return componentStatus{OK: false, Impact: "checks-disabled", Error: err.Error()}
	}
	return componentStatus{OK: true, Mode: "optimal"}
}
