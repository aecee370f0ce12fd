package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/pagewatch/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready    bool `json:"ready"`
	Redis    bool `json:"redis"`
	Database bool `json:"database"`
}

// Readyz answers 503 until both Redis and the record store respond.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := readyzResponse{
			Redis:    d.RedisClient != nil && d.RedisClient.Ping(ctx).Err() == nil,
			Database: d.Records != nil && d.Records.Ping(ctx) == nil,
		}
		resp.Ready = resp.Redis && resp.Database

		status := http.StatusOK
		if !resp.Ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, d.Logger, status, resp)
	}
}
