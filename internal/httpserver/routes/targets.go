package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/pagewatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pagewatch/internal/httpserver/handlers"
)

func init() { RegisterAPI(registerTargets) }

func registerTargets(r chi.Router, d deps.Deps) {
	r.Post("/api/targets/{id}/check", handlers.CheckTarget(d))
	r.Post("/api/targets/{id}/enqueue", handlers.EnqueueTarget(d))
	r.Get("/api/targets/{id}/history", handlers.TargetHistory(d))
	r.Get("/api/queue", handlers.QueueOverview(d))
	r.Get("/api/queue/jobs/{jobID}", handlers.QueueJob(d))
}
