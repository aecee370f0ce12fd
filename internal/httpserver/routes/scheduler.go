package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/pagewatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pagewatch/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/pagewatch/internal/scheduler"
)

func init() { RegisterAPI(registerScheduler) }

func registerScheduler(r chi.Router, d deps.Deps) {
	r.Post("/api/scheduler/run", handlers.RunJob(d, scheduler.JobDueCheck))
	r.Get("/api/scheduler/status", handlers.SchedulerStatus(d))
	r.Post("/api/summaries/run", handlers.RunJob(d, scheduler.JobSummary))
}
