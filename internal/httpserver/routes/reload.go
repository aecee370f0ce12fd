package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/pagewatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pagewatch/internal/httpserver/handlers"
)

func init() { RegisterAPI(registerReload) }

func registerReload(r chi.Router, d deps.Deps) {
	r.Post("/api/reload", handlers.Reload(d))
	r.Post("/api/admin/cleanup", handlers.Cleanup(d))
}
