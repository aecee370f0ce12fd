package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/pagewatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pagewatch/internal/httpserver/handlers"
)

func init() { RegisterAPI(registerPrompts) }

func registerPrompts(r chi.Router, d deps.Deps) {
	r.Get("/api/prompts", handlers.ListPrompts(d))
	r.Put("/api/prompts/{name}", handlers.UpdatePrompt(d))
	r.Post("/api/prompts/reload", handlers.ReloadPrompts(d))
}
