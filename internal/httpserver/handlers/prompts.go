package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/pagewatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pagewatch/internal/logger"
	"github.com/MrSnakeDoc/pagewatch/internal/prompts"
)

const maxPromptBytes = 64 << 10

type promptUpdate struct {
	Text string `json:"text"`
}

func ListPrompts(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, d.Logger, http.StatusOK, d.Prompts.All())
	}
}

// UpdatePrompt replaces one prompt. An empty text restores its default.
func UpdatePrompt(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		var body promptUpdate
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPromptBytes)).Decode(&body); err != nil {
			writeError(w, d.Logger, http.StatusBadRequest, "invalid body")
			return
		}

		if err := d.Prompts.Set(name, body.Text); err != nil {
			if errors.Is(err, prompts.ErrUnknownPrompt) {
				writeError(w, d.Logger, http.StatusNotFound, err.Error())
				return
			}
			d.Logger.Error("failed to save prompt",
				logger.String("prompt", name),
				logger.Error(err))
			writeError(w, d.Logger, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, d.Logger, http.StatusOK, d.Prompts.All())
	}
}

func ReloadPrompts(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Prompts.Reload(); err != nil {
			writeError(w, d.Logger, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, d.Logger, http.StatusOK, d.Prompts.All())
	}
}
