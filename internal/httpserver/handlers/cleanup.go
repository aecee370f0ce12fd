package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/pagewatch/internal/httpserver/deps"
)

// Cleanup runs retention now.
func Cleanup(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := d.Cleaner.Collect(r.Context())
		if err != nil {
			writeError(w, d.Logger, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, d.Logger, http.StatusOK, res)
	}
}
