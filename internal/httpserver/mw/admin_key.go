package mw

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/pagewatch/internal/logger"
)

const AdminKeyHeader = "X-Admin-Key"

// AdminKey requires the shared key in X-Admin-Key or as a bearer token.
// If key is empty, it acts as a passthrough.
func AdminKey(key string, log logger.Logger) func(http.Handler) http.Handler {
	if key == "" {
		log.Debug("AdminKey: no key configured, passthrough mode")
		return func(next http.Handler) http.Handler { return next }
	}
	want := []byte(key)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(AdminKeyHeader)
			if got == "" {
				got = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}
			if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				log.Debugf("AdminKey: request to %s REJECTED", r.URL.Path)
				w.Header().Set("WWW-Authenticate", `Bearer realm="pagewatch"`)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
