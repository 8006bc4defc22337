package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/promptlab/promptlab/internal/ctxkeys"
	"github.com/promptlab/promptlab/internal/i18n"
)

// writeError writes the JSON error body used across the API.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, key string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": i18n.T(ctxkeys.Locale(r.Context()), key),
		},
	})
}
