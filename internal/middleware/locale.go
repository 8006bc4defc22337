package middleware

import (
	"net/http"

	"github.com/promptlab/promptlab/internal/ctxkeys"
	"github.com/promptlab/promptlab/internal/i18n"
)

// Locale negotiates the response language from Accept-Language, falling back
// to the signed-in user's stored locale. Must run after AuthMiddleware.
func Locale(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		preferences := []string{r.Header.Get("Accept-Language")}
		if user := ctxkeys.User(r.Context()); user != nil && user.Locale != "" {
			preferences = append(preferences, user.Locale)
		}

		ctx := ctxkeys.WithLocale(r.Context(), i18n.Match(preferences...))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
