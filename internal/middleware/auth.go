package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/promptlab/promptlab/internal/ctxkeys"
	"github.com/promptlab/promptlab/internal/service"
)

// AuthMiddleware verifies the JWT from the Authorization header or the
// auth_token cookie and adds the user to the context. Requests without a
// valid token continue anonymously.
func AuthMiddleware(authService *service.AuthService, userService *service.UserService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, fromCookie := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := authService.Authenticate(token)
			if err != nil {
				if fromCookie {
					authService.ClearJWTCookie(w)
				}
				next.ServeHTTP(w, r)
				return
			}

			user, err := userService.EnsureUser(identity)
			if err != nil {
				slog.Error("failed to load authenticated user", "error", err, "user_id", identity.UserID)
				next.ServeHTTP(w, r)
				return
			}

			ctx := ctxkeys.WithUser(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ctxkeys.User(r.Context()) == nil {
			writeError(w, r, http.StatusUnauthorized, string(service.KindUnauthorized), "error.unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	}
}

// RequireBot authenticates the chat bot by its shared X-Bot-Token secret.
func RequireBot(authService *service.AuthService) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			err := authService.VerifyBotToken(r.Header.Get("X-Bot-Token"))
			if err != nil {
				slog.Warn("bot request rejected", "error", err, "ip", getClientIP(r))
				writeError(w, r, http.StatusUnauthorized, string(service.KindUnauthorized), "error.unauthorized")
				return
			}
			next(w, r)
		}
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token), false
	}

	cookie, err := r.Cookie("auth_token")
	if err != nil {
		return "", false
	}
	return cookie.Value, true
}
