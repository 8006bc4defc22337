package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/promptlab/promptlab/internal/ctxkeys"
	"github.com/promptlab/promptlab/internal/db/dbtest"
	"github.com/promptlab/promptlab/internal/model"
	"github.com/promptlab/promptlab/internal/repository"
	"github.com/promptlab/promptlab/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func newAuth(t *testing.T) (*service.AuthService, *service.UserService) {
	t.Helper()
	conn := dbtest.New(t)
	return service.NewAuthService("secret", "bot-secret", time.Hour, false),
		service.NewUserService(repository.NewUserRepository(conn), "ru")
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code, body.Error.Message
}

func TestAuthMiddleware(t *testing.T) {
	auth, users := newAuth(t)

	var seen *model.User
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ctxkeys.User(r.Context())
	}), AuthMiddleware(auth, users))

	token, err := auth.GenerateJWT(&model.User{ID: "web-1"})
	require.NoError(t, err)

	t.Run("bearer creates the user", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		h.ServeHTTP(httptest.NewRecorder(), req)

		require.NotNil(t, seen)
		assert.Equal(t, "web-1", seen.ID)
		assert.Equal(t, "ru", seen.Locale)
	})

	t.Run("cookie", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "auth_token", Value: token})
		h.ServeHTTP(httptest.NewRecorder(), req)

		require.NotNil(t, seen)
		assert.Equal(t, "web-1", seen.ID)
	})

	t.Run("invalid cookie is cleared", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "auth_token", Value: "garbage"})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Nil(t, seen)
		assert.Contains(t, rec.Header().Get("Set-Cookie"), "auth_token=;")
	})

	t.Run("anonymous", func(t *testing.T) {
		seen = nil
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Nil(t, seen)
	})
}

func TestRequireAuth(t *testing.T) {
	h := RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(ctxkeys.WithLocale(req.Context(), language.Russian))
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	code, message := errorCode(t, rec)
	assert.Equal(t, "unauthorized", code)
	assert.Equal(t, "Войдите, чтобы продолжить.", message)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(ctxkeys.WithUser(req.Context(), &model.User{ID: "u1"}))
	rec = httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestRequireBot(t *testing.T) {
	auth, _ := newAuth(t)
	h := RequireBot(auth)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	for token, status := range map[string]int{
		"bot-secret": http.StatusNoContent,
		"wrong":      http.StatusUnauthorized,
		"":           http.StatusUnauthorized,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/bot/generations", nil)
		req.Header.Set("X-Bot-Token", token)
		rec := httptest.NewRecorder()
		h(rec, req)
		assert.Equal(t, status, rec.Code, "token %q", token)
	}
}

func TestLocale(t *testing.T) {
	var got language.Tag
	h := Locale(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ctxkeys.Locale(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en;q=0.8")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, language.Russian, got)

	// The stored locale applies when the header says nothing
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(ctxkeys.WithUser(req.Context(), &model.User{ID: "u1", Locale: "ru"}))
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, language.Russian, got)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "de-DE")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, language.English, got)
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(2, time.Minute)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/generations", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		rec := httptest.NewRecorder()
		h(rec, req)
		statuses = append(statuses, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)

	// Other clients have their own window
	req := httptest.NewRequest(http.MethodPost, "/api/generations", nil)
	req.RemoteAddr = "198.51.100.1:5000"
	rec := httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecover(t *testing.T) {
	h := Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	code, _ := errorCode(t, rec)
	assert.Equal(t, "internal_error", code)
}

func TestCSRFProtection(t *testing.T) {
	h := CSRFProtection(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	// A safe request hands out the token
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/balance", nil))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	csrf := cookies[0]
	assert.Equal(t, "csrf_token", csrf.Name)

	post := func(setup func(r *http.Request)) int {
		req := httptest.NewRequest(http.MethodPost, "/api/generations", strings.NewReader(""))
		setup(req)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusForbidden, post(func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "auth_token", Value: "jwt"})
		r.AddCookie(csrf)
	}))
	assert.Equal(t, http.StatusNoContent, post(func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "auth_token", Value: "jwt"})
		r.AddCookie(csrf)
		r.Header.Set("X-CSRF-Token", csrf.Value)
	}))
	assert.Equal(t, http.StatusNoContent, post(func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer jwt")
	}))
	assert.Equal(t, http.StatusNoContent, post(func(r *http.Request) {
		r.URL.Path = "/webhooks/payment"
		r.AddCookie(&http.Cookie{Name: "auth_token", Value: "jwt"})
	}))
}
