package routes

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/promptlab/promptlab/internal/app"
	"github.com/promptlab/promptlab/internal/config"
	"github.com/promptlab/promptlab/internal/db/dbtest"
	"github.com/promptlab/promptlab/internal/imagegen"
	"github.com/promptlab/promptlab/internal/model"
	"github.com/promptlab/promptlab/internal/repository"
	"github.com/promptlab/promptlab/internal/service"
	"github.com/promptlab/promptlab/internal/service/payment"
	"github.com/promptlab/promptlab/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModel = "test-model"

type stubProvider struct {
	err error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Generate(_ context.Context, _ imagegen.Request) (*imagegen.Result, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &imagegen.Result{Data: []byte("\x89PNG\r\n\x1a\nimage"), MimeType: "image/png"}, nil
}

// fakePayments accepts deliveries signed with the literal "valid" and
// credits {event_id, user_id, coins}.
type fakePayments struct {
	billing *service.BillingService
}

func (p *fakePayments) Name() string { return model.ProviderStripe }

func (p *fakePayments) CreateTopUpURL(userID string, coins int64, _ string) (string, error) {
	return fmt.Sprintf("https://checkout.test/%s?coins=%d", userID, coins), nil
}

func (p *fakePayments) HandleWebhook(payload []byte, headers http.Header) error {
	if headers.Get("Webhook-Signature") != "valid" {
		return payment.ErrInvalidSignature
	}
	var event struct {
		EventID string `json:"event_id"`
		UserID  string `json:"user_id"`
		Coins   int64  `json:"coins"`
	}
	err := json.Unmarshal(payload, &event)
	if err != nil {
		return err
	}
	return p.billing.CreditTopUp(service.TopUp{
		Provider: model.ProviderStripe,
		EventID:  event.EventID,
		UserID:   event.UserID,
		Coins:    event.Coins,
	})
}

const premiumPrompt = `---
title: Porcelain Portrait
description: Glazed porcelain bust
tags: [portrait]
premium: true
price: 3
date: "2025-04-18"
prompt: Porcelain bust with gold kintsugi cracks
---
Use a front-facing photo.
`

type testServer struct {
	*httptest.Server
	conn  *sqlx.DB
	token string
	auth  *service.AuthService
}

func newServer(t *testing.T, provider imagegen.Provider, cooldown time.Duration) *testServer {
	t.Helper()

	conn := dbtest.New(t)
	dbtest.CreateUser(t, conn, "u1")
	dbtest.SetBalance(t, conn, "u1", 10)

	contentDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(contentDir, "prompts"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(contentDir, "prompts", "porcelain.md"), []byte(premiumPrompt), 0644))

	cfg := &config.Config{
		AppName:              "Promptlab",
		AppEnv:               "development",
		AppURL:               "http://localhost:8090",
		GenerationRateLimit:  100,
		GenerationRateWindow: time.Minute,
	}

	userRepo := repository.NewUserRepository(conn)
	ledger := service.NewLedgerService(repository.NewLedgerRepository(conn))
	store := storage.NewMemoryStorage("http://localhost:8090/files")

	registry := imagegen.NewRegistry()
	registry.Register(imagegen.Model{ID: testModel, Name: "Test", Variant: imagegen.VariantGemini, Cost: 2}, provider)

	auth := service.NewAuthService("secret", "bot-secret", time.Hour, false)
	billing := service.NewBillingService(ledger, userRepo, service.NewEmailService("", "noreply@example.com", cfg.AppURL, cfg.AppName, true))

	a := &app.App{
		Cfg:            cfg,
		DB:             conn,
		Storage:        store,
		AuthService:    auth,
		UserService:    service.NewUserService(userRepo, "en"),
		LedgerService:  ledger,
		BillingService: billing,
		PaymentService: &fakePayments{billing: billing},
		GenerationService: service.NewGenerationService(
			repository.NewGenerationRepository(conn),
			repository.NewErrorLogRepository(conn),
			ledger,
			store,
			registry,
			service.GenerationConfig{Cooldown: cooldown, StaleAfter: 5 * time.Minute, ReferenceMaxWidth: 512},
		),
		CatalogService: service.NewCatalogService(contentDir, ledger, repository.NewUnlockRepository(conn), repository.NewFavoriteRepository(conn)),
	}

	token, err := auth.GenerateJWT(&model.User{ID: "u1"})
	require.NoError(t, err)

	srv := httptest.NewServer(SetupRoutes(a))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, conn: conn, token: token, auth: auth}
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, s.URL+path, body)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &decoded), string(raw))
	}
	return resp, decoded
}

func (s *testServer) authed(extra map[string]string) map[string]string {
	headers := map[string]string{"Authorization": "Bearer " + s.token}
	for k, v := range extra {
		headers[k] = v
	}
	return headers
}

func (s *testServer) balance(t *testing.T, userID string) int64 {
	t.Helper()
	b, err := repository.NewLedgerRepository(s.conn).Balance(userID)
	require.NoError(t, err)
	return b
}

func errorOf(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected an error body, got %v", body)
	return e
}

func pngFile(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	for x := 0; x < 32; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func generationForm(t *testing.T, fields map[string]string, fileName string, file []byte) (io.Reader, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != nil {
		part, err := w.CreateFormFile("reference_image", fileName)
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestHealthAndModels(t *testing.T) {
	s := newServer(t, &stubProvider{}, 0)

	resp, body := s.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, body = s.do(t, http.MethodGet, "/api/models", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	models := body["models"].([]any)
	require.Len(t, models, 1)
	assert.Equal(t, testModel, models[0].(map[string]any)["id"])
	assert.Equal(t, float64(2), models[0].(map[string]any)["cost"])
}

func TestWebGeneration_Lifecycle(t *testing.T) {
	s := newServer(t, &stubProvider{}, 3*time.Second)

	form, contentType := generationForm(t, map[string]string{
		"prompt":       "a red fox in the snow",
		"model":        testModel,
		"aspect_ratio": "16:9",
	}, "ref.png", pngFile(t))

	resp, body := s.do(t, http.MethodPost, "/api/generations", form, s.authed(map[string]string{"Content-Type": contentType}))
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	id := body["generation_id"].(string)
	assert.NotEmpty(t, id)
	assert.Contains(t, body["image_url"], "/files/generations/u1/")
	assert.Equal(t, int64(8), s.balance(t, "u1"))

	// The stored image is served back in development
	imageURL := body["image_url"].(string)
	resp, _ = s.do(t, http.MethodGet, strings.TrimPrefix(imageURL, "http://localhost:8090"), nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	// Cooldown
	form, contentType = generationForm(t, map[string]string{"prompt": "again", "model": testModel}, "", nil)
	resp, body = s.do(t, http.MethodPost, "/api/generations", form, s.authed(map[string]string{"Content-Type": contentType}))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "too_frequent", errorOf(t, body)["code"])
	assert.Equal(t, int64(8), s.balance(t, "u1"))

	resp, body = s.do(t, http.MethodGet, "/api/generations", nil, s.authed(nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	gens := body["generations"].([]any)
	require.Len(t, gens, 1)
	gen := gens[0].(map[string]any)
	assert.Equal(t, "completed", gen["status"])
	assert.Equal(t, "16:9", gen["aspect_ratio"])
	assert.NotEmpty(t, gen["reference_url"])

	resp, _ = s.do(t, http.MethodPatch, "/api/generations/"+id+"/favorite", strings.NewReader(`{"favorite": true}`), s.authed(nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = s.do(t, http.MethodGet, "/api/generations?favorites=true", nil, s.authed(nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["generations"], 1)

	resp, _ = s.do(t, http.MethodDelete, "/api/generations/"+id, nil, s.authed(nil))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = s.do(t, http.MethodGet, "/api/generations/"+id, nil, s.authed(nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorOf(t, body)["code"])

	resp, _ = s.do(t, http.MethodGet, strings.TrimPrefix(imageURL, "http://localhost:8090"), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebGeneration_ProviderFailureRefunds(t *testing.T) {
	s := newServer(t, &stubProvider{err: &imagegen.Error{
		Kind:       imagegen.KindProvider,
		Provider:   "stub",
		StatusCode: http.StatusBadRequest,
		Message:    "prompt blocked by safety filter",
	}}, 0)

	form, contentType := generationForm(t, map[string]string{"prompt": "a red fox", "model": testModel}, "", nil)
	resp, body := s.do(t, http.MethodPost, "/api/generations", form, s.authed(map[string]string{"Content-Type": contentType}))

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	e := errorOf(t, body)
	assert.Equal(t, "provider_error", e["code"])
	assert.Equal(t, "prompt blocked by safety filter", e["detail"])
	assert.Equal(t, int64(10), s.balance(t, "u1"))

	gens, err := repository.NewGenerationRepository(s.conn).ByUserID("u1", repository.GenerationFilter{})
	require.NoError(t, err)
	require.Len(t, gens, 1)
	assert.Equal(t, model.GenerationStatusFailed, gens[0].Status)
	assert.Empty(t, gens[0].ImageURL)
}

func TestWebGeneration_Validation(t *testing.T) {
	s := newServer(t, &stubProvider{}, 0)

	resp, _ := s.do(t, http.MethodPost, "/api/generations", strings.NewReader(""), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	form, contentType := generationForm(t, map[string]string{"prompt": "a fox", "model": testModel}, "ref.txt", []byte("just some text"))
	resp, body := s.do(t, http.MethodPost, "/api/generations", form, s.authed(map[string]string{
		"Content-Type":    contentType,
		"Accept-Language": "en",
	}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "The reference image must be JPEG, PNG or WebP.", errorOf(t, body)["message"])

	form, contentType = generationForm(t, map[string]string{"prompt": "  ", "model": testModel}, "", nil)
	resp, body = s.do(t, http.MethodPost, "/api/generations", form, s.authed(map[string]string{
		"Content-Type":    contentType,
		"Accept-Language": "ru",
	}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Введите описание.", errorOf(t, body)["message"])

	form, contentType = generationForm(t, map[string]string{"prompt": "a fox", "model": "nope"}, "", nil)
	resp, body = s.do(t, http.MethodPost, "/api/generations", form, s.authed(map[string]string{"Content-Type": contentType}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", errorOf(t, body)["code"])

	assert.Equal(t, int64(10), s.balance(t, "u1"))
}

func TestBotGeneration(t *testing.T) {
	s := newServer(t, &stubProvider{}, 0)
	bot := map[string]string{"X-Bot-Token": "bot-secret"}

	resp, _ := s.do(t, http.MethodPost, "/api/bot/generations",
		strings.NewReader(`{"user_id": "tg:42", "prompt": "a fox", "model": "test-model"}`),
		map[string]string{"X-Bot-Token": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := s.do(t, http.MethodPost, "/api/bot/generations",
		strings.NewReader(`{"user_id": "tg:42", "prompt": "a fox", "model": "test-model", "seed": 7}`), bot)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "unknown fields are rejected")
	assert.Equal(t, "invalid_request", errorOf(t, body)["code"])

	// First contact creates the user with an empty balance
	resp, body = s.do(t, http.MethodPost, "/api/bot/generations",
		strings.NewReader(`{"user_id": "tg:42", "prompt": "a fox", "model": "test-model"}`), bot)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "insufficient_funds", errorOf(t, body)["code"])

	user, err := repository.NewUserRepository(s.conn).ByExternalID("tg:42")
	require.NoError(t, err)
	dbtest.SetBalance(t, s.conn, user.ID, 5)

	payload, err := json.Marshal(map[string]string{
		"user_id":                "tg:42",
		"prompt":                 "a fox in this style",
		"model":                  testModel,
		"reference_image_base64": "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngFile(t)),
	})
	require.NoError(t, err)

	resp, body = s.do(t, http.MethodPost, "/api/bot/generations", bytes.NewReader(payload), bot)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.NotEmpty(t, body["generation_id"])
	assert.NotEmpty(t, body["image_url"])
	assert.Equal(t, int64(3), s.balance(t, user.ID))

	gen, err := repository.NewGenerationRepository(s.conn).ByID(body["generation_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, model.GenerationSourceBot, gen.Source)
	assert.NotEmpty(t, gen.ReferencePath)
}

func TestCatalogRoutes(t *testing.T) {
	s := newServer(t, &stubProvider{}, 0)

	resp, body := s.do(t, http.MethodGet, "/api/prompts", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	prompts := body["prompts"].([]any)
	require.Len(t, prompts, 1)
	assert.Equal(t, true, prompts[0].(map[string]any)["locked"])
	assert.Nil(t, prompts[0].(map[string]any)["text"])

	resp, _ = s.do(t, http.MethodPost, "/api/prompts/porcelain/copy", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = s.do(t, http.MethodPost, "/api/prompts/porcelain/copy", nil, s.authed(nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Porcelain bust with gold kintsugi cracks", body["text"])
	assert.Equal(t, int64(7), s.balance(t, "u1"))

	resp, body = s.do(t, http.MethodGet, "/api/prompts/porcelain", nil, s.authed(nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["locked"])

	resp, _ = s.do(t, http.MethodGet, "/api/prompts/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = s.do(t, http.MethodGet, "/api/prompts/tags", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["tags"], 1)

	resp, _ = s.do(t, http.MethodPost, "/api/prompts/porcelain/favorite", nil, s.authed(nil))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, body = s.do(t, http.MethodGet, "/api/favorites", nil, s.authed(nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["prompts"], 1)
	resp, _ = s.do(t, http.MethodDelete, "/api/prompts/porcelain/favorite", nil, s.authed(nil))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestBalanceAndTopUp(t *testing.T) {
	s := newServer(t, &stubProvider{}, 0)

	resp, body := s.do(t, http.MethodGet, "/api/balance", nil, s.authed(nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(10), body["balance"])

	resp, body = s.do(t, http.MethodPost, "/api/billing/topup", strings.NewReader(`{"coins": 50}`), s.authed(nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://checkout.test/u1?coins=50", body["url"])

	resp, body = s.do(t, http.MethodPost, "/api/billing/topup", strings.NewReader(`{"coins": 5}`), s.authed(nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid amount.", errorOf(t, body)["message"])
}

func TestPaymentWebhook(t *testing.T) {
	s := newServer(t, &stubProvider{}, 0)
	event := `{"event_id": "cs_1", "user_id": "u1", "coins": 50}`

	resp, _ := s.do(t, http.MethodPost, "/webhooks/payment", strings.NewReader(event), map[string]string{"Webhook-Signature": "forged"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int64(10), s.balance(t, "u1"))

	for i := 0; i < 2; i++ {
		resp, _ = s.do(t, http.MethodPost, "/webhooks/payment", strings.NewReader(event), map[string]string{"Webhook-Signature": "valid"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.Equal(t, int64(60), s.balance(t, "u1"))

	// Authentic but unprocessable deliveries are still acknowledged
	resp, _ = s.do(t, http.MethodPost, "/webhooks/payment",
		strings.NewReader(`{"event_id": "cs_2", "user_id": "", "coins": 50}`), map[string]string{"Webhook-Signature": "valid"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
