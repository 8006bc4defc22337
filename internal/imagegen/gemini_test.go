package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func imageResponse(data []byte) string {
	return `{"candidates":[{"content":{"role":"model","parts":[{"inlineData":{"mimeType":"image/png","data":"` +
		base64.StdEncoding.EncodeToString(data) + `"}}]}}]}`
}

func newTestGemini(t *testing.T, url string) *GeminiProvider {
	t.Helper()
	p, err := NewGeminiProvider(context.Background(), GeminiConfig{
		APIKey:  "key",
		Model:   "gemini-2.5-flash-image",
		BaseURL: url,
		Retry:   RetryPolicy{MaxAttempts: 2, Backoff: time.Millisecond},
	})
	require.NoError(t, err)
	return p
}

func TestGeminiGenerateSendsReferenceAndAspect(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-flash-image:generateContent"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(imageResponse([]byte("png-bytes"))))
	}))
	defer srv.Close()

	p := newTestGemini(t, srv.URL)
	res, err := p.Generate(context.Background(), Request{
		Prompt:      "neon city",
		AspectRatio: "9:16",
		Reference:   &Reference{Data: []byte("ref"), MimeType: "image/jpeg"},
	})

	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), res.Data)
	assert.Equal(t, "image/png", res.MimeType)

	raw, _ := json.Marshal(body)
	assert.Contains(t, string(raw), "neon city")
	assert.Contains(t, string(raw), base64.StdEncoding.EncodeToString([]byte("ref")))
	assert.Contains(t, string(raw), "9:16")
}

func TestGeminiRetriesAfterRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"code":429,"message":"Resource exhausted","status":"RESOURCE_EXHAUSTED"}}`))
			return
		}
		w.Write([]byte(imageResponse([]byte("png-bytes"))))
	}))
	defer srv.Close()

	p := newTestGemini(t, srv.URL)
	res, err := p.Generate(context.Background(), Request{Prompt: "neon city"})

	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), res.Data)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGeminiBadRequestNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"Invalid prompt","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	p := newTestGemini(t, srv.URL)
	_, err := p.Generate(context.Background(), Request{Prompt: "x"})

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindProvider, pe.Kind)
	assert.Equal(t, 400, pe.StatusCode)
	assert.Equal(t, "Invalid prompt", pe.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGeminiTextOnlyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"I can't draw that."}]}}]}`))
	}))
	defer srv.Close()

	p := newTestGemini(t, srv.URL)
	_, err := p.Generate(context.Background(), Request{Prompt: "x"})

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "I can't draw that.", pe.Message)
}
