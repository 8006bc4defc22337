package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImagenGenerateWithReference(t *testing.T) {
	var got imagenRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/imagen-ultra:predict", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"predictions": []map[string]string{
				{"bytesBase64Encoded": base64.StdEncoding.EncodeToString([]byte("png-bytes")), "mimeType": "image/png"},
			},
		})
	}))
	defer srv.Close()

	p := NewImagenProvider(ImagenConfig{BaseURL: srv.URL, APIKey: "key", Model: "imagen-ultra"})
	res, err := p.Generate(context.Background(), Request{
		Prompt:      "a lighthouse",
		AspectRatio: "21:9",
		Reference:   &Reference{Data: []byte("ref"), MimeType: "image/jpeg"},
	})

	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), res.Data)
	assert.Equal(t, "image/png", res.MimeType)

	require.Len(t, got.Instances, 1)
	assert.Equal(t, "a lighthouse", got.Instances[0].Prompt)
	require.Len(t, got.Instances[0].ReferenceImages, 1)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("ref")), got.Instances[0].ReferenceImages[0].ReferenceImage.BytesBase64Encoded)
	assert.Equal(t, "16:9", got.Parameters.AspectRatio)
	require.NotNil(t, got.Parameters.ReferenceStrength)
	assert.Equal(t, DefaultReferenceStrength, *got.Parameters.ReferenceStrength)
}

func TestImagenUpstreamErrorCarriesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"Prompt violates policy","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	p := NewImagenProvider(ImagenConfig{BaseURL: srv.URL, APIKey: "key", Model: "imagen-ultra"})
	_, err := p.Generate(context.Background(), Request{Prompt: "x"})

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindProvider, pe.Kind)
	assert.Equal(t, 400, pe.StatusCode)
	assert.Equal(t, "Prompt violates policy", pe.Message)
	assert.False(t, pe.Retryable)
}

func TestImagenTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p := NewImagenProvider(ImagenConfig{BaseURL: srv.URL, APIKey: "key", Model: "m", Timeout: 50 * time.Millisecond})
	_, err := p.Generate(context.Background(), Request{Prompt: "x"})

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindTimeout, pe.Kind)
}

func TestImagenFilteredResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"predictions":[{"raiFilteredReason":"Image was filtered"}]}`))
	}))
	defer srv.Close()

	p := NewImagenProvider(ImagenConfig{BaseURL: srv.URL, APIKey: "key", Model: "m"})
	_, err := p.Generate(context.Background(), Request{Prompt: "x"})

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "Image was filtered", pe.Message)
}
