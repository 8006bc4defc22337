package imagegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"
)

// GeminiProvider calls Gemini image models directly with the prompt and an
// optional inline reference image.
type GeminiProvider struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	retry   RetryPolicy
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string // Optional: overrides the API endpoint
	Timeout time.Duration
	Retry   RetryPolicy
}

func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy
	}

	return &GeminiProvider{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		retry:   cfg.Retry,
	}, nil
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Generate retries once on rate limiting or unavailability. The deadline
// covers all attempts.
func (p *GeminiProvider) Generate(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	parts := []*genai.Part{{Text: req.Prompt}}
	if req.Reference != nil {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				Data:     req.Reference.Data,
				MIMEType: req.Reference.MimeType,
			},
		})
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	if req.AspectRatio != "" {
		config.ImageConfig = &genai.ImageConfig{AspectRatio: req.AspectRatio}
	}

	attempt := 0
	return Do(ctx, p.retry, func() (*Result, error) {
		attempt++
		resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
		if err != nil {
			wrapped := p.wrapError(ctx, err)
			slog.Warn("gemini generation attempt failed",
				"model", p.model, "attempt", attempt, "retryable", wrapped.Retryable, "error", err)
			return nil, wrapped
		}
		return p.extractImage(resp)
	})
}

func (p *GeminiProvider) extractImage(resp *genai.GenerateContentResponse) (*Result, error) {
	var text string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return &Result{Data: part.InlineData.Data, MimeType: part.InlineData.MIMEType}, nil
			}
			if part.Text != "" {
				text = part.Text
			}
		}
	}

	// The model answered with text only, usually a refusal.
	msg := "no image in response"
	if text != "" {
		msg = text
	}
	return nil, &Error{Kind: KindProvider, Provider: p.Name(), Message: userMessage(msg)}
}

func (p *GeminiProvider) wrapError(ctx context.Context, err error) *Error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return newStatusError(p.Name(), apiErr.Code, apiErr.Message, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return newStatusError(p.Name(), apiErrPtr.Code, apiErrPtr.Message, err)
	}
	return wrapCallError(ctx, p.Name(), err)
}
