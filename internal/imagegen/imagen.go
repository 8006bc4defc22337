package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ImagenAspectRatios are the ratios the predict endpoint accepts.
var ImagenAspectRatios = []string{"1:1", "3:4", "4:3", "9:16", "16:9"}

// DefaultReferenceStrength weights how closely output follows the reference.
const DefaultReferenceStrength = 0.6

// ImagenProvider calls the Imagen predict endpoint, passing the reference as a
// style conditioning image.
type ImagenProvider struct {
	baseURL           string
	apiKey            string
	model             string
	referenceStrength float64
	httpClient        *http.Client
}

type ImagenConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	ReferenceStrength float64
	Timeout           time.Duration
}

type imagenRequest struct {
	Instances  []imagenInstance `json:"instances"`
	Parameters imagenParameters `json:"parameters"`
}

type imagenInstance struct {
	Prompt          string            `json:"prompt"`
	ReferenceImages []imagenReference `json:"referenceImages,omitempty"`
}

type imagenReference struct {
	ReferenceType  string      `json:"referenceType"`
	ReferenceID    int         `json:"referenceId"`
	ReferenceImage imagenImage `json:"referenceImage"`
}

type imagenImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType,omitempty"`
}

type imagenParameters struct {
	SampleCount       int      `json:"sampleCount"`
	AspectRatio       string   `json:"aspectRatio,omitempty"`
	ReferenceStrength *float64 `json:"referenceStrength,omitempty"`
}

type imagenResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MimeType           string `json:"mimeType"`
		RaiFilteredReason  string `json:"raiFilteredReason"`
	} `json:"predictions"`
}

type imagenErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func NewImagenProvider(cfg ImagenConfig) *ImagenProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.ReferenceStrength <= 0 {
		cfg.ReferenceStrength = DefaultReferenceStrength
	}

	return &ImagenProvider{
		baseURL:           strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:            cfg.APIKey,
		model:             cfg.Model,
		referenceStrength: cfg.ReferenceStrength,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (p *ImagenProvider) Name() string {
	return "imagen"
}

func (p *ImagenProvider) Generate(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.httpClient.Timeout)
	defer cancel()

	instance := imagenInstance{Prompt: req.Prompt}
	params := imagenParameters{
		SampleCount: 1,
		AspectRatio: NearestRatio(req.AspectRatio, ImagenAspectRatios),
	}
	if req.Reference != nil {
		instance.ReferenceImages = []imagenReference{{
			ReferenceType: "REFERENCE_TYPE_STYLE",
			ReferenceID:   1,
			ReferenceImage: imagenImage{
				BytesBase64Encoded: base64.StdEncoding.EncodeToString(req.Reference.Data),
				MimeType:           req.Reference.MimeType,
			},
		}}
		strength := p.referenceStrength
		params.ReferenceStrength = &strength
	}

	jsonData, err := json.Marshal(imagenRequest{
		Instances:  []imagenInstance{instance},
		Parameters: params,
	})
	if err != nil {
		return nil, &Error{Kind: KindProvider, Provider: p.Name(), Cause: fmt.Errorf("failed to marshal request: %w", err)}
	}

	url := fmt.Sprintf("%s/models/%s:predict", p.baseURL, p.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, &Error{Kind: KindProvider, Provider: p.Name(), Cause: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, p.wrapTransportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, p.wrapTransportError(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp imagenErrorResponse
		msg := ""
		if json.Unmarshal(body, &errResp) == nil {
			msg = errResp.Error.Message
		}
		return nil, newStatusError(p.Name(), resp.StatusCode, msg, fmt.Errorf("predict failed with status %d", resp.StatusCode))
	}

	var result imagenResponse
	err = json.Unmarshal(body, &result)
	if err != nil {
		return nil, &Error{Kind: KindProvider, Provider: p.Name(), Cause: fmt.Errorf("failed to decode response: %w", err)}
	}

	for _, pred := range result.Predictions {
		if pred.BytesBase64Encoded == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(pred.BytesBase64Encoded)
		if err != nil {
			return nil, &Error{Kind: KindProvider, Provider: p.Name(), Message: "invalid image data", Cause: err}
		}
		mimeType := pred.MimeType
		if mimeType == "" {
			mimeType = "image/png"
		}
		return &Result{Data: data, MimeType: mimeType}, nil
	}

	msg := "no image in response"
	if len(result.Predictions) > 0 && result.Predictions[0].RaiFilteredReason != "" {
		msg = result.Predictions[0].RaiFilteredReason
	}
	return nil, &Error{Kind: KindProvider, Provider: p.Name(), Message: userMessage(msg)}
}

// wrapTransportError maps client timeouts, which net/http reports as
// net.Error rather than context.DeadlineExceeded, to KindTimeout.
func (p *ImagenProvider) wrapTransportError(ctx context.Context, err error) *Error {
	if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
		return &Error{Kind: KindTimeout, Provider: p.Name(), Cause: err}
	}
	return wrapCallError(ctx, p.Name(), err)
}
