package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DalleSizes are the output sizes DALL-E 3 accepts.
var DalleSizes = []Size{
	{Width: 1024, Height: 1024},
	{Width: 1792, Height: 1024},
	{Width: 1024, Height: 1792},
}

const describePrompt = "Describe this image in detail for an image generation model: subject, composition, " +
	"colors, lighting, style and mood. Answer with the description only."

// DalleProvider cannot take an image input, so a reference is first described
// by a vision model and the description is folded into a text-only prompt.
type DalleProvider struct {
	client      openai.Client
	model       string
	visionModel string
	timeout     time.Duration
}

type DalleConfig struct {
	APIKey      string
	Model       string
	VisionModel string
	BaseURL     string // Optional: overrides the API endpoint
	Timeout     time.Duration
}

func NewDalleProvider(cfg DalleConfig) *DalleProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model == "" {
		cfg.Model = "dall-e-3"
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &DalleProvider{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		visionModel: cfg.VisionModel,
		timeout:     cfg.Timeout,
	}
}

func (p *DalleProvider) Name() string {
	return "dalle"
}

func (p *DalleProvider) Generate(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	prompt := req.Prompt
	if req.Reference != nil {
		description, err := p.describe(ctx, req.Reference)
		if err != nil {
			return nil, err
		}
		prompt = fmt.Sprintf("%s\n\nReference image: %s", req.Prompt, description)
	}

	size := NearestSize(req.AspectRatio, DalleSizes)
	resp, err := p.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Model:          openai.ImageModel(p.model),
		Prompt:         prompt,
		Size:           openai.ImageGenerateParamsSize(size.String()),
		N:              openai.Int(1),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	})
	if err != nil {
		return nil, p.wrapError(ctx, err)
	}

	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, &Error{Kind: KindProvider, Provider: p.Name(), Message: "no image in response"}
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, &Error{Kind: KindProvider, Provider: p.Name(), Message: "invalid image data", Cause: err}
	}

	return &Result{Data: data, MimeType: "image/png"}, nil
}

// describe asks the vision model for a textual description of the reference.
func (p *DalleProvider) describe(ctx context.Context, ref *Reference) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", ref.MimeType, base64.StdEncoding.EncodeToString(ref.Data))

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(describePrompt),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURL,
		}),
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: p.visionModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: parts,
					},
				},
			},
		},
		MaxTokens: openai.Int(300),
	})
	if err != nil {
		return "", p.wrapError(ctx, err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", &Error{Kind: KindProvider, Provider: p.Name(), Message: "reference image could not be described"}
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (p *DalleProvider) wrapError(ctx context.Context, err error) *Error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return newStatusError(p.Name(), apiErr.StatusCode, apiErr.Message, err)
	}
	return wrapCallError(ctx, p.Name(), err)
}
