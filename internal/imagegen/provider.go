// Package imagegen adapts upstream image generation APIs to a single Provider
// contract: prompt, aspect ratio and an optional reference image in, one
// encoded image out.
package imagegen

import (
	"context"
)

// Reference is a normalized reference image ready to send upstream.
type Reference struct {
	Data     []byte
	MimeType string
}

type Request struct {
	Prompt      string
	AspectRatio string
	Reference   *Reference
}

type Result struct {
	Data     []byte
	MimeType string
}

// Provider generates one image. Failures are returned as *Error.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Result, error)
	Name() string
}
