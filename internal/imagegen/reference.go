package imagegen

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/promptlab/promptlab/internal/validation"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultReferenceMaxWidth bounds reference images sent upstream.
	DefaultReferenceMaxWidth = 1024
	// ReferenceQuality is the JPEG quality for normalized references.
	ReferenceQuality = 95
)

// NormalizeReference decodes a validated reference image, downscales it to
// maxWidth keeping the aspect ratio, flattens transparency onto white and
// re-encodes it as JPEG.
func NormalizeReference(data []byte, maxWidth int) (*Reference, error) {
	if maxWidth <= 0 {
		maxWidth = DefaultReferenceMaxWidth
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read reference image header: %w", err)
	}
	if cfg.Width > validation.MaxReferenceSide || cfg.Height > validation.MaxReferenceSide ||
		int64(cfg.Width)*int64(cfg.Height) > validation.MaxReferencePixels {
		return nil, fmt.Errorf("%w: %dx%d", validation.ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode reference image: %w", err)
	}

	if img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	bounds := img.Bounds()
	canvas := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	flat := imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	err = imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(ReferenceQuality))
	if err != nil {
		return nil, fmt.Errorf("failed to encode reference image: %w", err)
	}

	return &Reference{Data: buf.Bytes(), MimeType: "image/jpeg"}, nil
}
