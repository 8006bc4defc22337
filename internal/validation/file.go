package validation

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp"
)

var (
	ErrFileTooLarge     = errors.New("file too large")
	ErrUnsupportedType  = errors.New("unsupported file type")
	ErrUnreadableUpload = errors.New("failed to read upload")
	ErrInvalidExtension = errors.New("invalid file extension")
	ErrInvalidImage     = errors.New("invalid image")
	ErrImageTooLarge    = errors.New("image dimensions too large")
)

const (
	WebReferenceMaxSize int64 = 10 << 20 // 10MB
	BotReferenceMaxSize int64 = 5 << 20  // 5MB

	// Decoded size limits. A few KB of PNG can declare a 16000x16000 canvas.
	MaxReferencePixels = 40_000_000
	MaxReferenceSide   = 8192
)

// FileConstraints defines validation rules for file uploads
type FileConstraints struct {
	AllowedMimeTypes  map[string]bool
	AllowedExtensions map[string]bool
	MaxSize           int64
	MaxPixels         int
	MaxSide           int
}

var imageMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

var (
	// WebReferenceConstraints applies to reference images uploaded through the web app
	WebReferenceConstraints = FileConstraints{
		AllowedMimeTypes:  imageMimeTypes,
		AllowedExtensions: imageExtensions,
		MaxSize:           WebReferenceMaxSize,
		MaxPixels:         MaxReferencePixels,
		MaxSide:           MaxReferenceSide,
	}

	// BotReferenceConstraints applies to reference images sent by the bot
	BotReferenceConstraints = FileConstraints{
		AllowedMimeTypes:  imageMimeTypes,
		AllowedExtensions: imageExtensions,
		MaxSize:           BotReferenceMaxSize,
		MaxPixels:         MaxReferencePixels,
		MaxSide:           MaxReferenceSide,
	}
)

func (c FileConstraints) MaxSizeMB() int64 {
	return c.MaxSize / (1 << 20)
}

// ValidateFile validates a multipart upload and returns its detected content type
func ValidateFile(header *multipart.FileHeader, constraints FileConstraints) (string, error) {
	// Check file size first (before reading content)
	if header.Size > constraints.MaxSize {
		return "", fmt.Errorf("%w: maximum size is %d MB", ErrFileTooLarge, constraints.MaxSizeMB())
	}

	// Open file to read magic numbers
	file, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadableUpload, err)
	}
	defer func() { _ = file.Close() }()

	// http.DetectContentType reads max 512 bytes to determine MIME type
	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("%w: %v", ErrUnreadableUpload, err)
	}

	detectedType, err := detectType(buffer[:n], constraints)
	if err != nil {
		return "", err
	}

	// Additional validation: check file extension
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !constraints.AllowedExtensions[ext] {
		return "", fmt.Errorf("%w: %s", ErrInvalidExtension, ext)
	}

	_, err = file.Seek(0, io.SeekStart)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadableUpload, err)
	}
	err = checkDimensions(file, constraints)
	if err != nil {
		return "", err
	}

	return detectedType, nil
}

// ValidateBytes validates an in-memory image (bot uploads arrive base64 encoded)
// and returns its detected content type
func ValidateBytes(data []byte, constraints FileConstraints) (string, error) {
	if int64(len(data)) > constraints.MaxSize {
		return "", fmt.Errorf("%w: maximum size is %d MB", ErrFileTooLarge, constraints.MaxSizeMB())
	}

	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	detectedType, err := detectType(head, constraints)
	if err != nil {
		return "", err
	}

	err = checkDimensions(bytes.NewReader(data), constraints)
	if err != nil {
		return "", err
	}
	return detectedType, nil
}

// checkDimensions reads only the image header, so oversized canvases are
// rejected before anything decodes the pixels.
func checkDimensions(r io.Reader, constraints FileConstraints) error {
	if constraints.MaxPixels <= 0 && constraints.MaxSide <= 0 {
		return nil
	}

	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if constraints.MaxSide > 0 && (cfg.Width > constraints.MaxSide || cfg.Height > constraints.MaxSide) {
		return fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	if constraints.MaxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(constraints.MaxPixels) {
		return fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	return nil
}

// detectType checks magic numbers, which cannot be faked by changing the Content-Type header
func detectType(head []byte, constraints FileConstraints) (string, error) {
	detectedType := http.DetectContentType(head)
	if !constraints.AllowedMimeTypes[detectedType] {
		return "", fmt.Errorf("%w (detected: %s)", ErrUnsupportedType, detectedType)
	}
	return detectedType, nil
}
