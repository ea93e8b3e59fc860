// Package imageproc prepares images for vision models and for archival.
package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp" // Keep for decoding webp uploads
)

const (
	// DefaultMaxDimension bounds the longer edge of images sent to providers.
	DefaultMaxDimension = 1536
	jpegQuality         = 90
	webpQuality         = 80
)

// Info describes a decoded image.
type Info struct {
	Format string
	Width  int
	Height int
}

// Normalize decodes data, applies EXIF orientation, shrinks it to fit
// maxDim x maxDim and re-encodes it as JPEG, dropping all metadata.
func Normalize(data []byte, maxDim int) ([]byte, Info, error) {
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, Info{}, fmt.Errorf("failed to decode image config: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, Info{}, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxDim || bounds.Dy() > maxDim {
		img = resize.Thumbnail(uint(maxDim), uint(maxDim), img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, Info{}, fmt.Errorf("failed to encode image to jpeg: %w", err)
	}

	out := img.Bounds()
	return buf.Bytes(), Info{Format: format, Width: out.Dx(), Height: out.Dy()}, nil
}

// EncodeWebP re-encodes any supported image as lossy WebP.
func EncodeWebP(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	out, err := webp.EncodeRGBA(img, webpQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image to webp: %w", err)
	}
	return out, nil
}
