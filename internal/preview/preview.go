// Package preview renders enlarged or bounded copies of target images for the
// zoom view. Source images are never modified.
package preview

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// MaxZoom bounds the enlargement factor
const MaxZoom = 4.0

// Dimensions returns the width and height of an image without decoding pixels
func Dimensions(path string) (int, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return 0, 0, err
	}

	return cfg.Width, cfg.Height, nil
}

// Zoom enlarges the image at path by factor, clamped to (1, MaxZoom]
func Zoom(path string, factor float64) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	if factor <= 1 {
		return img, nil
	}
	if factor > MaxZoom {
		factor = MaxZoom
	}

	bounds := img.Bounds()
	width := int(float64(bounds.Dx()) * factor)
	return imaging.Resize(img, width, 0, imaging.Lanczos), nil
}

// Fit bounds the image at path to maxDim on its longest side. Smaller images
// are returned unchanged.
func Fit(path string, maxDim int) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	return Bound(img, maxDim), nil
}

// Bound shrinks img to fit maxDim on its longest side
func Bound(img image.Image, maxDim int) image.Image {
	if maxDim <= 0 {
		return img
	}
	return imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
}

// Encode writes img in the format implied by the source path extension
func Encode(w io.Writer, img image.Image, sourcePath string) error {
	return imaging.Encode(w, img, Format(sourcePath))
}

// Format maps a file extension to an output format, defaulting to PNG
func Format(path string) imaging.Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return imaging.JPEG
	default:
		return imaging.PNG
	}
}

// ContentType returns the MIME type matching Format
func ContentType(path string) string {
	if Format(path) == imaging.JPEG {
		return "image/jpeg"
	}
	return "image/png"
}
