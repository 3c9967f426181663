package media

import (
	"fmt"
	"image"
	"io"

	"bitzomax/internal/logging"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // WebP format support
)

const (
	// MaxImageDimension is the maximum width or height we'll process.
	// Larger images are downscaled before fitting.
	MaxImageDimension = 4096

	// MaxImagePixels is the maximum total pixels (width * height) we'll
	// decode, ~20MP or ~80MB in RGBA.
	MaxImagePixels = 20_000_000
)

// ErrImageTooLarge is returned for images whose header declares more pixels
// than MaxImagePixels.
var ErrImageTooLarge = fmt.Errorf("image exceeds %d pixels", MaxImagePixels)

// DecodeImage reads an image from r, honoring EXIF orientation. The header
// is checked first so oversized images are rejected before allocation.
func DecodeImage(r io.ReadSeeker) (image.Image, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return nil, fmt.Errorf("unrecognized image: %w", err)
	}
	if cfg.Width*cfg.Height > MaxImagePixels {
		return nil, ErrImageTooLarge
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	logging.Debug("Decoding %s image %dx%d", format, cfg.Width, cfg.Height)

	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s image: %w", format, err)
	}
	return constrain(img, MaxImageDimension), nil
}

// constrain downscales img so neither side exceeds maxDimension.
func constrain(img image.Image, maxDimension int) image.Image {
	b := img.Bounds()
	if b.Dx() <= maxDimension && b.Dy() <= maxDimension {
		return img
	}
	logging.Debug("Constraining image from %dx%d to fit %d", b.Dx(), b.Dy(), maxDimension)
	return imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)
}
