package capture

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"golang.org/x/image/draw"
)

// maxSurfacePixels bounds surface allocation to 8K.
const maxSurfacePixels = 7680 * 4320

// Surface is an in-memory RGBA raster safe for concurrent draw and sample.
type Surface struct {
	mu       sync.Mutex
	img      *image.RGBA
	released bool
}

// NewSurface allocates a width×height surface.
func NewSurface(width, height int) (*Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid surface size %dx%d", width, height)
	}
	if width*height > maxSurfacePixels {
		return nil, fmt.Errorf("surface %dx%d exceeds maximum size", width, height)
	}
	return &Surface{img: image.NewRGBA(image.Rect(0, 0, width, height))}, nil
}

// Bounds returns the surface rectangle.
func (s *Surface) Bounds() image.Rectangle {
	return s.img.Bounds()
}

// Draw paints img over the whole surface, scaling if sizes differ.
func (s *Surface) Draw(img image.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return errors.New("surface released")
	}
	if img.Bounds().Size() == s.img.Bounds().Size() {
		draw.Draw(s.img, s.img.Bounds(), img, img.Bounds().Min, draw.Src)
		return nil
	}
	draw.ApproxBiLinear.Scale(s.img, s.img.Bounds(), img, img.Bounds(), draw.Src, nil)
	return nil
}

// CopyPixels copies the current raster into dst, which must be at least
// width*height*4 bytes.
func (s *Surface) CopyPixels(dst []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copy(dst, s.img.Pix)
}

// Release frees the raster. Further draws fail.
func (s *Surface) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
}
