// internal/chat/compressor.go

package chat

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	// decoders for image.Decode
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxDimension = 1600
	DefaultTargetBytes  = 800 * 1024
	// about 200 MB of RGBA once decoded
	DefaultMaxPixels = 50_000_000
)

// jpeg qualities tried in order until the output fits the target
var qualitySteps = []int{85, 75, 65, 55, 45}

var (
	ErrUndecodableImage = errors.New("image format not supported for compression")
	ErrImageTooLarge    = errors.New("image too large to decode")
)

// Compressor bounds an image's longest side and encoded size before upload
type Compressor struct {
	MaxDimension int
	TargetBytes  int
	// MaxPixels bounds width*height of images that get decoded; zero means DefaultMaxPixels
	MaxPixels int
}

// Compress returns a JPEG that fits MaxDimension and, when reachable,
// TargetBytes. Images that already fit are returned untouched, as are GIFs
// which may be animated.
func (c Compressor) Compress(data []byte, contentType string) ([]byte, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return data, contentType, fmt.Errorf("%w: %v", ErrUndecodableImage, err)
	}
	if format == "gif" {
		return data, contentType, nil
	}

	tooLarge := cfg.Width > c.MaxDimension || cfg.Height > c.MaxDimension
	if !tooLarge && len(data) <= c.TargetBytes {
		return data, contentType, nil
	}

	maxPixels := c.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return data, contentType, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data, contentType, fmt.Errorf("%w: %v", ErrUndecodableImage, err)
	}

	w, h := fitWithin(cfg.Width, cfg.Height, c.MaxDimension)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// JPEG has no alpha; flatten onto white
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var best []byte
	for _, q := range qualitySteps {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: q}); err != nil {
			return data, contentType, fmt.Errorf("encode jpeg: %w", err)
		}
		best = buf.Bytes()
		if len(best) <= c.TargetBytes {
			break
		}
	}

	// Re-encoding a small but oversized-on-disk image can grow it
	if !tooLarge && len(best) >= len(data) {
		return data, contentType, nil
	}
	return best, "image/jpeg", nil
}

// fitWithin scales w x h down so the longest side is at most max
func fitWithin(w, h, max int) (int, int) {
	if w <= max && h <= max {
		return w, h
	}
	if w >= h {
		nh := h * max / w
		if nh < 1 {
			nh = 1
		}
		return max, nh
	}
	nw := w * max / h
	if nw < 1 {
		nw = 1
	}
	return nw, max
}
