package blob

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultImageMaxEdge = 2048
	DefaultJPEGQuality  = 85

	maxSourcePixels = 50_000_000
)

type NormalizedImage struct {
	MimeType string
	Width    int
	Height   int
}

// NormalizeImageFile rewrites the image at path in place, downscaling it so
// neither edge exceeds maxEdge. Images with transparency are written as PNG,
// everything else as JPEG. Animated GIFs keep only their first frame.
func NormalizeImageFile(path string, maxEdge, quality int) (*NormalizedImage, error) {
	if maxEdge <= 0 {
		maxEdge = DefaultImageMaxEdge
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	src, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer src.Close()

	cfg, _, err := image.DecodeConfig(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxSourcePixels {
		return nil, ErrInvalidImage
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding image: %w", err)
	}

	img, _, err := image.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, ErrInvalidImage
	}

	width, height := scaleDimensions(bounds.Dx(), bounds.Dy(), maxEdge)
	scaled := image.NewNRGBA(image.Rect(0, 0, width, height))
	if width == bounds.Dx() && height == bounds.Dy() {
		draw.Draw(scaled, scaled.Bounds(), img, bounds.Min, draw.Src)
	} else {
		xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), img, bounds, xdraw.Src, nil)
	}

	buf := bytes.NewBuffer(nil)
	mimeType := "image/jpeg"
	if !isOpaque(img) {
		mimeType = "image/png"
		err = png.Encode(buf, scaled)
	} else {
		err = jpeg.Encode(buf, scaled, &jpeg.Options{Quality: quality})
	}
	if err != nil {
		return nil, fmt.Errorf("encoding image: %w", err)
	}

	if err := replaceFile(path, buf.Bytes()); err != nil {
		return nil, err
	}

	return &NormalizedImage{MimeType: mimeType, Width: width, Height: height}, nil
}

func replaceFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "normalize-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary image file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temporary image file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing image: %w", err)
	}
	return nil
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}

func scaleDimensions(width, height, maxEdge int) (int, int) {
	if width <= maxEdge && height <= maxEdge {
		return width, height
	}

	if width >= height {
		scaled := int(float64(height)*float64(maxEdge)/float64(width) + 0.5)
		return maxEdge, max(scaled, 1)
	}

	scaled := int(float64(width)*float64(maxEdge)/float64(height) + 0.5)
	return max(scaled, 1), maxEdge
}
