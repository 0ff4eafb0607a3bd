package storage

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// DefaultThumbWidth is the preview width in pixels.
const DefaultThumbWidth = 320

// Thumbnail decodes an image and re-encodes it as a JPEG no wider than width.
// Smaller images keep their size.
func Thumbnail(data []byte, width int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("thumbnail decode: %w", err)
	}
	if img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, fmt.Errorf("thumbnail encode: %w", err)
	}
	return buf.Bytes(), nil
}
