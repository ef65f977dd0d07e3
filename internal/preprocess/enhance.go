// Package preprocess boosts the contrast of scanned answer images before
// they are stored and sent to OCR.
package preprocess

import (
	"bytes"
	"fmt"
	"image/color"
	_ "image/gif"  // decoder
	_ "image/jpeg" // decoder
	_ "image/png"  // decoder
	"io"
	"math"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // decoder
	_ "golang.org/x/image/tiff" // decoder
	_ "golang.org/x/image/webp" // decoder
)

const (
	// JPEGQuality is the encode quality of enhanced images.
	JPEGQuality = 90
	// ContentType of every enhanced image.
	ContentType = "image/jpeg"

	midpoint = 128
	shift    = 50
)

// Enhance converts the image to grayscale and pushes every pixel 50 levels
// away from mid-gray, then re-encodes it as JPEG. EXIF orientation is
// applied while decoding.
func Enhance(r io.Reader) ([]byte, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	out := imaging.AdjustFunc(img, contrast)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// EnhanceOrOriginal enhances data and reports the content type to store it
// under. Input that cannot be decoded is returned untouched with origType.
func EnhanceOrOriginal(data []byte, origType string) ([]byte, string, bool) {
	out, err := Enhance(bytes.NewReader(data))
	if err != nil {
		return data, origType, false
	}
	return out, ContentType, true
}

func contrast(c color.NRGBA) color.NRGBA {
	v := level(c.R, c.G, c.B)
	return color.NRGBA{R: v, G: v, B: v, A: c.A}
}

func level(r, g, b uint8) uint8 {
	avg := (float64(r) + float64(g) + float64(b)) / 3
	if avg < midpoint {
		avg = math.Max(0, avg-shift)
	} else {
		avg = math.Min(255, avg+shift)
	}
	return uint8(math.RoundToEven(avg))
}
