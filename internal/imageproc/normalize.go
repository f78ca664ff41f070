package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
)

// Normalize stretches each of the R, G and B channels linearly so that its
// darkest value becomes 0 and its brightest 255. Channels with a single value
// and the alpha channel are left alone.
func Normalize(img image.Image) *image.NRGBA {
	src := imaging.Clone(img)

	lo := [3]uint8{255, 255, 255}
	hi := [3]uint8{0, 0, 0}
	for i := 0; i+3 < len(src.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			v := src.Pix[i+c]
			if v < lo[c] {
				lo[c] = v
			}
			if v > hi[c] {
				hi[c] = v
			}
		}
	}

	var lut [3][256]uint8
	for c := 0; c < 3; c++ {
		for v := 0; v < 256; v++ {
			lut[c][v] = uint8(v)
		}
		if lo[c] >= hi[c] {
			continue
		}
		scale := 255.0 / float64(hi[c]-lo[c])
		for v := int(lo[c]); v <= int(hi[c]); v++ {
			lut[c][v] = uint8(float64(v-int(lo[c])) * scale)
		}
	}

	return imaging.AdjustFunc(src, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: lut[0][c.R], G: lut[1][c.G], B: lut[2][c.B], A: c.A}
	})
}

// ProcessedPath is where the normalized variant of a frame is stored.
func ProcessedPath(framePath string) string {
	return strings.TrimSuffix(framePath, ".jpg") + "_processed.jpg"
}

// Prepare normalizes the frame at framePath, saves the normalized JPEG next to
// it and returns the PNG encoding that is sent to the classifier.
func Prepare(framePath string) ([]byte, error) {
	img, err := imaging.Open(framePath)
	if err != nil {
		return nil, fmt.Errorf("open frame %s: %w", framePath, err)
	}

	normalized := Normalize(img)

	if err := imaging.Save(normalized, ProcessedPath(framePath), imaging.JPEGQuality(95)); err != nil {
		return nil, fmt.Errorf("save normalized frame: %w", err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, normalized, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode normalized frame: %w", err)
	}
	return buf.Bytes(), nil
}
