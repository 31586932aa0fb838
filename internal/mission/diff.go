package mission

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
)

// DefaultDiffThreshold is the per-channel delta below which two pixels
// count as equal. Engine viewports dither slightly between identical
// frames, so exact equality is the wrong test.
const DefaultDiffThreshold = 16

// DiffPNG decodes both images and returns the percentage of pixels
// whose channel delta exceeds threshold.
func DiffPNG(got, want []byte, threshold int) (float64, error) {
	gi, err := png.Decode(bytes.NewReader(got))
	if err != nil {
		return 0, fmt.Errorf("decode captured image: %w", err)
	}
	wi, err := png.Decode(bytes.NewReader(want))
	if err != nil {
		return 0, fmt.Errorf("decode golden image: %w", err)
	}
	return diffImages(gi, wi, threshold)
}

func diffImages(got, want image.Image, threshold int) (float64, error) {
	gb, wb := got.Bounds(), want.Bounds()
	if gb.Dx() != wb.Dx() || gb.Dy() != wb.Dy() {
		return 0, fmt.Errorf("size mismatch: %dx%d vs %dx%d", gb.Dx(), gb.Dy(), wb.Dx(), wb.Dy())
	}

	// Flatten both into RGBA so the pixel walk does not depend on the
	// source color model.
	ra := image.NewRGBA(image.Rect(0, 0, gb.Dx(), gb.Dy()))
	rb := image.NewRGBA(ra.Bounds())
	draw.Draw(ra, ra.Bounds(), got, gb.Min, draw.Src)
	draw.Draw(rb, rb.Bounds(), want, wb.Min, draw.Src)

	total := gb.Dx() * gb.Dy()
	if total == 0 {
		return 0, nil
	}
	differing := 0
	for i := 0; i < len(ra.Pix); i += 4 {
		delta := 0
		for c := 0; c < 4; c++ {
			d := int(ra.Pix[i+c]) - int(rb.Pix[i+c])
			if d < 0 {
				d = -d
			}
			if d > delta {
				delta = d
			}
		}
		if delta > threshold {
			differing++
		}
	}
	return float64(differing) * 100 / float64(total), nil
}
