package mission

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestDiffPNG_IdenticalImages(t *testing.T) {
	data := encodePNG(t, solidImage(10, 10, color.RGBA{50, 100, 150, 255}))
	pct, err := DiffPNG(data, data, DefaultDiffThreshold)
	if err != nil {
		t.Fatalf("DiffPNG: %v", err)
	}
	if pct != 0 {
		t.Errorf("pct = %v, want 0", pct)
	}
}

func TestDiffPNG_CountsChangedPixels(t *testing.T) {
	base := solidImage(10, 10, color.RGBA{50, 100, 150, 255})
	changed := solidImage(10, 10, color.RGBA{50, 100, 150, 255})
	changed.SetRGBA(3, 7, color.RGBA{250, 0, 0, 255})

	pct, err := DiffPNG(encodePNG(t, changed), encodePNG(t, base), DefaultDiffThreshold)
	if err != nil {
		t.Fatalf("DiffPNG: %v", err)
	}
	if pct != 1 {
		t.Errorf("pct = %v, want 1 (one pixel of 100)", pct)
	}
}

func TestDiffPNG_ThresholdAbsorbsDither(t *testing.T) {
	base := solidImage(10, 10, color.RGBA{50, 100, 150, 255})
	dithered := solidImage(10, 10, color.RGBA{50, 100, 150, 255})
	dithered.SetRGBA(0, 0, color.RGBA{60, 100, 150, 255}) // delta 10

	got := encodePNG(t, dithered)
	want := encodePNG(t, base)

	pct, err := DiffPNG(got, want, 16)
	if err != nil {
		t.Fatalf("DiffPNG: %v", err)
	}
	if pct != 0 {
		t.Errorf("pct at threshold 16 = %v, want 0", pct)
	}

	pct, err = DiffPNG(got, want, 5)
	if err != nil {
		t.Fatalf("DiffPNG: %v", err)
	}
	if pct != 1 {
		t.Errorf("pct at threshold 5 = %v, want 1", pct)
	}
}

func TestDiffPNG_SizeMismatch(t *testing.T) {
	a := encodePNG(t, solidImage(10, 10, color.RGBA{0, 0, 0, 255}))
	b := encodePNG(t, solidImage(8, 10, color.RGBA{0, 0, 0, 255}))
	_, err := DiffPNG(a, b, DefaultDiffThreshold)
	if err == nil || !strings.Contains(err.Error(), "size mismatch") {
		t.Fatalf("error = %v, want size mismatch", err)
	}
}

func TestDiffPNG_RejectsBadData(t *testing.T) {
	good := encodePNG(t, solidImage(2, 2, color.RGBA{0, 0, 0, 255}))
	if _, err := DiffPNG([]byte("not a png"), good, 16); err == nil || !strings.Contains(err.Error(), "decode captured image") {
		t.Fatalf("error = %v, want captured decode failure", err)
	}
	if _, err := DiffPNG(good, []byte("not a png"), 16); err == nil || !strings.Contains(err.Error(), "decode golden image") {
		t.Fatalf("error = %v, want golden decode failure", err)
	}
}
