package imaging

import (
	"image"
	"image/color"
	"testing"
)

// makeGradient builds a grayscale test image with a horizontal ramp.
func makeGradient(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 255 / maxInt(w-1, 1))})
		}
	}
	return img
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func TestUpscale_Dimensions(t *testing.T) {
	src := makeGradient(40, 20)
	dst := Upscale(src, ScaleFactor)
	if got := dst.Bounds().Dx(); got != 100 {
		t.Errorf("width = %d, want 100", got)
	}
	if got := dst.Bounds().Dy(); got != 50 {
		t.Errorf("height = %d, want 50", got)
	}
}

func TestGrayscale_UniformColor(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			src.Set(x, y, color.RGBA{R: 200, G: 200, B: 200, A: 255})
		}
	}
	gray := Grayscale(src)
	if got := gray.GrayAt(2, 2).Y; got != 200 {
		t.Errorf("gray value = %d, want 200", got)
	}
}

func TestBilateral_PreservesUniformRegions(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 30, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 30; x++ {
			src.SetGray(x, y, color.Gray{Y: 128})
		}
	}
	dst := Bilateral(src, 11, 17, 17)
	if got := dst.GrayAt(15, 15).Y; got != 128 {
		t.Errorf("uniform region changed: got %d, want 128", got)
	}
}

func TestBilateral_SmoothsNoise(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 31, 31))
	for y := 0; y < 31; y++ {
		for x := 0; x < 31; x++ {
			src.SetGray(x, y, color.Gray{Y: 100})
		}
	}
	// Single-pixel speckle close in intensity to its surroundings.
	src.SetGray(15, 15, color.Gray{Y: 110})

	dst := Bilateral(src, 11, 17, 17)
	if got := dst.GrayAt(15, 15).Y; got >= 110 {
		t.Errorf("speckle not smoothed: got %d, want < 110", got)
	}
}

func TestCLAHE_StretchesLowContrast(t *testing.T) {
	// Narrow intensity band; equalization should widen the spread.
	src := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			src.SetGray(x, y, color.Gray{Y: uint8(120 + (x+y)%16)})
		}
	}
	dst := CLAHE(src, claheClipLimit, claheTiles, claheTiles)

	lo, hi := uint8(255), uint8(0)
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			v := dst.GrayAt(x, y).Y
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	if int(hi)-int(lo) <= 16 {
		t.Errorf("contrast not stretched: range [%d, %d]", lo, hi)
	}
}

func TestSharpen_UniformUnchanged(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			src.SetGray(x, y, color.Gray{Y: 77})
		}
	}
	dst := Sharpen(src)
	// Kernel sums to 1, so flat regions pass through.
	if got := dst.GrayAt(5, 5).Y; got != 77 {
		t.Errorf("flat region changed: got %d, want 77", got)
	}
}

func TestPreprocess_OutputScaled(t *testing.T) {
	src := makeGradient(20, 10)
	out := Preprocess(src)
	if got := out.Bounds().Dx(); got != 50 {
		t.Errorf("width = %d, want 50", got)
	}
	if got := out.Bounds().Dy(); got != 25 {
		t.Errorf("height = %d, want 25", got)
	}
}
