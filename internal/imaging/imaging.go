// Package imaging implements the deterministic preprocessing pipeline applied
// to scanned document images before OCR: cubic upscaling, grayscale
// conversion, edge-preserving smoothing, local contrast enhancement, and
// sharpening. The parameters are tuned for printed document scans.
package imaging

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

const (
	// ScaleFactor is the fixed upscale applied before OCR.
	ScaleFactor = 2.5

	bilateralDiameter   = 11
	bilateralSigmaColor = 17.0
	bilateralSigmaSpace = 17.0

	claheClipLimit = 2.0
	claheTiles     = 8
)

// Preprocess runs the full document-scan pipeline and returns a grayscale
// image ready for OCR.
func Preprocess(src image.Image) *image.Gray {
	up := Upscale(src, ScaleFactor)
	gray := Grayscale(up)
	gray = Bilateral(gray, bilateralDiameter, bilateralSigmaColor, bilateralSigmaSpace)
	gray = CLAHE(gray, claheClipLimit, claheTiles, claheTiles)
	return Sharpen(gray)
}

// Upscale resizes src by factor using Catmull-Rom resampling.
func Upscale(src image.Image, factor float64) image.Image {
	b := src.Bounds()
	w := int(math.Round(float64(b.Dx()) * factor))
	h := int(math.Round(float64(b.Dy()) * factor))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// Grayscale converts src to an 8-bit grayscale image.
func Grayscale(src image.Image) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.SetGray(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(src.At(x, y)).(color.Gray))
		}
	}
	return dst
}

// Bilateral applies an edge-preserving bilateral filter with the given
// neighborhood diameter and color/space sigmas. Borders are replicated.
func Bilateral(src *image.Gray, diameter int, sigmaColor, sigmaSpace float64) *image.Gray {
	radius := diameter / 2
	w := src.Bounds().Dx()
	h := src.Bounds().Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))

	// Spatial weights depend only on the offset; color weights only on the
	// intensity difference. Both are precomputed.
	spatial := make([]float64, (2*radius+1)*(2*radius+1))
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			d2 := float64(dx*dx + dy*dy)
			spatial[(dy+radius)*(2*radius+1)+(dx+radius)] = math.Exp(-d2 / (2 * sigmaSpace * sigmaSpace))
		}
	}
	var colorW [256]float64
	for i := range colorW {
		d := float64(i)
		colorW[i] = math.Exp(-(d * d) / (2 * sigmaColor * sigmaColor))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			center := src.GrayAt(x, y).Y
			var sum, norm float64
			for dy := -radius; dy <= radius; dy++ {
				sy := clampInt(y+dy, 0, h-1)
				for dx := -radius; dx <= radius; dx++ {
					sx := clampInt(x+dx, 0, w-1)
					v := src.GrayAt(sx, sy).Y
					diff := int(v) - int(center)
					if diff < 0 {
						diff = -diff
					}
					wgt := spatial[(dy+radius)*(2*radius+1)+(dx+radius)] * colorW[diff]
					sum += wgt * float64(v)
					norm += wgt
				}
			}
			dst.SetGray(x, y, color.Gray{Y: uint8(math.Round(sum / norm))})
		}
	}
	return dst
}

// CLAHE applies contrast-limited adaptive histogram equalization over a
// tilesX by tilesY grid with the given clip limit (relative, OpenCV
// convention: the per-bin cap is clipLimit*tileArea/256).
func CLAHE(src *image.Gray, clipLimit float64, tilesX, tilesY int) *image.Gray {
	w := src.Bounds().Dx()
	h := src.Bounds().Dy()
	if w == 0 || h == 0 {
		return src
	}

	tileW := (w + tilesX - 1) / tilesX
	tileH := (h + tilesY - 1) / tilesY

	// Per-tile equalization lookup tables.
	luts := make([][256]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			x0, y0 := tx*tileW, ty*tileH
			x1, y1 := minInt(x0+tileW, w), minInt(y0+tileH, h)

			var hist [256]int
			area := 0
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					hist[src.GrayAt(x, y).Y]++
					area++
				}
			}
			if area == 0 {
				continue
			}

			// Clip the histogram and redistribute the excess uniformly.
			limit := int(clipLimit * float64(area) / 256)
			if limit < 1 {
				limit = 1
			}
			excess := 0
			for i := range hist {
				if hist[i] > limit {
					excess += hist[i] - limit
					hist[i] = limit
				}
			}
			bonus := excess / 256
			for i := range hist {
				hist[i] += bonus
			}

			cum := 0
			lut := &luts[ty*tilesX+tx]
			for i := range hist {
				cum += hist[i]
				lut[i] = uint8(clampInt(cum*255/area, 0, 255))
			}
		}
	}

	// Bilinear interpolation between the four nearest tile mappings.
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		fy := (float64(y)-float64(tileH)/2 + 0.5) / float64(tileH)
		ty0 := clampInt(int(math.Floor(fy)), 0, tilesY-1)
		ty1 := clampInt(ty0+1, 0, tilesY-1)
		wy := fy - math.Floor(fy)
		if fy < 0 {
			ty1 = ty0
			wy = 0
		}
		for x := 0; x < w; x++ {
			fx := (float64(x)-float64(tileW)/2 + 0.5) / float64(tileW)
			tx0 := clampInt(int(math.Floor(fx)), 0, tilesX-1)
			tx1 := clampInt(tx0+1, 0, tilesX-1)
			wx := fx - math.Floor(fx)
			if fx < 0 {
				tx1 = tx0
				wx = 0
			}

			v := src.GrayAt(x, y).Y
			tl := float64(luts[ty0*tilesX+tx0][v])
			tr := float64(luts[ty0*tilesX+tx1][v])
			bl := float64(luts[ty1*tilesX+tx0][v])
			br := float64(luts[ty1*tilesX+tx1][v])
			top := tl*(1-wx) + tr*wx
			bottom := bl*(1-wx) + br*wx
			dst.SetGray(x, y, color.Gray{Y: uint8(math.Round(top*(1-wy) + bottom*wy))})
		}
	}
	return dst
}

// sharpenKernel boosts edges after smoothing and equalization.
var sharpenKernel = [3][3]int{
	{0, -1, 0},
	{-1, 5, -1},
	{0, -1, 0},
}

// Sharpen convolves src with the 3x3 sharpening kernel. Borders are
// replicated and the result is clamped to [0, 255].
func Sharpen(src *image.Gray) *image.Gray {
	w := src.Bounds().Dx()
	h := src.Bounds().Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0
			for ky := -1; ky <= 1; ky++ {
				sy := clampInt(y+ky, 0, h-1)
				for kx := -1; kx <= 1; kx++ {
					sx := clampInt(x+kx, 0, w-1)
					sum += sharpenKernel[ky+1][kx+1] * int(src.GrayAt(sx, sy).Y)
				}
			}
			dst.SetGray(x, y, color.Gray{Y: uint8(clampInt(sum, 0, 255))})
		}
	}
	return dst
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
