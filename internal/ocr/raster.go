package ocr

import (
	"context"
	"fmt"
	"image"
	_ "image/png" // decode rasterizer output
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// Rasterizer renders a single PDF page to an image.
type Rasterizer interface {
	RasterizePage(ctx context.Context, pdf []byte, page int) (image.Image, error)
}

// Poppler rasterizes PDF pages by shelling out to a pdftoppm binary.
type Poppler struct {
	binary string
	dpi    int
}

// NewPoppler creates a Rasterizer using the pdftoppm binary at path.
// dpi defaults to 150 when <= 0.
func NewPoppler(path string, dpi int) *Poppler {
	if dpi <= 0 {
		dpi = 150
	}
	return &Poppler{binary: path, dpi: dpi}
}

// RasterizePage renders the 1-indexed page to a PNG via a temp directory.
func (p *Poppler) RasterizePage(ctx context.Context, pdf []byte, page int) (image.Image, error) {
	dir, err := os.MkdirTemp("", "docsift-raster-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	pdfPath := filepath.Join(dir, "page.pdf")
	if err := os.WriteFile(pdfPath, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("writing temp pdf: %w", err)
	}

	outPrefix := filepath.Join(dir, "out")
	cmd := exec.CommandContext(ctx, p.binary,
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-r", strconv.Itoa(p.dpi),
		"-png", "-singlefile",
		pdfPath, outPrefix,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("running %s for page %d: %w (%s)", p.binary, page, err, out)
	}

	f, err := os.Open(outPrefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("opening rasterized page: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding rasterized page: %w", err)
	}
	return img, nil
}
