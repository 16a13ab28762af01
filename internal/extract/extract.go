// Package extract turns uploaded files into per-page text, falling back to
// OCR for image-only PDF pages and running a preprocessing pipeline plus
// paragraph-aware OCR for raw document scans.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/docsift/docsift/internal/imaging"
	"github.com/docsift/docsift/internal/ocr"
)

// Page is one page of extracted text. Numbers are 1-indexed.
type Page struct {
	Number int
	Text   string
}

// Extractor dispatches on file extension to produce page text.
type Extractor struct {
	engine ocr.Engine
	raster ocr.Rasterizer
}

// New creates an Extractor using the given OCR engine and PDF rasterizer.
func New(engine ocr.Engine, raster ocr.Rasterizer) *Extractor {
	return &Extractor{engine: engine, raster: raster}
}

// Extract reads r fully and returns its pages. The type is inferred from
// the filename extension only; unsupported extensions yield nil pages and
// no error. Whatever branch is taken, r is rewound to the start before
// returning so callers can reuse the stream.
func (e *Extractor) Extract(ctx context.Context, r io.ReadSeeker, filename string) (pages []Page, err error) {
	defer func() {
		if _, serr := r.Seek(0, io.SeekStart); serr != nil && err == nil {
			err = fmt.Errorf("rewinding input: %w", serr)
		}
	}()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		// Undecodable bytes are dropped, not replaced.
		return []Page{{Number: 1, Text: strings.ToValidUTF8(string(data), "")}}, nil
	case ".pdf":
		return e.extractPDF(ctx, data)
	case ".png", ".jpg", ".jpeg":
		return e.extractImage(ctx, data)
	default:
		return nil, nil
	}
}

// extractPDF pulls embedded text per page. A page with no embedded text is
// rasterized and OCR'd; the decision is made independently per page, so a
// mixed document may have some pages OCR'd and others not.
func (e *Extractor) extractPDF(ctx context.Context, data []byte) ([]Page, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parsing pdf: %w", err)
	}

	pages := make([]Page, 0, reader.NumPage())
	for num := 1; num <= reader.NumPage(); num++ {
		page := reader.Page(num)

		var embedded string
		if !page.V.IsNull() {
			// An extraction error is treated the same as an empty page:
			// the OCR fallback decides.
			embedded, _ = page.GetPlainText(nil)
		}

		text, err := e.pdfPageText(ctx, data, num, embedded)
		if err != nil {
			return nil, err
		}
		pages = append(pages, Page{Number: num, Text: text})
	}
	return pages, nil
}

// pdfPageText keeps a page's embedded text when it has any; an empty or
// whitespace-only page is rasterized and OCR'd instead, its output used
// verbatim.
func (e *Extractor) pdfPageText(ctx context.Context, data []byte, num int, embedded string) (string, error) {
	if strings.TrimSpace(embedded) != "" {
		return embedded, nil
	}
	img, err := e.raster.RasterizePage(ctx, data, num)
	if err != nil {
		return "", fmt.Errorf("rasterizing page %d: %w", num, err)
	}
	text, err := e.engine.Recognize(ctx, img)
	if err != nil {
		return "", fmt.Errorf("ocr on page %d: %w", num, err)
	}
	return text, nil
}

// extractImage preprocesses a scanned document image and runs
// paragraph-aware OCR, joining paragraphs with newlines. Single page.
func (e *Extractor) extractImage(ctx context.Context, data []byte) ([]Page, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	processed := imaging.Preprocess(img)
	paragraphs, err := e.engine.RecognizeParagraphs(ctx, processed)
	if err != nil {
		return nil, fmt.Errorf("ocr on image: %w", err)
	}

	return []Page{{Number: 1, Text: strings.Join(paragraphs, "\n")}}, nil
}
