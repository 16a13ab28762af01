package extract

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"

	"github.com/docsift/docsift/internal/ocr"
)

type fakeEngine struct {
	recognizeFn  func(ctx context.Context, img image.Image) (string, error)
	paragraphsFn func(ctx context.Context, img image.Image) ([]string, error)
	calls        int
}

func (f *fakeEngine) Recognize(ctx context.Context, img image.Image) (string, error) {
	f.calls++
	if f.recognizeFn == nil {
		return "", nil
	}
	return f.recognizeFn(ctx, img)
}

func (f *fakeEngine) RecognizeParagraphs(ctx context.Context, img image.Image) ([]string, error) {
	f.calls++
	if f.paragraphsFn == nil {
		return nil, nil
	}
	return f.paragraphsFn(ctx, img)
}

type fakeRaster struct {
	fn func(ctx context.Context, pdf []byte, page int) (image.Image, error)
}

func (f *fakeRaster) RasterizePage(ctx context.Context, pdf []byte, page int) (image.Image, error) {
	if f.fn == nil {
		return image.NewGray(image.Rect(0, 0, 1, 1)), nil
	}
	return f.fn(ctx, pdf, page)
}

var _ ocr.Engine = (*fakeEngine)(nil)
var _ ocr.Rasterizer = (*fakeRaster)(nil)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 30)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test png: %v", err)
	}
	return buf.Bytes()
}

func assertRewound(t *testing.T, r io.Seeker) {
	t.Helper()
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		t.Fatalf("checking position: %v", err)
	}
	if pos != 0 {
		t.Errorf("stream position = %d, want 0", pos)
	}
}

func TestExtract_PlainText(t *testing.T) {
	e := New(&fakeEngine{}, &fakeRaster{})
	r := bytes.NewReader([]byte("hello world"))

	pages, err := e.Extract(context.Background(), r, "notes.txt")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("got %d pages, want 1", len(pages))
	}
	if pages[0].Number != 1 || pages[0].Text != "hello world" {
		t.Errorf("page = %+v", pages[0])
	}
	assertRewound(t, r)
}

func TestExtract_PlainTextDropsInvalidUTF8(t *testing.T) {
	e := New(&fakeEngine{}, &fakeRaster{})
	r := bytes.NewReader([]byte("go\xff\xfeod"))

	pages, err := e.Extract(context.Background(), r, "broken.TXT")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if pages[0].Text != "good" {
		t.Errorf("text = %q, want %q", pages[0].Text, "good")
	}
}

func TestExtract_UnsupportedExtension(t *testing.T) {
	engine := &fakeEngine{}
	e := New(engine, &fakeRaster{})
	r := bytes.NewReader([]byte("binary stuff"))

	pages, err := e.Extract(context.Background(), r, "report.docx")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if pages != nil {
		t.Errorf("got %d pages, want none", len(pages))
	}
	if engine.calls != 0 {
		t.Errorf("OCR invoked %d times for unsupported type", engine.calls)
	}
	assertRewound(t, r)
}

func TestExtract_Image(t *testing.T) {
	engine := &fakeEngine{
		paragraphsFn: func(ctx context.Context, img image.Image) ([]string, error) {
			// Preprocessing upscales 2.5x before OCR sees the image.
			if got := img.Bounds().Dx(); got != 20 {
				t.Errorf("OCR input width = %d, want 20", got)
			}
			return []string{"Name: Ada", "Badge: 77"}, nil
		},
	}
	e := New(engine, &fakeRaster{})
	r := bytes.NewReader(pngBytes(t))

	pages, err := e.Extract(context.Background(), r, "scan.png")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("got %d pages, want 1", len(pages))
	}
	if pages[0].Text != "Name: Ada\nBadge: 77" {
		t.Errorf("text = %q", pages[0].Text)
	}
	assertRewound(t, r)
}

func TestPDFPageText_EmbeddedTextSkipsOCR(t *testing.T) {
	engine := &fakeEngine{}
	rastered := false
	raster := &fakeRaster{fn: func(ctx context.Context, pdf []byte, page int) (image.Image, error) {
		rastered = true
		return image.NewGray(image.Rect(0, 0, 1, 1)), nil
	}}
	e := New(engine, raster)

	text, err := e.pdfPageText(context.Background(), []byte("%PDF"), 1, "Invoice No. 4471\n")
	if err != nil {
		t.Fatalf("pdfPageText: %v", err)
	}
	if text != "Invoice No. 4471\n" {
		t.Errorf("text = %q, want embedded text verbatim", text)
	}
	if rastered || engine.calls != 0 {
		t.Error("OCR path invoked for a page with embedded text")
	}
}

func TestPDFPageText_BlankPageFallsBackToOCR(t *testing.T) {
	engine := &fakeEngine{
		recognizeFn: func(ctx context.Context, img image.Image) (string, error) {
			return "Total due: 99.50", nil
		},
	}
	rasteredPage := 0
	raster := &fakeRaster{fn: func(ctx context.Context, pdf []byte, page int) (image.Image, error) {
		rasteredPage = page
		return image.NewGray(image.Rect(0, 0, 1, 1)), nil
	}}
	e := New(engine, raster)

	// Whitespace-only embedded text counts as a blank page.
	text, err := e.pdfPageText(context.Background(), []byte("%PDF"), 3, "  \n\t")
	if err != nil {
		t.Fatalf("pdfPageText: %v", err)
	}
	if text != "Total due: 99.50" {
		t.Errorf("text = %q, want OCR output verbatim", text)
	}
	if rasteredPage != 3 {
		t.Errorf("rasterized page %d, want 3", rasteredPage)
	}
	if engine.calls != 1 {
		t.Errorf("OCR invoked %d times, want 1", engine.calls)
	}
}

func TestExtract_PDFParseErrorStillRewinds(t *testing.T) {
	e := New(&fakeEngine{}, &fakeRaster{})
	r := bytes.NewReader([]byte("not a pdf"))

	if _, err := e.Extract(context.Background(), r, "broken.pdf"); err == nil {
		t.Fatal("expected error for unparseable pdf")
	}
	assertRewound(t, r)
}

func TestExtract_ImageDecodeError(t *testing.T) {
	e := New(&fakeEngine{}, &fakeRaster{})
	r := bytes.NewReader([]byte("not a png"))

	if _, err := e.Extract(context.Background(), r, "scan.png"); err == nil {
		t.Fatal("expected error for undecodable image")
	}
	assertRewound(t, r)
}
