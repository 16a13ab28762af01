// Package ocr wraps external recognition tools behind narrow interfaces.
// Tool binary locations are configuration, resolved at startup.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"
	"strings"
)

// Engine runs text recognition on images.
type Engine interface {
	// Recognize returns the plain text found in img.
	Recognize(ctx context.Context, img image.Image) (string, error)

	// RecognizeParagraphs returns detected paragraphs in reading order.
	RecognizeParagraphs(ctx context.Context, img image.Image) ([]string, error)
}

// Tesseract shells out to a tesseract binary. Images are piped through
// stdin as PNG; no temp files are written.
type Tesseract struct {
	binary string
	lang   string
}

// NewTesseract creates an Engine backed by the tesseract binary at path.
// lang defaults to "eng" when empty.
func NewTesseract(path, lang string) *Tesseract {
	if lang == "" {
		lang = "eng"
	}
	return &Tesseract{binary: path, lang: lang}
}

func (t *Tesseract) Recognize(ctx context.Context, img image.Image) (string, error) {
	out, err := t.run(ctx, img, "txt")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (t *Tesseract) RecognizeParagraphs(ctx context.Context, img image.Image) ([]string, error) {
	out, err := t.run(ctx, img, "tsv")
	if err != nil {
		return nil, err
	}
	return parseTSVParagraphs(string(out)), nil
}

func (t *Tesseract) run(ctx context.Context, img image.Image, format string) ([]byte, error) {
	var in bytes.Buffer
	if err := png.Encode(&in, img); err != nil {
		return nil, fmt.Errorf("encoding image for ocr: %w", err)
	}

	args := []string{"stdin", "stdout", "-l", t.lang}
	if format != "txt" {
		args = append(args, format)
	}
	cmd := exec.CommandContext(ctx, t.binary, args...)
	cmd.Stdin = &in

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("running %s: %w (%s)", t.binary, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// tsv column indexes for tesseract's TSV output.
const (
	tsvLevel    = 0
	tsvBlockNum = 2
	tsvParNum   = 3
	tsvText     = 11
	tsvColumns  = 12

	tsvLevelWord = 5
)

// parseTSVParagraphs groups word rows of tesseract TSV output into
// paragraphs keyed by (block, paragraph) and returns them in reading order.
func parseTSVParagraphs(tsv string) []string {
	type parKey struct{ block, par int }

	var order []parKey
	words := make(map[parKey][]string)

	for i, line := range strings.Split(tsv, "\n") {
		if i == 0 || line == "" { // header row
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < tsvColumns {
			continue
		}
		level, err := strconv.Atoi(fields[tsvLevel])
		if err != nil || level != tsvLevelWord {
			continue
		}
		word := strings.TrimSpace(fields[tsvText])
		if word == "" {
			continue
		}
		block, err := strconv.Atoi(fields[tsvBlockNum])
		if err != nil {
			continue
		}
		par, err := strconv.Atoi(fields[tsvParNum])
		if err != nil {
			continue
		}

		k := parKey{block: block, par: par}
		if _, seen := words[k]; !seen {
			order = append(order, k)
		}
		words[k] = append(words[k], word)
	}

	paragraphs := make([]string, 0, len(order))
	for _, k := range order {
		paragraphs = append(paragraphs, strings.Join(words[k], " "))
	}
	return paragraphs
}
