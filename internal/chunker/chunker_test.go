package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplit_ChunkCount(t *testing.T) {
	tests := []struct {
		name   string
		length int
		size   int
		want   int
	}{
		{"empty", 0, 800, 0},
		{"shorter than size", 10, 800, 1},
		{"exact size", 800, 800, 1},
		{"one over", 801, 800, 2},
		{"several", 2500, 800, 4},
		{"size one", 5, 1, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := strings.Repeat("a", tt.length)
			got := Split(text, tt.size)
			if len(got) != tt.want {
				t.Errorf("Split(len=%d, size=%d) = %d chunks, want %d", tt.length, tt.size, len(got), tt.want)
			}
		})
	}
}

func TestSplit_Reconstructs(t *testing.T) {
	text := strings.Repeat("the quick brown fox ", 200) // 4000 chars
	chunks := Split(text, DefaultSize)

	if got := strings.Join(chunks, ""); got != text {
		t.Error("concatenated chunks do not reconstruct the input")
	}
	for i, c := range chunks[:len(chunks)-1] {
		if len(c) != DefaultSize {
			t.Errorf("chunk %d has length %d, want %d", i, len(c), DefaultSize)
		}
	}
}

func TestSplit_LastChunkShorter(t *testing.T) {
	text := strings.Repeat("x", 1000)
	chunks := Split(text, 800)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if len(chunks[1]) != 200 {
		t.Errorf("last chunk length = %d, want 200", len(chunks[1]))
	}
}

func TestSplit_MultibyteRunesStayIntact(t *testing.T) {
	text := strings.Repeat("é", 5) // 10 bytes, 5 characters
	chunks := Split(text, 3)

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0] != "ééé" || chunks[1] != "éé" {
		t.Errorf("chunks = %q", chunks)
	}
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d is not valid UTF-8: %q", i, c)
		}
	}
	if strings.Join(chunks, "") != text {
		t.Error("concatenated chunks do not reconstruct the input")
	}
}

func TestSplit_MixedWidthText(t *testing.T) {
	text := "naïve café 日本語テキスト über"
	for _, size := range []int{1, 3, 7} {
		chunks := Split(text, size)
		for i, c := range chunks {
			if !utf8.ValidString(c) {
				t.Errorf("size %d: chunk %d invalid UTF-8: %q", size, i, c)
			}
			if n := utf8.RuneCountInString(c); n > size {
				t.Errorf("size %d: chunk %d has %d characters", size, i, n)
			}
		}
		if strings.Join(chunks, "") != text {
			t.Errorf("size %d: chunks do not reconstruct the input", size)
		}
	}
}

func TestSplit_InvalidSize(t *testing.T) {
	if got := Split("abc", 0); got != nil {
		t.Errorf("Split with size 0 = %v, want nil", got)
	}
}
