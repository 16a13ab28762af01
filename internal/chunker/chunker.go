// Package chunker splits page text into fixed-width windows for embedding.
package chunker

// DefaultSize is the chunk width in characters used for all ingestion.
const DefaultSize = 800

// Split cuts text into ordered, non-overlapping chunks of at most size
// characters. Windows are measured in runes, never splitting a multibyte
// character at a boundary. The last chunk may be shorter. Empty text yields
// no chunks. Concatenating the result in order reconstructs the input
// exactly.
func Split(text string, size int) []string {
	if size <= 0 || len(text) == 0 {
		return nil
	}
	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
