package chunking

import (
	"strings"
	"unicode"
)

// separators are tried in order when looking for a chunk boundary.
var separators = []string{"\n\n", "\n", ". ", " "}

// Splitter cuts text into rune-sized windows that overlap by Overlap runes. A window
// ends on the last paragraph, line, sentence or word break in its second half when
// there is one, so chunks rarely split a word.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	out := make([]string, 0, len(runes)/max(s.ChunkSize-s.Overlap, 1)+1)
	for start := 0; start < len(runes); {
		end := min(start+s.ChunkSize, len(runes))
		if end < len(runes) {
			end = s.boundary(runes, start, end)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}

		next := end - s.Overlap
		if next <= start {
			next = end
		}
		start = wordStart(runes, next, end)
	}
	return out
}

// boundary returns the index just past the best separator in runes[start:end], or end.
func (s *Splitter) boundary(runes []rune, start, end int) int {
	window := string(runes[start:end])
	minCut := len(window) / 2
	for _, sep := range separators {
		idx := strings.LastIndex(window, sep)
		if idx >= minCut {
			return start + len([]rune(window[:idx+len(sep)]))
		}
	}
	return end
}

// wordStart moves from forward to the start of the next word, unless from already
// starts one or no break exists before limit.
func wordStart(runes []rune, from, limit int) int {
	if from == 0 || unicode.IsSpace(runes[from-1]) {
		return from
	}
	for i := from; i < limit; i++ {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return from
}
