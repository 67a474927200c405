package chunking

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitPrefersWordBoundaries(t *testing.T) {
	text := strings.Repeat("photosynthesis converts light ", 20)
	chunks := NewSplitter(50, 10).Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if utf8.RuneCountInString(chunk) > 50 {
			t.Fatalf("chunk %d exceeds size: %q", i, chunk)
		}
		for _, word := range strings.Fields(chunk) {
			switch word {
			case "photosynthesis", "converts", "light":
			default:
				t.Fatalf("chunk %d splits a word: %q", i, chunk)
			}
		}
	}
}

func TestSplitOverlapsConsecutiveChunks(t *testing.T) {
	text := strings.Repeat("ab", 60)
	chunks := NewSplitter(40, 10).Split(text)
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d: %q", len(chunks), chunks)
	}
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		if !strings.HasPrefix(chunks[i], prev[len(prev)-10:]) {
			t.Fatalf("chunk %d does not overlap the previous one", i)
		}
	}
}

func TestSplitCountsRunes(t *testing.T) {
	text := strings.Repeat("ж", 25)
	chunks := NewSplitter(10, 0).Split(text)
	if len(chunks) != 3 || chunks[2] != strings.Repeat("ж", 5) {
		t.Fatalf("unexpected chunks %q", chunks)
	}
}

func TestNewSplitterNormalisesArguments(t *testing.T) {
	s := NewSplitter(0, 5000)
	if s.ChunkSize != 1000 || s.Overlap != 250 {
		t.Fatalf("unexpected splitter %+v", s)
	}
	if got := s.Split(""); got != nil {
		t.Fatalf("expected nil for empty text, got %v", got)
	}
}
