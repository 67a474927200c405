package domain

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to GenerationStatus
		want     bool
	}{
		{StatusNone, StatusInProgress, true},
		{StatusNone, StatusCompleted, false},
		{StatusNone, StatusFailed, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusFailed, true},
		{StatusInProgress, StatusNone, false},
		{StatusCompleted, StatusInProgress, true},
		{StatusCompleted, StatusFailed, true},
		{StatusCompleted, StatusNone, false},
		{StatusFailed, StatusInProgress, true},
		{StatusFailed, StatusCompleted, false},
		{StatusCompleted, StatusCompleted, true},
		{"", StatusInProgress, true},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Fatalf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTransitionSources(t *testing.T) {
	sources := TransitionSources(StatusInProgress)
	want := map[GenerationStatus]bool{StatusNone: true, StatusInProgress: true, StatusCompleted: true, StatusFailed: true}
	if len(sources) != len(want) {
		t.Fatalf("sources = %v", sources)
	}

	sources = TransitionSources(StatusCompleted)
	if len(sources) != 2 || sources[0] != StatusInProgress || sources[1] != StatusCompleted {
		t.Fatalf("sources for completed = %v", sources)
	}
}

func TestValidateTransitionErrorKinds(t *testing.T) {
	if err := ValidateTransition(StatusNone, "archived"); !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for unknown status, got %v", err)
	}
	if err := ValidateTransition(StatusFailed, StatusCompleted); !IsKind(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestParseArtifactKind(t *testing.T) {
	tests := map[string]ArtifactKind{
		"summary":     KindSummary,
		" Mind-Map ":  KindMindMap,
		"mindmap":     KindMindMap,
		"flash_cards": KindFlashCards,
		"flashcards":  KindFlashCards,
	}
	for raw, want := range tests {
		got, err := ParseArtifactKind(raw)
		if err != nil || got != want {
			t.Fatalf("ParseArtifactKind(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParseArtifactKind("quiz"); !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
