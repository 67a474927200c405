package tiktoken

import "testing"

func TestCountTokensIsDeterministic(t *testing.T) {
	tok, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	n, err := tok.CountTokens("hello world")
	if err != nil || n != 2 {
		t.Fatalf("CountTokens() = %d, %v", n, err)
	}
	again, _ := tok.CountTokens("hello world")
	if again != n {
		t.Fatalf("token count changed between calls: %d vs %d", n, again)
	}
	if empty, _ := tok.CountTokens(""); empty != 0 {
		t.Fatalf("expected 0 tokens for empty text, got %d", empty)
	}
}

func TestUnknownModel(t *testing.T) {
	if _, err := NewForModel("definitely-not-a-model"); err == nil {
		t.Fatalf("expected error for unknown model")
	}
}
