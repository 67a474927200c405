package localfs

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/studyforge/internal/core/domain"
)

func TestSaveThenOpen(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, "doc-1_notes.pdf", strings.NewReader("%PDF-1.4")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	rc, err := store.Open(ctx, "doc-1_notes.pdf")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	raw, _ := io.ReadAll(rc)
	if string(raw) != "%PDF-1.4" {
		t.Fatalf("unexpected content %q", raw)
	}
}

func TestOpenMissingFile(t *testing.T) {
	store, _ := New(t.TempDir())
	if _, err := store.Open(context.Background(), "missing.txt"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestRejectsKeysOutsideBase(t *testing.T) {
	store, _ := New(t.TempDir())
	for _, key := range []string{"../escape.txt", "nested/file.txt", ".hidden", ""} {
		if err := store.Save(context.Background(), key, strings.NewReader("x")); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("key %q: expected ErrInvalidInput, got %v", key, err)
		}
	}
}
