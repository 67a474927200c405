package usecase

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/kirillkom/studyforge/internal/core/domain"
)

func TestReaderScopesToOwner(t *testing.T) {
	f := newFixture(t, credits(t, "1"))
	f.seedDocument(t, "doc-1", "user-1", "content")
	reader := NewDocumentReaderUseCase(f.store, f.store)

	doc, err := reader.GetDocument(context.Background(), "user-1", "doc-1")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if doc.Content != "content" {
		t.Fatalf("content = %q", doc.Content)
	}

	if _, err := reader.GetDocument(context.Background(), "user-2", "doc-1"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected not found for another owner, got %v", err)
	}
	if _, err := reader.GetArtifact(context.Background(), "user-2", "doc-1", domain.KindSummary); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected not found for another owner's artifact, got %v", err)
	}
}

func TestReaderArtifactLifecycle(t *testing.T) {
	f := newFixture(t, credits(t, "1"))
	f.seedDocument(t, "doc-1", "user-1", "content")
	reader := NewDocumentReaderUseCase(f.store, f.store)

	if _, err := reader.GetArtifact(context.Background(), "user-1", "doc-1", domain.KindMindMap); !domain.IsKind(err, domain.ErrArtifactNotFound) {
		t.Fatalf("expected artifact not found, got %v", err)
	}
	if _, err := reader.GetArtifact(context.Background(), "user-1", "doc-1", "quiz"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	err := f.store.Replace(context.Background(), &domain.Artifact{
		ID:         domain.NewArtifactID(),
		DocumentID: "doc-1",
		UserID:     "user-1",
		Kind:       domain.KindMindMap,
		Payload:    json.RawMessage(`{"data":{"name":"Root"}}`),
	})
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	artifact, err := reader.GetArtifact(context.Background(), "user-1", "doc-1", domain.KindMindMap)
	if err != nil {
		t.Fatalf("GetArtifact() error = %v", err)
	}
	if string(artifact.Payload) != `{"data":{"name":"Root"}}` {
		t.Fatalf("payload = %s", artifact.Payload)
	}
}

func TestReaderListsLibrary(t *testing.T) {
	f := newFixture(t, credits(t, "1"))
	f.seedDocument(t, "doc-a", "user-1", "alpha")
	f.seedDocument(t, "doc-b", "user-1", "beta")
	f.seedDocument(t, "doc-c", "user-2", "gamma")
	reader := NewDocumentReaderUseCase(f.store, f.store)

	docs, err := reader.ListDocuments(context.Background(), " user-1 ", domain.DocumentFilter{OwnerID: "user-2"})
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	for _, doc := range docs {
		if doc.OwnerID != "user-1" || doc.Content != "" {
			t.Fatalf("unexpected library entry %+v", doc)
		}
	}

	limited, err := reader.ListDocuments(context.Background(), "user-1", domain.DocumentFilter{Limit: 1})
	if err != nil || len(limited) != 1 {
		t.Fatalf("limited list = %+v, %v", limited, err)
	}
	none, err := reader.ListDocuments(context.Background(), "user-1", domain.DocumentFilter{TitleContains: "syllabus"})
	if err != nil || len(none) != 0 {
		t.Fatalf("title filter = %+v, %v", none, err)
	}
	if _, err := reader.ListDocuments(context.Background(), "", domain.DocumentFilter{}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
