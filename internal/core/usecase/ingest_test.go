package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/studyforge/internal/core/domain"
	"github.com/kirillkom/studyforge/internal/core/ports"
)

type ingestRepoFake struct {
	created *domain.Document
	err     error
}

func (f *ingestRepoFake) Create(_ context.Context, doc *domain.Document) error {
	if f.err != nil {
		return f.err
	}
	copyDoc := *doc
	f.created = &copyDoc
	return nil
}

func (f *ingestRepoFake) GetByID(context.Context, string) (*domain.Document, error) {
	return nil, errors.New("not implemented")
}

func (f *ingestRepoFake) List(context.Context, domain.DocumentFilter) ([]domain.Document, error) {
	return nil, errors.New("not implemented")
}

func (f *ingestRepoFake) TransitionStatus(context.Context, string, domain.ArtifactKind, domain.GenerationStatus) error {
	return errors.New("not implemented")
}

type ingestStorageFake struct {
	savedKey  string
	savedBody string
	err       error
}

func (f *ingestStorageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.savedKey = key
	f.savedBody = string(raw)
	return nil
}

func (f *ingestStorageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

type extractorFake struct {
	text  string
	err   error
	calls int
}

func (f *extractorFake) Extract(_ context.Context, _, _ string, data []byte) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.text != "" {
		return f.text, nil
	}
	return string(data), nil
}

func TestIngestUploadSuccess(t *testing.T) {
	repo := &ingestRepoFake{}
	storage := &ingestStorageFake{}
	uc := NewIngestDocumentUseCase(repo, storage, &extractorFake{}, 0)

	doc, err := uc.Upload(context.Background(), ports.UploadRequest{
		OwnerID:  "user-1",
		Filename: "report 1.txt",
		MimeType: "text/plain",
		Body:     bytes.NewBufferString("hello\u0000 world"),
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.ID == "" {
		t.Fatalf("expected document id")
	}
	if doc.Title != "report 1" {
		t.Fatalf("expected title from filename, got %q", doc.Title)
	}
	if doc.Content != "hello world" {
		t.Fatalf("expected sanitized content, got %q", doc.Content)
	}
	for _, kind := range domain.ArtifactKinds {
		if doc.StatusOf(kind) != domain.StatusNone {
			t.Fatalf("expected status none for %s, got %s", kind, doc.StatusOf(kind))
		}
	}
	if repo.created == nil || repo.created.OwnerID != "user-1" {
		t.Fatalf("expected repo.Create call with owner")
	}
	if !strings.Contains(storage.savedKey, "_report_1.txt") {
		t.Fatalf("expected sanitized key suffix, got %s", storage.savedKey)
	}
	if storage.savedBody != "hello\u0000 world" {
		t.Fatalf("expected original bytes saved, got %q", storage.savedBody)
	}
}

func TestIngestUploadRejectsOversizedFile(t *testing.T) {
	repo := &ingestRepoFake{}
	storage := &ingestStorageFake{}
	extractor := &extractorFake{}
	uc := NewIngestDocumentUseCase(repo, storage, extractor, 8)

	_, err := uc.Upload(context.Background(), ports.UploadRequest{
		OwnerID:  "user-1",
		Filename: "big.txt",
		Body:     strings.NewReader("123456789"),
	})
	if !domain.IsKind(err, domain.ErrFileTooLarge) {
		t.Fatalf("expected file too large, got %v", err)
	}
	if extractor.calls != 0 || storage.savedKey != "" || repo.created != nil {
		t.Fatalf("nothing should be extracted or stored")
	}
}

func TestIngestUploadExtractionError(t *testing.T) {
	repo := &ingestRepoFake{}
	storage := &ingestStorageFake{}
	extractor := &extractorFake{err: domain.WrapError(domain.ErrInvalidFileType, "extract", errors.New("image/png"))}
	uc := NewIngestDocumentUseCase(repo, storage, extractor, 0)

	_, err := uc.Upload(context.Background(), ports.UploadRequest{
		OwnerID:  "user-1",
		Filename: "photo.png",
		Body:     strings.NewReader("png"),
	})
	if !domain.IsKind(err, domain.ErrInvalidFileType) {
		t.Fatalf("expected invalid file type, got %v", err)
	}
	if storage.savedKey != "" {
		t.Fatalf("rejected files must not be stored")
	}
}

func TestIngestUploadStorageError(t *testing.T) {
	repo := &ingestRepoFake{}
	storage := &ingestStorageFake{err: errors.New("disk full")}
	uc := NewIngestDocumentUseCase(repo, storage, &extractorFake{}, 0)

	_, err := uc.Upload(context.Background(), ports.UploadRequest{
		OwnerID:  "user-1",
		Filename: "report.txt",
		Body:     bytes.NewBufferString("hello"),
	})
	if err == nil || !strings.Contains(err.Error(), "save to object storage") {
		t.Fatalf("expected storage error, got %v", err)
	}
	if repo.created != nil {
		t.Fatalf("document must not be created when storage fails")
	}
}

func TestIngestCreateText(t *testing.T) {
	repo := &ingestRepoFake{}
	uc := NewIngestDocumentUseCase(repo, &ingestStorageFake{}, &extractorFake{}, 0)

	doc, err := uc.CreateText(context.Background(), ports.TextDocumentRequest{
		OwnerID: " user-1 ",
		Title:   "  ",
		Content: "Notes on\u007F entropy",
	})
	if err != nil {
		t.Fatalf("CreateText() error = %v", err)
	}
	if doc.OwnerID != "user-1" || doc.Title != "Untitled" {
		t.Fatalf("unexpected document %+v", doc)
	}
	if doc.Content != "Notes on entropy" {
		t.Fatalf("content = %q", doc.Content)
	}

	if _, err := uc.CreateText(context.Background(), ports.TextDocumentRequest{Title: "t", Content: "c"}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
