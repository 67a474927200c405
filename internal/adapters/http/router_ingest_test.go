package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/studyforge/internal/config"
	"github.com/kirillkom/studyforge/internal/core/domain"
	"github.com/kirillkom/studyforge/internal/core/ports"
)

type ingestFake struct {
	err      error
	last     ports.UploadRequest
	lastText ports.TextDocumentRequest
}

func (f *ingestFake) Upload(_ context.Context, req ports.UploadRequest) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", io.EOF)
	}
	f.last = req

	now := time.Now().UTC()
	return &domain.Document{
		ID:               "doc-1",
		OwnerID:          req.OwnerID,
		Title:            req.Title,
		Filename:         req.Filename,
		MimeType:         req.MimeType,
		StoragePath:      "doc-1_file.txt",
		Content:          string(raw),
		SummaryStatus:    domain.StatusNone,
		MindMapStatus:    domain.StatusNone,
		FlashCardsStatus: domain.StatusNone,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

func (f *ingestFake) CreateText(_ context.Context, req ports.TextDocumentRequest) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastText = req
	return &domain.Document{ID: "doc-2", OwnerID: req.OwnerID, Title: req.Title, Content: req.Content, StudyPackID: req.StudyPackID}, nil
}

func newTestRouter(t *testing.T, cfg config.Config, services Services) http.Handler {
	t.Helper()
	if services.Ingestor == nil {
		services.Ingestor = &ingestFake{}
	}
	if services.Reader == nil {
		services.Reader = readerFake{}
	}
	if services.StudyPacks == nil {
		services.StudyPacks = &studyPacksFake{}
	}
	if services.Trigger == nil {
		services.Trigger = &triggerFake{}
	}
	if services.Accounts == nil {
		services.Accounts = accountsFake{}
	}
	if services.Payments == nil {
		services.Payments = paymentsFake{}
	}
	if services.Identity == nil {
		services.Identity = &identityFake{}
	}
	router, err := NewRouter(cfg, services, nil)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return router.Handler()
}

func multipartUpload(t *testing.T, fields map[string]string, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("WriteField() error = %v", err)
		}
	}
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestHealthzEndpoint(t *testing.T) {
	handler := newTestRouter(t, config.Config{}, Services{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestUploadDocumentSuccess(t *testing.T) {
	ingest := &ingestFake{}
	handler := newTestRouter(t, config.Config{MaxUploadBytes: 1 << 20}, Services{Ingestor: ingest})

	body, contentType := multipartUpload(t, map[string]string{"user_id": "user-1", "title": "Cells", "study_pack_id": " pack_1 "}, "cells.txt", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	var docResp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&docResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if docResp["id"] != "doc-1" || docResp["summary_status"] != "none" {
		t.Fatalf("unexpected response: %+v", docResp)
	}
	if _, leaked := docResp["storage_path"]; leaked {
		t.Fatalf("storage path must not be exposed")
	}
	if ingest.last.OwnerID != "user-1" || ingest.last.Title != "Cells" || ingest.last.Filename != "cells.txt" || ingest.last.StudyPackID != "pack_1" {
		t.Fatalf("unexpected upload request %+v", ingest.last)
	}
}

func TestUploadDocumentMissingMultipartField(t *testing.T) {
	handler := newTestRouter(t, config.Config{MaxUploadBytes: 1 << 20}, Services{})

	body, contentType := multipartUpload(t, map[string]string{"user_id": "user-1"}, "", nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUploadDocumentRejectsNonMultipart(t *testing.T) {
	handler := newTestRouter(t, config.Config{MaxUploadBytes: 1 << 20}, Services{})

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewBufferString("plain-text"))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUploadDocumentTooLarge(t *testing.T) {
	handler := newTestRouter(t, config.Config{MaxUploadBytes: 16}, Services{})

	payload := bytes.Repeat([]byte("a"), multipartOverhead+64)
	body, contentType := multipartUpload(t, map[string]string{"user_id": "user-1"}, "big.txt", payload)
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", res.Code)
	}
}

func TestUploadDocumentMapsUnsupportedType(t *testing.T) {
	ingest := &ingestFake{err: domain.WrapError(domain.ErrInvalidFileType, "upload", io.EOF)}
	handler := newTestRouter(t, config.Config{MaxUploadBytes: 1 << 20}, Services{Ingestor: ingest})

	body, contentType := multipartUpload(t, map[string]string{"user_id": "user-1"}, "slides.pptx", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", res.Code)
	}
}

func TestCreateTextDocument(t *testing.T) {
	ingest := &ingestFake{}
	handler := newTestRouter(t, config.Config{}, Services{Ingestor: ingest})

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/text",
		strings.NewReader(`{"user_id":"user-1","title":"Notes","content":"Mitochondria make ATP.","study_pack_id":"pack_1"}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	want := ports.TextDocumentRequest{OwnerID: "user-1", Title: "Notes", Content: "Mitochondria make ATP.", StudyPackID: "pack_1"}
	if ingest.lastText != want {
		t.Fatalf("unexpected text request %+v", ingest.lastText)
	}
}

func TestCreateTextDocumentRejectsUnknownFields(t *testing.T) {
	handler := newTestRouter(t, config.Config{}, Services{})

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/text",
		strings.NewReader(`{"user_id":"user-1","title":"Notes","content":"x","owner":"other"}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}
