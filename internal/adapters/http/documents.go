package httpadapter

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/studyforge/internal/core/domain"
	"github.com/kirillkom/studyforge/internal/core/ports"
)

// multipartOverhead leaves room for form fields and boundaries on top of the file limit.
const multipartOverhead = 1 << 20

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	maxBytes := rt.cfg.MaxUploadBytes
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if isBodyTooLarge(err) {
			writeError(w, r, http.StatusRequestEntityTooLarge, domain.WrapError(domain.ErrFileTooLarge, "upload document", err))
			return
		}
		writeError(w, r, http.StatusBadRequest, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("multipart form is required")))
		return
	}

	userID := strings.TrimSpace(r.FormValue("user_id"))
	if err := rt.authorizeUser(r, userID); err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("multipart field 'file' is required")))
		return
	}
	defer file.Close()

	doc, err := rt.services.Ingestor.Upload(r.Context(), ports.UploadRequest{
		OwnerID:     userID,
		Title:       r.FormValue("title"),
		Filename:    header.Filename,
		MimeType:    header.Header.Get("Content-Type"),
		StudyPackID: strings.TrimSpace(r.FormValue("study_pack_id")),
		Body:        file,
	})
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func isBodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large")
}

type createTextRequest struct {
	UserID      string `json:"user_id"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	StudyPackID string `json:"study_pack_id"`
}

func (rt *Router) createTextDocument(w http.ResponseWriter, r *http.Request) {
	var req createTextRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, domain.WrapError(domain.ErrInvalidInput, "create text document", err))
		return
	}
	if err := rt.authorizeUser(r, req.UserID); err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}

	doc, err := rt.services.Ingestor.CreateText(r.Context(), ports.TextDocumentRequest{
		OwnerID:     req.UserID,
		Title:       req.Title,
		Content:     req.Content,
		StudyPackID: strings.TrimSpace(req.StudyPackID),
	})
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	userID := query.Get("user_id")
	if err := rt.authorizeUser(r, userID); err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}
	filter := domain.DocumentFilter{
		StudyPackID:   query.Get("study_pack_id"),
		TitleContains: query.Get("title"),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, r, http.StatusBadRequest, domain.WrapError(domain.ErrInvalidInput, "list documents", fmt.Errorf("limit %q must be a positive integer", raw)))
			return
		}
		filter.Limit = limit
	}

	docs, err := rt.services.Reader.ListDocuments(r.Context(), userID, filter)
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if err := rt.authorizeUser(r, userID); err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}

	doc, err := rt.services.Reader.GetDocument(r.Context(), userID, r.PathValue("document_id"))
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) estimateCost(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	userID := query.Get("user_id")
	if err := rt.authorizeUser(r, userID); err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}
	kind, err := domain.ParseArtifactKind(query.Get("kind"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	cost, err := rt.services.Trigger.Quote(r.Context(), userID, r.PathValue("document_id"), kind)
	if err != nil {
		writeError(w, r, mapCommandErrorToHTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kind":    kind,
		"credits": cost,
	})
}

type generateRequest struct {
	UserID string                  `json:"user_id"`
	Kind   string                  `json:"kind"`
	Config domain.GenerationConfig `json:"config"`
}

func (rt *Router) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		rt.recordTrigger("", "invalid")
		writeError(w, r, http.StatusBadRequest, domain.WrapError(domain.ErrInvalidInput, "generate", err))
		return
	}
	if err := rt.authorizeUser(r, req.UserID); err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}
	kind, err := domain.ParseArtifactKind(req.Kind)
	if err != nil {
		rt.recordTrigger("", "invalid")
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	result, err := rt.services.Trigger.Trigger(r.Context(), domain.GenerationRequest{
		DocumentID: r.PathValue("document_id"),
		UserID:     req.UserID,
		Kind:       kind,
		Config:     req.Config,
	})
	rt.recordTrigger(kind, triggerOutcome(err))
	if err != nil {
		writeError(w, r, mapCommandErrorToHTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

func (rt *Router) getArtifact(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if err := rt.authorizeUser(r, userID); err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}
	kind, err := domain.ParseArtifactKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	artifact, err := rt.services.Reader.GetArtifact(r.Context(), userID, r.PathValue("document_id"), kind)
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}

func (rt *Router) recordTrigger(kind domain.ArtifactKind, outcome string) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordTrigger(serviceName, string(kind), outcome)
}
