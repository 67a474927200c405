package registry

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/kirillkom/studyforge/internal/core/domain"
	"github.com/kirillkom/studyforge/internal/core/ports"
	"github.com/kirillkom/studyforge/internal/infrastructure/extractor/docx"
	"github.com/kirillkom/studyforge/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/studyforge/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/studyforge/internal/infrastructure/extractor/xlsx"
)

// Registry picks an extractor by file extension, falling back to the declared mime type.
type Registry struct {
	byExt  map[string]ports.TextExtractor
	byMime map[string]ports.TextExtractor
}

func New() *Registry {
	r := &Registry{
		byExt:  map[string]ports.TextExtractor{},
		byMime: map[string]ports.TextExtractor{},
	}
	text := plaintext.NewExtractor()
	r.Register(text, []string{".txt", ".md", ".markdown", ".csv", ".log"},
		[]string{"text/plain", "text/markdown", "text/csv"})
	r.Register(pdf.NewExtractor(), []string{".pdf"}, []string{"application/pdf"})
	r.Register(xlsx.NewExtractor(), []string{".xlsx"},
		[]string{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"})
	r.Register(docx.NewExtractor(), []string{".docx"},
		[]string{"application/vnd.openxmlformats-officedocument.wordprocessingml.document"})
	return r
}

func (r *Registry) Register(extractor ports.TextExtractor, extensions, mimeTypes []string) {
	for _, ext := range extensions {
		r.byExt[strings.ToLower(ext)] = extractor
	}
	for _, mt := range mimeTypes {
		r.byMime[strings.ToLower(mt)] = extractor
	}
}

func (r *Registry) Extract(ctx context.Context, filename, mimeType string, data []byte) (string, error) {
	extractor, ok := r.lookup(filename, mimeType)
	if !ok {
		return "", domain.WrapError(domain.ErrInvalidFileType, "extract text",
			fmt.Errorf("unsupported file %q (%s)", filepath.Base(filename), mimeType))
	}

	text, err := extractor.Extract(ctx, filename, mimeType, data)
	if err != nil {
		return "", domain.WrapError(domain.ErrExtraction, "extract text", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.WrapError(domain.ErrExtraction, "extract text", errors.New("no text found in file"))
	}
	return text, nil
}

func (r *Registry) lookup(filename, mimeType string) (ports.TextExtractor, bool) {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		if extractor, ok := r.byExt[ext]; ok {
			return extractor, true
		}
	}
	if media, _, err := mime.ParseMediaType(mimeType); err == nil {
		if extractor, ok := r.byMime[strings.ToLower(media)]; ok {
			return extractor, true
		}
	}
	return nil, false
}
