package registry

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/studyforge/internal/core/domain"
)

func TestExtractPlainTextByExtension(t *testing.T) {
	text, err := New().Extract(context.Background(), "Notes.MD", "", []byte("\xef\xbb\xbf# Cells\n\nThe cell is the unit of life.\n"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "# Cells\n\nThe cell is the unit of life." {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExtractFallsBackToMimeType(t *testing.T) {
	text, err := New().Extract(context.Background(), "upload", "text/plain; charset=utf-8", []byte("mitosis"))
	if err != nil || text != "mitosis" {
		t.Fatalf("Extract() = %q, %v", text, err)
	}
}

func TestExtractRejectsUnknownType(t *testing.T) {
	_, err := New().Extract(context.Background(), "photo.png", "image/png", []byte{0x89, 'P', 'N', 'G'})
	if !domain.IsKind(err, domain.ErrInvalidFileType) {
		t.Fatalf("expected ErrInvalidFileType, got %v", err)
	}
}

func TestExtractReportsBrokenFiles(t *testing.T) {
	tests := map[string][]byte{
		"binary.txt":  {0xff, 0xfe, 0x00},
		"broken.pdf":  []byte("not a pdf"),
		"broken.docx": []byte("not a zip"),
		"empty.txt":   []byte("   \n"),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := New().Extract(context.Background(), name, "", data)
			if !domain.IsKind(err, domain.ErrExtraction) {
				t.Fatalf("expected ErrExtraction, got %v", err)
			}
		})
	}
}

func TestExtractDocxParagraphs(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:r><w:t>Photosynthesis</w:t></w:r><w:r><w:t xml:space="preserve"> basics</w:t></w:r></w:p>
<w:p></w:p>
<w:p><w:r><w:t>Light</w:t><w:tab/><w:t>energy</w:t></w:r></w:p>
</w:body></w:document>`))
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}

	text, err := New().Extract(context.Background(), "lesson.docx", "", buf.Bytes())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "Photosynthesis basics\nLight\tenergy" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExtractXlsxSheets(t *testing.T) {
	book := excelize.NewFile()
	_ = book.SetCellValue("Sheet1", "A1", "Term")
	_ = book.SetCellValue("Sheet1", "B1", "Definition")
	_ = book.SetCellValue("Sheet1", "A2", "ATP")
	_ = book.SetCellValue("Sheet1", "B2", "Energy currency")
	data, err := book.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}

	text, err := New().Extract(context.Background(), "glossary.xlsx", "", data.Bytes())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !strings.HasPrefix(text, "## Sheet1\n") || !strings.Contains(text, "ATP\tEnergy currency") {
		t.Fatalf("unexpected text %q", text)
	}
}
