package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const documentPart = "word/document.xml"

// Extractor reads word/document.xml and keeps one line per paragraph.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(_ context.Context, _, _ string, data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx container: %w", err)
	}
	part, err := zr.Open(documentPart)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", documentPart, err)
	}
	defer part.Close()

	return paragraphs(part)
}

func paragraphs(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		out  strings.Builder
		line strings.Builder
	)
	flush := func() {
		text := strings.TrimSpace(line.String())
		line.Reset()
		if text == "" {
			return
		}
		out.WriteString(text)
		out.WriteString("\n")
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("decode %s: %w", documentPart, err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				var text string
				if err := dec.DecodeElement(&text, &el); err != nil {
					return "", fmt.Errorf("decode text run: %w", err)
				}
				line.WriteString(text)
			case "tab":
				line.WriteString("\t")
			case "br":
				line.WriteString(" ")
			}
		case xml.EndElement:
			if el.Name.Local == "p" {
				flush()
			}
		}
	}
	flush()
	return strings.TrimSpace(out.String()), nil
}
