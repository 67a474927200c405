package plaintext

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"unicode/utf8"
)

var errBinary = errors.New("content is not valid utf-8 text")

// Extractor accepts UTF-8 text formats (txt, markdown, csv, logs).
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(_ context.Context, _, _ string, data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", errBinary
	}
	return strings.TrimSpace(string(data)), nil
}
