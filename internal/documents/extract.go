package documents

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Upload validation errors.
var (
	ErrUnsupportedType = errors.New("documents: unsupported file type")
	ErrEmptyFile       = errors.New("documents: empty file")
	ErrInvalidUTF8     = errors.New("documents: text file is not valid UTF-8")
	ErrPDFParse        = errors.New("documents: failed to parse PDF")
)

// IsValidationError reports whether err is one of the upload validation errors.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrUnsupportedType) ||
		errors.Is(err, ErrEmptyFile) ||
		errors.Is(err, ErrInvalidUTF8) ||
		errors.Is(err, ErrPDFParse)
}

// Extractor turns uploaded bytes into document text.
type Extractor struct {
	pdf *PDFExtractor
}

// NewExtractor creates an extractor. A nil pdf extractor uses the default
// in-process one.
func NewExtractor(pdf *PDFExtractor) *Extractor {
	if pdf == nil {
		pdf = NewPDFExtractor()
	}
	return &Extractor{pdf: pdf}
}

// Extract returns the text of filename. The file type is chosen by extension.
func (e *Extractor) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".txt" && ext != ".pdf" {
		return "", ErrUnsupportedType
	}
	if len(data) == 0 {
		return "", ErrEmptyFile
	}

	if ext == ".txt" {
		if !utf8.Valid(data) {
			return "", ErrInvalidUTF8
		}
		return strings.TrimPrefix(string(data), "\ufeff"), nil
	}
	return e.pdf.Extract(ctx, data)
}
