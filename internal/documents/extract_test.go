package documents

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF renders a minimal PDF with one Helvetica text line per page.
func buildPDF(pages ...string) []byte {
	var objects []string
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	for i, text := range pages {
		escaped := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`).Replace(text)
		content := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", escaped)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
				"/Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return []byte(b.String())
}

func TestExtract_Text(t *testing.T) {
	e := NewExtractor(nil)

	text, err := e.Extract(context.Background(), "notes.TXT", []byte("\ufeffHello, wörld."))
	require.NoError(t, err)
	assert.Equal(t, "Hello, wörld.", text)
}

func TestExtract_Errors(t *testing.T) {
	e := NewExtractor(nil)
	valid := buildPDF("Truncated page.")

	tests := []struct {
		name     string
		filename string
		data     []byte
		want     error
	}{
		{"unsupported extension", "image.png", []byte("x"), ErrUnsupportedType},
		{"no extension", "README", []byte("x"), ErrUnsupportedType},
		{"empty text", "a.txt", nil, ErrEmptyFile},
		{"empty pdf", "a.pdf", []byte{}, ErrEmptyFile},
		{"invalid utf8", "a.txt", []byte{0xff, 0xfe, 0xfd}, ErrInvalidUTF8},
		{"not a pdf", "a.pdf", []byte("plain text"), ErrPDFParse},
		{"header only", "a.pdf", []byte("%PDF-1.4 broken"), ErrPDFParse},
		{"missing trailer", "a.pdf", []byte("%PDF-1.4\n" + strings.Repeat("garbage ", 40)), ErrPDFParse},
		{"truncated", "a.pdf", valid[:len(valid)/2], ErrPDFParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Extract(context.Background(), tt.filename, tt.data)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestExtract_PDF(t *testing.T) {
	e := NewExtractor(NewPDFExtractor())

	text, err := e.Extract(context.Background(), "report.pdf", buildPDF("Page one text.", "Page two (final) text."))
	require.NoError(t, err)
	assert.Equal(t, "Page one text.\nPage two (final) text.", text)
}

func TestExtract_PDFCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPDFExtractor().Extract(ctx, buildPDF("Never read."))
	assert.ErrorIs(t, err, context.Canceled)
}
