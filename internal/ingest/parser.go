package ingest

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// previewLimit caps the extracted description preview length in runes.
const previewLimit = 600

// Metadata is what the worker extracts from an uploaded book file.
type Metadata struct {
	Pages   int
	Preview string
}

// ParsePDF reads page count and a short text preview from a PDF file.
// Pages that fail text extraction are skipped rather than failing the
// whole file.
func ParsePDF(path string) (Metadata, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	totalPages := reader.NumPage()
	var b strings.Builder
	for i := 1; i <= totalPages && b.Len() < previewLimit*4; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = normalizeText(text); text != "" {
			b.WriteString(text)
			b.WriteByte(' ')
		}
	}
	return Metadata{Pages: totalPages, Preview: clampPreview(b.String())}, nil
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}

func clampPreview(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= previewLimit {
		return text
	}
	return strings.TrimSpace(string(runes[:previewLimit])) + "…"
}
