// Package document provides a PDF text-extraction operator.
package document

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Operator extracts text from PDF documents. Register it as a static
// operator.
type Operator struct{}

// New creates a document operator.
func New() *Operator { return &Operator{} }

// ExtractText returns the plain text of a PDF file.
func (o *Operator) ExtractText(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if len(content) == 0 {
		return "", fmt.Errorf("empty PDF %s", path)
	}

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", path, err)
	}

	var text strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := extractPageText(page)
		if err != nil {
			continue
		}
		text.WriteString(pageText)
		text.WriteString("\n")
	}
	return strings.TrimSpace(text.String()), nil
}

// extractPageText joins a page's text runs, inserting newlines between
// rows.
func extractPageText(page pdf.Page) (string, error) {
	texts := page.Content().Text
	var b strings.Builder
	var lastY float64
	for i, t := range texts {
		if i > 0 && t.Y != lastY {
			b.WriteString("\n")
		}
		b.WriteString(t.S)
		lastY = t.Y
	}
	return b.String(), nil
}
