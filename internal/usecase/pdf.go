package usecase

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"research-orchestrator/internal/domain"
)

const mimePDF = "application/pdf"

// pdfText returns the plain text of every page, pages separated by a blank
// line. Pages the reader cannot decode are skipped.
func pdfText(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("%w: unreadable pdf: %v", domain.ErrUnsupportedFileType, err)
	}
	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	return b.String(), nil
}
