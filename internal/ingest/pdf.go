package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/astro1860/building-review-copliot/internal/domain/document"
)

// extractPDF reads every page's plain text. The decoder works on an in-memory
// reader scoped to this call; panics raised by the decoder on malformed input
// are turned into errors.
func (i *Ingestor) extractPDF(data []byte, sourceID string) (pages []document.Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("pdf decoder panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	for n := 1; n <= reader.NumPage(); n++ {
		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		// nil lets the decoder load this page's own font encodings.
		text, perr := page.GetPlainText(nil)
		if perr != nil {
			i.logger.Warn("Skipping unreadable page",
				zap.String("source", sourceID),
				zap.Int("page", n),
				zap.Error(perr),
			)
			continue
		}
		text = strings.ToValidUTF8(text, "\uFFFD")
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, document.Page{Text: text, Index: n - 1})
	}
	return pages, nil
}
