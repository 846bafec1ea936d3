// Package ingest extracts page text from uploaded documents.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/astro1860/building-review-copliot/internal/domain"
	"github.com/astro1860/building-review-copliot/internal/domain/batch"
	"github.com/astro1860/building-review-copliot/internal/domain/document"
)

// DefaultConcurrency bounds parallel document decoding.
const DefaultConcurrency = 4

var (
	pdfMagic = []byte("%PDF-")
	utf8BOM  = []byte("\xef\xbb\xbf")
)

// errNoText is returned for documents without any extractable text (e.g. scans).
var errNoText = errors.New("no extractable text")

// Ingestor decodes PDF and plain-text documents into pages.
type Ingestor struct {
	logger *zap.Logger
}

// New creates an Ingestor.
func New(logger *zap.Logger) *Ingestor {
	return &Ingestor{logger: logger}
}

// Ingest returns the non-empty pages of data in document order. Decoding
// failures are reported as *domain.IngestError.
func (i *Ingestor) Ingest(ctx context.Context, data []byte, sourceID string) ([]document.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ingest %q: %w", sourceID, err)
	}

	var (
		pages []document.Page
		err   error
	)
	switch {
	case isPDF(data):
		pages, err = i.extractPDF(data, sourceID)
	case isText(data):
		pages = []document.Page{{Text: string(data), Index: 0}}
	default:
		err = errors.New("unsupported format")
	}
	if err != nil {
		return nil, domain.NewIngestError(sourceID, err)
	}
	if len(pages) == 0 {
		return nil, domain.NewIngestError(sourceID, errNoText)
	}

	i.logger.Debug("Document ingested",
		zap.String("source", sourceID),
		zap.Int("bytes", len(data)),
		zap.Int("pages", len(pages)),
	)
	return pages, nil
}

// PageIngestor is the contract IngestAll fans out over.
type PageIngestor interface {
	Ingest(ctx context.Context, data []byte, sourceID string) ([]document.Page, error)
}

// IngestAll decodes sources in parallel, at most concurrency at a time.
// A failing document never stops the others; results keep input order.
func IngestAll(ctx context.Context, ing PageIngestor, sources []document.Source, concurrency int) []batch.Result {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := make([]batch.Result, len(sources))
	var g errgroup.Group
	g.SetLimit(concurrency)

	for idx, src := range sources {
		g.Go(func() error {
			pages, err := ing.Ingest(ctx, src.Data(), src.ID())
			if err != nil {
				results[idx] = batch.NewError(src.ID(), err)
				return nil
			}
			results[idx] = batch.NewOK(src.ID(), pages)
			return nil
		})
	}
	_ = g.Wait() // workers record failures per item and never return an error

	return results
}

// isPDF reports whether data starts with the PDF header, ignoring a leading
// byte order mark and whitespace. A text file that merely mentions the header
// further down stays text.
func isPDF(data []byte) bool {
	head := bytes.TrimLeft(bytes.TrimPrefix(data, utf8BOM), " \t\r\n\f\x00")
	return bytes.HasPrefix(head, pdfMagic)
}

func isText(data []byte) bool {
	return utf8.Valid(data) && bytes.IndexByte(data, 0) < 0 && len(bytes.TrimSpace(data)) > 0
}
