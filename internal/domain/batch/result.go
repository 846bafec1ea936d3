package batch

import "github.com/astro1860/building-review-copliot/internal/domain/document"

// ItemStatus is the ingestion outcome of a single document in a build.
type ItemStatus string

// Item status values.
const (
	StatusOK    ItemStatus = "ok"
	StatusError ItemStatus = "error"
)

// Result is the outcome of ingesting one document of a batch.
type Result struct {
	sourceID string
	status   ItemStatus
	pages    []document.Page
	err      error
}

// NewOK creates a successful result carrying the extracted pages.
func NewOK(sourceID string, pages []document.Page) Result {
	return Result{sourceID: sourceID, status: StatusOK, pages: pages}
}

// NewError creates a failed result.
func NewError(sourceID string, err error) Result {
	return Result{sourceID: sourceID, status: StatusError, err: err}
}

// SourceID returns the document identifier.
func (r Result) SourceID() string { return r.sourceID }

// Status returns the ingestion outcome.
func (r Result) Status() ItemStatus { return r.status }

// Pages returns the extracted pages; nil for failed results.
func (r Result) Pages() []document.Page { return r.pages }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }

// OK reports whether ingestion succeeded.
func (r Result) OK() bool { return r.status == StatusOK }
