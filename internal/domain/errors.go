package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidArgument signals a caller-supplied value outside its allowed range.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnreadableDocument signals a corrupt or unsupported document.
	ErrUnreadableDocument = errors.New("document unreadable")
	// ErrNoDocuments signals a build request without documents.
	ErrNoDocuments = errors.New("no documents")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrGenerationProviderError signals a generation provider failure.
	ErrGenerationProviderError = errors.New("generation provider error")
	// ErrExternalTimeout signals an external call that exceeded its deadline.
	ErrExternalTimeout = errors.New("external service timeout")
	// ErrCircuitOpen signals that a provider is short-circuited after repeated failures.
	ErrCircuitOpen = errors.New("circuit open")
	// ErrEmptyQuestion signals a blank question.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrStreamAborted signals that the consumer stopped reading a generation stream.
	ErrStreamAborted = errors.New("stream aborted")
	// ErrDuplicateReference signals a reference URL already in the list.
	ErrDuplicateReference = errors.New("reference already exists")
	// ErrReferenceNotFound signals a missing reference.
	ErrReferenceNotFound = errors.New("reference not found")
)

// IngestError reports a single document that could not be decoded.
type IngestError struct {
	SourceID string
	Err      error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %q: %v", e.SourceID, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// NewIngestError wraps err as an IngestError for sourceID.
// The result always matches ErrUnreadableDocument.
func NewIngestError(sourceID string, err error) *IngestError {
	if !errors.Is(err, ErrUnreadableDocument) {
		err = fmt.Errorf("%w: %w", ErrUnreadableDocument, err)
	}
	return &IngestError{SourceID: sourceID, Err: err}
}

// BuildError aggregates per-document ingestion failures of a build that
// still completed for Succeeded sources.
type BuildError struct {
	Failed    []*IngestError
	Succeeded []string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build: %d of %d documents failed: %s",
		len(e.Failed), len(e.Failed)+len(e.Succeeded), strings.Join(e.FailedSources(), ", "))
}

// Unwrap exposes every IngestError to errors.Is and errors.As.
func (e *BuildError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f
	}
	return errs
}

// FailedSources returns the ids of documents that failed, in input order.
func (e *BuildError) FailedSources() []string {
	ids := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		ids[i] = f.SourceID
	}
	return ids
}
