package copilot

import "github.com/astro1860/building-review-copliot/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidArgument         = domain.ErrInvalidArgument
	ErrUnreadableDocument      = domain.ErrUnreadableDocument
	ErrNoDocuments             = domain.ErrNoDocuments
	ErrEmptyQuestion           = domain.ErrEmptyQuestion
	ErrStreamAborted           = domain.ErrStreamAborted
	ErrEmbeddingProviderError  = domain.ErrEmbeddingProviderError
	ErrGenerationProviderError = domain.ErrGenerationProviderError
	ErrExternalTimeout         = domain.ErrExternalTimeout
	ErrDuplicateReference      = domain.ErrDuplicateReference
	ErrReferenceNotFound       = domain.ErrReferenceNotFound
)

// BuildError reports documents that could not be read during Index.
// The remaining documents were indexed.
type BuildError = domain.BuildError
