package retrieval

import (
	"github.com/astro1860/building-review-copliot/internal/domain/chunk"
	"github.com/astro1860/building-review-copliot/internal/index"
)

// VectorIndex is the index contract the retriever builds and queries.
type VectorIndex interface {
	Rebuild(chunks []chunk.Embedded) error
	Search(query []float32, k int) ([]index.Hit, error)
	Reset()
	Len() int
}
