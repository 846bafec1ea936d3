package chat

import (
	"github.com/astro1860/building-review-copliot/internal/domain/chunk"
	"github.com/astro1860/building-review-copliot/internal/domain/reference"
)

// PromptAssembler renders the model prompt.
type PromptAssembler interface {
	Assemble(question string, context []chunk.Chunk, refs []reference.Source) (string, error)
}
