// Package chunk holds the text units that flow from ingestion into the vector index.
package chunk

import (
	"fmt"
	"maps"
	"strconv"
)

// Metadata keys set during a build.
const (
	MetaSource = "source"
	MetaPage   = "page"
)

// Chunk is a bounded slice of document text (immutable value object).
type Chunk struct {
	text     string
	sourceID string
	index    int
	metadata map[string]string
}

// New validates and creates a Chunk. Metadata is copied.
func New(text, sourceID string, index int, metadata map[string]string) (Chunk, error) {
	if sourceID == "" {
		return Chunk{}, fmt.Errorf("chunk source id is required")
	}
	if index < 0 {
		return Chunk{}, fmt.Errorf("chunk index must be non-negative, got %d", index)
	}
	return Chunk{
		text:     text,
		sourceID: sourceID,
		index:    index,
		metadata: maps.Clone(metadata),
	}, nil
}

// Text returns the chunk text.
func (c Chunk) Text() string { return c.text }

// SourceID returns the id of the document the chunk was cut from.
func (c Chunk) SourceID() string { return c.sourceID }

// Index returns the position of the chunk within its source.
func (c Chunk) Index() int { return c.index }

// Metadata returns a copy of the metadata map.
func (c Chunk) Metadata() map[string]string { return maps.Clone(c.metadata) }

// Meta returns a single metadata value.
func (c Chunk) Meta(key string) string { return c.metadata[key] }

// Page returns the zero-based page index, or -1 when unknown.
func (c Chunk) Page() int {
	p, err := strconv.Atoi(c.metadata[MetaPage])
	if err != nil {
		return -1
	}
	return p
}

// Embedded is a Chunk together with its embedding vector.
type Embedded struct {
	Chunk
	vector []float32
}

// NewEmbedded attaches a copy of vector to c.
func NewEmbedded(c Chunk, vector []float32) Embedded {
	return Embedded{Chunk: c, vector: append([]float32(nil), vector...)}
}

// Vector returns the embedding vector. Callers must not modify it.
func (e Embedded) Vector() []float32 { return e.vector }
