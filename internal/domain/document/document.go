package document

import (
	"fmt"
	"strings"
)

// MaxSize is the largest accepted upload in bytes.
const MaxSize = 64 << 20 // 64MB

// Source is an uploaded document: raw bytes plus a caller-supplied identifier
// (file name for uploads, path for the CLI).
type Source struct {
	id   string
	data []byte
}

// New validates and creates a Source.
func New(id string, data []byte) (Source, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Source{}, fmt.Errorf("document id is required")
	}
	if len(data) == 0 {
		return Source{}, fmt.Errorf("document %q is empty", id)
	}
	if len(data) > MaxSize {
		return Source{}, fmt.Errorf("document %q too large (max %d bytes)", id, MaxSize)
	}
	return Source{id: id, data: data}, nil
}

// ID returns the source identifier.
func (s Source) ID() string { return s.id }

// Data returns the raw document bytes.
func (s Source) Data() []byte { return s.data }

// Page is one unit of extracted text with its zero-based position in the source.
type Page struct {
	Text  string
	Index int
}
