// Package chunker splits document text into overlapping, size-bounded chunks.
package chunker

import (
	"fmt"
	"iter"

	"github.com/astro1860/building-review-copliot/internal/domain"
)

// Default sizes, in characters.
const (
	DefaultChunkSize = 700
	DefaultOverlap   = 50
)

// separators are tried in order; a chunk ends right after the last
// occurrence of the first separator found in the acceptable window.
var separators = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(". "),
	[]rune("? "),
	[]rune("! "),
	[]rune("; "),
	[]rune(" "),
}

// Splitter cuts text into chunks of at most chunkSize characters where each
// chunk starts with the last overlap characters of the previous one.
type Splitter struct {
	chunkSize int
	overlap   int
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithChunkSize sets the maximum chunk length in characters.
func WithChunkSize(n int) Option {
	return func(s *Splitter) { s.chunkSize = n }
}

// WithOverlap sets the number of characters shared by consecutive chunks.
func WithOverlap(n int) Option {
	return func(s *Splitter) { s.overlap = n }
}

// New creates a Splitter. It requires 0 <= overlap < chunkSize.
func New(opts ...Option) (*Splitter, error) {
	s := &Splitter{chunkSize: DefaultChunkSize, overlap: DefaultOverlap}
	for _, opt := range opts {
		opt(s)
	}
	if s.chunkSize <= 0 || s.overlap < 0 || s.overlap >= s.chunkSize {
		return nil, fmt.Errorf("chunk size %d, overlap %d: need 0 <= overlap < size: %w",
			s.chunkSize, s.overlap, domain.ErrInvalidArgument)
	}
	return s, nil
}

// Split is a shorthand for New(WithChunkSize(chunkSize), WithOverlap(overlap)).Split(text).
func Split(text string, chunkSize, overlap int) (iter.Seq[string], error) {
	s, err := New(WithChunkSize(chunkSize), WithOverlap(overlap))
	if err != nil {
		return nil, err
	}
	return s.Split(text), nil
}

// ChunkSize returns the configured maximum chunk length.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// Overlap returns the configured overlap.
func (s *Splitter) Overlap() int { return s.overlap }

// Split returns the chunks of text in document order. The sequence is lazy and
// can be ranged over any number of times. Dropping the first Overlap()
// characters of every chunk but the first and concatenating the rest gives
// back text exactly. Empty text yields nothing.
//
// Text must be valid UTF-8 for that to hold: each invalid byte counts as one
// character and comes back as U+FFFD. Ingest only produces valid UTF-8.
func (s *Splitter) Split(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		runes := []rune(text)
		start := 0
		for len(runes)-start > s.chunkSize {
			end := s.cut(runes, start)
			if !yield(string(runes[start:end])) {
				return
			}
			start = end - s.overlap
		}
		if len(runes) > start {
			yield(string(runes[start:]))
		}
	}
}

// cut picks the end of the chunk that starts at start. The end always lies in
// (start+overlap, start+chunkSize] so the next chunk makes progress; structural
// boundaries are accepted only in the upper half of the window.
func (s *Splitter) cut(runes []rune, start int) int {
	hi := start + s.chunkSize
	lo := max(start+s.overlap+1, start+s.chunkSize/2)

	for _, sep := range separators {
		for end := hi; end >= lo; end-- {
			if endsWith(runes[:end], sep) {
				return end
			}
		}
	}
	return hi
}

func endsWith(runes, suffix []rune) bool {
	if len(runes) < len(suffix) {
		return false
	}
	tail := runes[len(runes)-len(suffix):]
	for i := range suffix {
		if tail[i] != suffix[i] {
			return false
		}
	}
	return true
}
