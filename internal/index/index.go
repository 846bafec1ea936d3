// Package index is an in-memory vector index with cosine similarity search.
//
// The index content is an immutable snapshot published through an atomic
// pointer. Writers build a new snapshot and swap it in, so a reader sees either
// the whole of a batch or none of it and never blocks.
package index

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/astro1860/building-review-copliot/internal/domain"
	"github.com/astro1860/building-review-copliot/internal/domain/chunk"
)

// Hit is a search result.
type Hit struct {
	Chunk chunk.Embedded
	Score float64
}

type entry struct {
	chunk chunk.Embedded
	norm  []float64 // unit-length copy of the vector; nil for zero vectors
}

type snapshot struct {
	entries   []entry
	dimension int
}

// Index holds embedded chunks. The zero value is not usable; call New.
type Index struct {
	current atomic.Pointer[snapshot]
	writeMu sync.Mutex // serialises writers; readers never take it
}

// New creates an empty index.
func New() *Index {
	idx := &Index{}
	idx.current.Store(&snapshot{})
	return idx
}

// InsertAll appends chunks as one atomic batch.
func (x *Index) InsertAll(chunks []chunk.Embedded) error {
	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	old := x.current.Load()
	next, err := extend(old, chunks)
	if err != nil {
		return err
	}
	x.current.Store(next)
	return nil
}

// Rebuild replaces the whole index content with chunks in one atomic swap.
func (x *Index) Rebuild(chunks []chunk.Embedded) error {
	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	next, err := extend(&snapshot{}, chunks)
	if err != nil {
		return err
	}
	x.current.Store(next)
	return nil
}

// Reset empties the index.
func (x *Index) Reset() {
	x.writeMu.Lock()
	defer x.writeMu.Unlock()
	x.current.Store(&snapshot{})
}

// Len returns the number of indexed chunks.
func (x *Index) Len() int { return len(x.current.Load().entries) }

// Dimension returns the vector dimension, 0 while empty.
func (x *Index) Dimension() int { return x.current.Load().dimension }

// Search returns the k chunks most similar to query by cosine similarity,
// best first. Equal scores keep insertion order. k is clipped to Len(); an
// empty index or k <= 0 gives an empty result.
func (x *Index) Search(query []float32, k int) ([]Hit, error) {
	snap := x.current.Load()
	if len(snap.entries) == 0 || k <= 0 {
		return []Hit{}, nil
	}
	if len(query) != snap.dimension {
		return nil, fmt.Errorf("query has %d dimensions, index has %d: %w",
			len(query), snap.dimension, domain.ErrVectorDimMismatch)
	}

	q := normalize(query)
	hits := make([]Hit, len(snap.entries))
	for i, e := range snap.entries {
		hits[i] = Hit{Chunk: e.chunk, Score: dot(q, e.norm)}
	}

	slices.SortStableFunc(hits, func(a, b Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	return hits[:min(k, len(hits))], nil
}

func extend(base *snapshot, chunks []chunk.Embedded) (*snapshot, error) {
	dim := base.dimension
	entries := make([]entry, len(base.entries), len(base.entries)+len(chunks))
	copy(entries, base.entries)

	for i, c := range chunks {
		v := c.Vector()
		if len(v) == 0 {
			return nil, fmt.Errorf("chunk %d has an empty vector: %w", i, domain.ErrVectorDimMismatch)
		}
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim {
			return nil, fmt.Errorf("chunk %d has %d dimensions, want %d: %w",
				i, len(v), dim, domain.ErrVectorDimMismatch)
		}
		entries = append(entries, entry{chunk: c, norm: normalize(v)})
	}

	if len(entries) == 0 {
		dim = 0
	}
	return &snapshot{entries: entries, dimension: dim}, nil
}

func normalize(v []float32) []float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return nil
	}
	n := math.Sqrt(sum)
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f) / n
	}
	return out
}

// dot returns 0 when either side is a zero vector.
func dot(a, b []float64) float64 {
	if a == nil || b == nil {
		return 0
	}
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
