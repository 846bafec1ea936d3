// Package reference models the ordered list of reference websites rendered into prompts.
package reference

import (
	"fmt"
	"slices"
	"strings"

	"github.com/astro1860/building-review-copliot/internal/domain"
)

// DefaultURL is the NYC DOB 2022 construction codes page.
const DefaultURL = "https://www.nyc.gov/site/buildings/codes/2022-construction-codes.page"

// Source is a reference website.
type Source struct {
	URL string `json:"url"`
}

// List is an ordered set of sources. Insertion order is kept; duplicates are rejected.
// The zero value is an empty list. List is not safe for concurrent use.
type List struct {
	items []Source
}

// NewList builds a list from urls, skipping blanks and duplicates.
func NewList(urls ...string) *List {
	l := &List{}
	for _, u := range urls {
		_ = l.Add(u)
	}
	return l
}

// Add appends url. Blank urls are ErrInvalidArgument, repeated ones ErrDuplicateReference.
func (l *List) Add(url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return fmt.Errorf("reference url is empty: %w", domain.ErrInvalidArgument)
	}
	if l.Contains(url) {
		return fmt.Errorf("%q: %w", url, domain.ErrDuplicateReference)
	}
	l.items = append(l.items, Source{URL: url})
	return nil
}

// Contains reports whether url is in the list. Surrounding whitespace is
// ignored, as in Add.
func (l *List) Contains(url string) bool {
	url = strings.TrimSpace(url)
	return slices.ContainsFunc(l.items, func(s Source) bool { return s.URL == url })
}

// RemoveAt deletes the source at position (zero-based).
func (l *List) RemoveAt(position int) (Source, error) {
	if position < 0 || position >= len(l.items) {
		return Source{}, fmt.Errorf("position %d: %w", position, domain.ErrReferenceNotFound)
	}
	removed := l.items[position]
	l.items = slices.Delete(l.items, position, position+1)
	return removed, nil
}

// Remove deletes url. Surrounding whitespace is ignored, as in Add.
func (l *List) Remove(url string) error {
	url = strings.TrimSpace(url)
	i := slices.IndexFunc(l.items, func(s Source) bool { return s.URL == url })
	if i < 0 {
		return fmt.Errorf("%q: %w", url, domain.ErrReferenceNotFound)
	}
	l.items = slices.Delete(l.items, i, i+1)
	return nil
}

// Sources returns a copy of the list in insertion order.
func (l *List) Sources() []Source { return slices.Clone(l.items) }

// Len returns the number of sources.
func (l *List) Len() int { return len(l.items) }
