package chunker

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/astro1860/building-review-copliot/internal/domain"
)

const codeText = `§ 28-101.1 Title. This code shall be known and may be cited as the "New York City Construction Codes."

§ 28-101.2 Intent. The purpose of this code is to provide reasonable minimum requirements and standards, based upon current scientific and engineering knowledge, experience and techniques, and the utilization of modern machinery, equipment, materials, and forms and methods of construction, for the regulation of building construction in the city of New York in the interest of public safety, health, welfare and the environment.

§ 28-101.3 Scope. Except as provided in subsection 28-101.4 or elsewhere in this code, the provisions of this code shall apply to the construction, alteration, repair, demolition, removal, use, location, occupancy and maintenance of all new and existing buildings and structures.
Section 1208.2 Minimum ceiling heights. Occupiable spaces, habitable spaces and corridors shall have a ceiling height of not less than 7 feet 6 inches (2286 mm)! Bathrooms, toilet rooms, kitchens, storage rooms and laundry rooms shall be permitted to have a ceiling height of not less than 7 feet (2134 mm)? Yes.`

func reconstruct(chunks []string, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(c)
			continue
		}
		r := []rune(c)
		b.WriteString(string(r[overlap:]))
	}
	return b.String()
}

func TestSplit_ReconstructsTextWithinBounds(t *testing.T) {
	texts := []string{
		codeText,
		strings.Repeat("x", 1000),
		strings.Repeat("word ", 300),
		strings.Repeat("Ünïcödé ≤ 7′6″ ", 120),
		"short",
	}
	params := []struct{ size, overlap int }{
		{700, 50}, {100, 0}, {64, 10}, {10, 9}, {1, 0}, {200, 199},
	}

	for _, text := range texts {
		for _, p := range params {
			seq, err := Split(text, p.size, p.overlap)
			if err != nil {
				t.Fatalf("Split(%d,%d): %v", p.size, p.overlap, err)
			}
			chunks := slices.Collect(seq)

			if got := reconstruct(chunks, p.overlap); got != text {
				t.Fatalf("size=%d overlap=%d: reconstruction mismatch", p.size, p.overlap)
			}
			for i, c := range chunks {
				if n := utf8.RuneCountInString(c); n > p.size {
					t.Fatalf("size=%d overlap=%d: chunk %d has %d chars", p.size, p.overlap, i, n)
				}
				if i == 0 {
					continue
				}
				prev := []rune(chunks[i-1])
				cur := []rune(c)
				if string(prev[len(prev)-p.overlap:]) != string(cur[:p.overlap]) {
					t.Fatalf("size=%d overlap=%d: chunk %d does not share overlap", p.size, p.overlap, i)
				}
			}
		}
	}
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chunks := slices.Collect(s.Split("Section 1"))
	if len(chunks) != 1 || chunks[0] != "Section 1" {
		t.Fatalf("expected one chunk equal to text, got %q", chunks)
	}

	exact := strings.Repeat("a", DefaultChunkSize)
	if got := slices.Collect(s.Split(exact)); len(got) != 1 {
		t.Fatalf("expected one chunk for text of exactly chunk size, got %d", len(got))
	}
}

func TestSplit_EmptyText(t *testing.T) {
	s, _ := New()
	if got := slices.Collect(s.Split("")); len(got) != 0 {
		t.Fatalf("expected no chunks, got %q", got)
	}
}

func TestSplit_PrefersParagraphBoundary(t *testing.T) {
	para := strings.Repeat("a", 60)
	text := para + "\n\n" + para + "\n\n" + para

	seq, err := Split(text, 100, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chunks := slices.Collect(seq)
	if !strings.HasSuffix(chunks[0], "\n\n") {
		t.Errorf("expected first chunk to end at the paragraph break, got %q", chunks[0])
	}
}

func TestSplit_Restartable(t *testing.T) {
	s, _ := New(WithChunkSize(80), WithOverlap(8))
	seq := s.Split(codeText)

	first := slices.Collect(seq)
	second := slices.Collect(seq)
	if !slices.Equal(first, second) {
		t.Fatal("expected identical chunks on second iteration")
	}
	if len(first) < 2 {
		t.Fatalf("expected several chunks, got %d", len(first))
	}
}

func TestSplit_StopsEarly(t *testing.T) {
	s, _ := New(WithChunkSize(20), WithOverlap(2))
	n := 0
	for range s.Split(codeText) {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("expected to stop after 2 chunks, got %d", n)
	}
}

func TestSplit_InvalidUTF8BecomesReplacementChar(t *testing.T) {
	seq, err := Split("\xffab", 2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := slices.Collect(seq)
	if want := []string{"\uFFFDa", "b"}; !slices.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	for _, c := range got {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %q is not valid UTF-8", c)
		}
	}
}

func TestNew_InvalidArguments(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
	}{
		{"zero size", 0, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
		{"overlap above size", 10, 20},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Split("text", tc.size, tc.overlap)
			if !errors.Is(err, domain.ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}
