package copilot

import (
	"time"

	"github.com/astro1860/building-review-copliot/internal/domain/response"
)

// Document is an uploaded file: PDF or plain text.
type Document struct {
	ID   string
	Data []byte
}

// BuildReport summarises an Index call.
type BuildReport struct {
	Documents int
	Chunks    int
	Succeeded []string
	Failed    []string
	Duration  time.Duration
}

// Response is the structured view of a (possibly partial) answer.
// Reasoning is meaningful only when HasReasoning is true.
type Response struct {
	Reasoning    string
	HasReasoning bool
	Answer       string
	Done         bool
}

func responseFromDomain(r response.Response) Response {
	return Response{
		Reasoning:    r.Reasoning,
		HasReasoning: r.HasReasoning,
		Answer:       r.Answer,
		Done:         r.State == response.Done,
	}
}

// Source points at a chunk that grounded an answer.
type Source struct {
	DocumentID string
	Page       int // zero-based; -1 when unknown
	Index      int
	Text       string
}

// Answer is the outcome of Ask.
type Answer struct {
	Response
	Grounded bool
	Sources  []Source
}

// Turn is one message of the conversation. Assistant turns carry the
// parsed view of the raw model output.
type Turn struct {
	Role      string // "user" or "assistant"
	Raw       string
	Parsed    Response
	CreatedAt time.Time
}
