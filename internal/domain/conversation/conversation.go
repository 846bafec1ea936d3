// Package conversation holds the append-only chat history of a session.
package conversation

import (
	"fmt"
	"slices"
	"time"

	"github.com/astro1860/building-review-copliot/internal/domain/response"
)

// Role identifies the author of a turn.
type Role string

// Turn roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleUser || r == RoleAssistant }

// Turn is one message. For assistant turns RawContent is the unparsed model
// output, which may still contain the reasoning section.
type Turn struct {
	Role       Role      `json:"role"`
	RawContent string    `json:"raw_content"`
	CreatedAt  time.Time `json:"created_at"`
}

// Structured derives the reasoning/answer view of the turn. User turns are
// returned as a plain answer.
func (t Turn) Structured() response.Response {
	if t.Role == RoleUser {
		return response.Response{Answer: t.RawContent, State: response.Done}
	}
	return response.Finalize(t.RawContent)
}

// History is an append-only sequence of turns. Not safe for concurrent use.
type History struct {
	turns []Turn
	now   func() time.Time
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{now: time.Now}
}

// Append adds a turn.
func (h *History) Append(role Role, content string) (Turn, error) {
	if !role.Valid() {
		return Turn{}, fmt.Errorf("unknown role %q", role)
	}
	t := Turn{Role: role, RawContent: content, CreatedAt: h.now()}
	h.turns = append(h.turns, t)
	return t, nil
}

// Turns returns a copy of all turns in order.
func (h *History) Turns() []Turn { return slices.Clone(h.turns) }

// Len returns the number of turns.
func (h *History) Len() int { return len(h.turns) }
