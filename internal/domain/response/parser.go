// Package response separates the reasoning and answer sections of a streamed
// model completion. Parsing is a pure function of the accumulated buffer, so
// it can be re-run after every fragment regardless of how the text was split.
package response

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Section markers emitted by the model.
const (
	ThinkOpen   = "<think>"
	ThinkClose  = "</think>"
	AnswerOpen  = "<answer>"
	AnswerClose = "</answer>"
)

var markers = []string{ThinkOpen, ThinkClose, AnswerOpen, AnswerClose}

// State is the parser position within the expected response layout.
type State string

// Parser states, in the order a well-formed response walks through them.
const (
	AwaitingThinkOpen  State = "awaiting_think_open"
	InThink            State = "in_think"
	AwaitingAnswerOpen State = "awaiting_answer_open"
	InAnswer           State = "in_answer"
	Done               State = "done"
)

// Response is the structured view of a (possibly partial) completion.
// Reasoning is meaningful only when HasReasoning is true.
type Response struct {
	Reasoning    string `json:"reasoning,omitempty"`
	HasReasoning bool   `json:"has_reasoning"`
	Answer       string `json:"answer"`
	State        State  `json:"state"`
}

// Parse classifies a buffer that may still grow. A trailing fragment that
// could be the start of a marker is held back until it is complete, so the
// visible text only ever grows as more of the stream arrives.
func Parse(buf string) Response {
	return parse(buf, false)
}

// Finalize classifies the complete buffer once the stream has ended.
func Finalize(buf string) Response {
	return parse(buf, true)
}

func parse(buf string, final bool) Response {
	open := strings.Index(buf, ThinkOpen)
	if open < 0 {
		answer, state := extractAnswer(buf, final, ThinkOpen, ThinkClose)
		if state == AwaitingAnswerOpen {
			state = AwaitingThinkOpen
		}
		return finish(Response{Answer: answer, State: state}, final)
	}

	body := buf[open+len(ThinkOpen):]
	end := strings.Index(body, ThinkClose)
	if end < 0 {
		if !final {
			body = holdBack(body, ThinkClose)
		}
		return finish(Response{
			Reasoning:    clean(body),
			HasReasoning: true,
			State:        InThink,
		}, final)
	}

	answer, state := extractAnswer(body[end+len(ThinkClose):], final)
	return finish(Response{
		Reasoning:    clean(body[:end]),
		HasReasoning: true,
		Answer:       answer,
		State:        state,
	}, final)
}

// extractAnswer returns the answer section of rest: the text between answer
// markers when an opening marker is present, otherwise the whole text.
// pending lists extra markers whose partial prefix must be held back.
func extractAnswer(rest string, final bool, pending ...string) (string, State) {
	if i := strings.Index(rest, AnswerOpen); i >= 0 {
		body := rest[i+len(AnswerOpen):]
		if j := strings.Index(body, AnswerClose); j >= 0 {
			return clean(body[:j]), InAnswer
		}
		if !final {
			body = holdBack(body, AnswerClose)
		}
		return clean(body), InAnswer
	}

	if !final {
		rest = holdBack(rest, append(pending, AnswerOpen, AnswerClose)...)
	}
	answer := clean(rest)
	if answer == "" {
		return "", AwaitingAnswerOpen
	}
	return answer, InAnswer
}

func finish(r Response, final bool) Response {
	if final {
		r.State = Done
	}
	return r
}

// clean strips marker literals and surrounding whitespace. A marker between
// two words becomes a single space so the words stay apart.
func clean(s string) string {
	for _, m := range markers {
		for {
			i := strings.Index(s, m)
			if i < 0 {
				break
			}
			before, after := s[:i], s[i+len(m):]
			if joinsWords(before, after) {
				s = before + " " + after
			} else {
				s = before + after
			}
		}
	}
	return strings.TrimSpace(s)
}

func joinsWords(before, after string) bool {
	if before == "" || after == "" {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(before)
	first, _ := utf8.DecodeRuneInString(after)
	return !unicode.IsSpace(last) && !unicode.IsSpace(first)
}

// holdBack trims the longest suffix of s that is a proper prefix of one of markers.
func holdBack(s string, markers ...string) string {
	cut := 0
	for _, m := range markers {
		for n := min(len(m)-1, len(s)); n > cut; n-- {
			if strings.HasSuffix(s, m[:n]) {
				cut = n
				break
			}
		}
	}
	return s[:len(s)-cut]
}
