package response

import "strings"

// Accumulator collects stream fragments and re-parses the whole buffer on
// every write. It is not safe for concurrent use.
type Accumulator struct {
	buf  strings.Builder
	last Response
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{last: Parse("")}
}

// Write appends fragment and returns the updated view.
func (a *Accumulator) Write(fragment string) Response {
	a.buf.WriteString(fragment)
	a.last = Parse(a.buf.String())
	return a.last
}

// Close returns the final view of everything written so far.
func (a *Accumulator) Close() Response {
	a.last = Finalize(a.buf.String())
	return a.last
}

// Last returns the most recent view.
func (a *Accumulator) Last() Response { return a.last }

// Raw returns the unparsed buffer.
func (a *Accumulator) Raw() string { return a.buf.String() }
