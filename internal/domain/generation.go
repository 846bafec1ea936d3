package domain

import "context"

// Generator streams a completion for a prompt.
type Generator interface {
	Stream(ctx context.Context, prompt string) (FragmentStream, error)
}

// FragmentStream is a pull-based sequence of text fragments.
// Recv returns io.EOF once the provider has finished. The concatenation of
// all fragments equals the full response text. Close must always be called;
// it releases the underlying connection even when the stream was not drained.
type FragmentStream interface {
	Recv() (string, error)
	Close() error
}
