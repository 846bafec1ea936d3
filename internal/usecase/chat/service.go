// Package chat answers one question at a time against a session: retrieve,
// assemble, stream and parse, with progressive updates.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/astro1860/building-review-copliot/internal/domain"
	"github.com/astro1860/building-review-copliot/internal/domain/chunk"
	"github.com/astro1860/building-review-copliot/internal/domain/conversation"
	"github.com/astro1860/building-review-copliot/internal/domain/response"
	"github.com/astro1860/building-review-copliot/internal/logger"
	"github.com/astro1860/building-review-copliot/internal/session"
	"github.com/astro1860/building-review-copliot/internal/usecase/retrieval"
)

// Answer is the outcome of one question.
type Answer struct {
	Response response.Response `json:"response"`
	Context  []chunk.Chunk     `json:"-"`
	Grounded bool              `json:"grounded"`
	Raw      string            `json:"-"`
}

// UpdateFunc observes the parsed response after every fragment. Returning an
// error stops the stream.
type UpdateFunc func(response.Response) error

// Service drives questions through retrieval and generation.
type Service struct {
	assembler PromptAssembler
	generator domain.Generator
	logger    *zap.Logger
	topK      int
}

// New creates a chat service. log is used when the request context carries
// no logger of its own.
func New(assembler PromptAssembler, generator domain.Generator, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{assembler: assembler, generator: generator, logger: log, topK: retrieval.DefaultTopK}
}

// WithTopK sets how many chunks ground each answer.
func (s *Service) WithTopK(k int) *Service {
	if k > 0 {
		s.topK = k
	}
	return s
}

// Ask answers question within sess. The user turn is recorded before
// generation; the assistant turn is recorded with the raw model output,
// including partial output when the stream fails or is aborted.
func (s *Service) Ask(ctx context.Context, sess *session.Session, question string, onUpdate UpdateFunc) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, domain.ErrEmptyQuestion
	}
	log := logger.FromContextOr(ctx, s.logger).With(zap.String("session_id", sess.ID()))
	ctx = logger.ContextWithLogger(ctx, log)

	if _, err := sess.AppendTurn(conversation.RoleUser, question); err != nil {
		return Answer{}, fmt.Errorf("record question: %w", err)
	}

	chunks, err := sess.Retriever().Retrieve(ctx, question, s.topK)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve: %w", err)
	}

	ans := Answer{Grounded: len(chunks) > 0}
	var promptContext []chunk.Chunk
	if ans.Grounded {
		promptContext = chunks
		ans.Context = chunks
	}

	prompt, err := s.assembler.Assemble(question, promptContext, sess.References())
	if err != nil {
		return Answer{}, fmt.Errorf("assemble prompt: %w", err)
	}

	stream, err := s.generator.Stream(ctx, prompt)
	if err != nil {
		return Answer{}, fmt.Errorf("generate: %w", err)
	}
	defer stream.Close()

	acc := response.NewAccumulator()
	streamErr := consume(stream, acc, onUpdate)

	ans.Raw = acc.Raw()
	if streamErr != nil {
		ans.Response = acc.Last()
	} else {
		ans.Response = acc.Close()
		if onUpdate != nil {
			if err := onUpdate(ans.Response); err != nil {
				streamErr = fmt.Errorf("%w: %w", domain.ErrStreamAborted, err)
			}
		}
	}

	if ans.Raw != "" {
		if _, err := sess.AppendTurn(conversation.RoleAssistant, ans.Raw); err != nil {
			return ans, fmt.Errorf("record answer: %w", err)
		}
	}

	if streamErr != nil {
		log.Warn("Answer incomplete",
			zap.Bool("grounded", ans.Grounded),
			zap.Int("raw_chars", len(ans.Raw)),
			zap.Error(streamErr),
		)
		return ans, streamErr
	}

	log.Info("Question answered",
		zap.Bool("grounded", ans.Grounded),
		zap.Int("context_chunks", len(ans.Context)),
		zap.Bool("has_reasoning", ans.Response.HasReasoning),
	)
	return ans, nil
}

func consume(stream domain.FragmentStream, acc *response.Accumulator, onUpdate UpdateFunc) error {
	for {
		frag, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("generate: %w", err)
		}

		resp := acc.Write(frag)
		if onUpdate == nil {
			continue
		}
		if err := onUpdate(resp); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrStreamAborted, err)
		}
	}
}
