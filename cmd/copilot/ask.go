package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/astro1860/building-review-copliot/internal/config"
	"github.com/astro1860/building-review-copliot/internal/domain"
	"github.com/astro1860/building-review-copliot/internal/domain/document"
	"github.com/astro1860/building-review-copliot/internal/domain/response"
	logpkg "github.com/astro1860/building-review-copliot/internal/logger"
)

type askOptions struct {
	files         []string
	showReasoning bool
	useCache      bool
}

func newAskCommand() *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question over local documents",
		Long: "Indexes the given files, streams the answer to stdout and exits.\n" +
			"Without files the question is answered from general knowledge.",
		Example: `  copilot ask -f plan.pdf -f bc-ch10.pdf "How wide must the exit stair be?"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runAsk(ctx, strings.Join(args, " "), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringArrayVarP(&opts.files, "file", "f", nil, "document to index (PDF or text); repeatable")
	cmd.Flags().BoolVar(&opts.showReasoning, "show-reasoning", false, "print the model's reasoning to stderr")
	cmd.Flags().BoolVar(&opts.useCache, "cache", false, "use the configured embedding cache")
	return cmd
}

func runAsk(ctx context.Context, question string, opts askOptions, stdout, stderr io.Writer) error {
	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// The CLI keeps stdout for the answer; logs stay quiet unless asked for.
	level := cfg.Logging.Level
	if level == "" || level == "debug" || level == "info" {
		level = "warn"
	}
	logger, err := logpkg.NewLogger(env, level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	a, err := newApp(ctx, cfg, logger, opts.useCache)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(opts.files) > 0 {
		docs, err := readFiles(opts.files)
		if err != nil {
			return err
		}
		report, err := a.session.Retriever().Build(ctx, docs)
		var buildErr *domain.BuildError
		switch {
		case errors.As(err, &buildErr):
			for _, f := range buildErr.Failed {
				_, _ = fmt.Fprintf(stderr, "skipped %s: %v\n", f.SourceID, f.Err)
			}
		case err != nil:
			return fmt.Errorf("index documents: %w", err)
		}
		logger.Info("Indexed documents", zap.Int("chunks", report.Chunks))
	}

	out := &progressPrinter{stdout: stdout, stderr: stderr, showReasoning: opts.showReasoning}
	ans, err := a.chat.Ask(ctx, a.session, question, out.update)
	out.finish()
	if err != nil {
		return err
	}
	if !ans.Grounded {
		_, _ = fmt.Fprintln(stderr, "(answered without document context)")
	}
	return nil
}

func readFiles(paths []string) ([]document.Source, error) {
	docs := make([]document.Source, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(filepath.Clean(p))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		doc, err := document.New(p, data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// progressPrinter writes only the newly visible text of each update.
// Streaming updates that rewrite earlier text are skipped; the final view is
// printed in full on a new line when it no longer extends what was shown,
// as happens when a preamble precedes the reasoning block.
type progressPrinter struct {
	stdout, stderr io.Writer
	showReasoning  bool

	reasoning string
	answer    string
}

func (p *progressPrinter) update(r response.Response) error {
	if r.State == response.Done && !strings.HasPrefix(r.Answer, p.answer) {
		if _, err := io.WriteString(p.stdout, "\n"); err != nil {
			return err
		}
		p.answer = ""
	}
	if p.showReasoning {
		if err := emit(p.stderr, &p.reasoning, r.Reasoning); err != nil {
			return err
		}
	}
	if p.showReasoning && p.answer == "" && p.reasoning != "" && r.Answer != "" {
		_, _ = io.WriteString(p.stderr, "\n\n")
	}
	return emit(p.stdout, &p.answer, r.Answer)
}

func emit(w io.Writer, printed *string, current string) error {
	if len(current) <= len(*printed) || !strings.HasPrefix(current, *printed) {
		return nil
	}
	if _, err := io.WriteString(w, current[len(*printed):]); err != nil {
		return err
	}
	*printed = current
	return nil
}

func (p *progressPrinter) finish() {
	if p.answer != "" {
		_, _ = io.WriteString(p.stdout, "\n")
	}
}
