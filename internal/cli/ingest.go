package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nostrstore/nostrstore/internal/engine"
	"github.com/nostrstore/nostrstore/internal/feed"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Follow bool
	Strict bool
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Ingest newline-delimited events",
		Long: `Ingest signed events, one JSON event or ["EVENT", ...] envelope per line.

Events are read from the given files, or from stdin when no file is given.
With --follow the files are tailed until interrupted and every appended
line is ingested.

Example:
  nostrstore ingest --db ./data events.jsonl
  cat events.jsonl | nostrstore ingest --db ./data
  nostrstore ingest --db ./data --follow relay-dump.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false, "keep tailing the files for appended events")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "exit with failure if any event is rejected")

	return cmd
}

// ingester submits lines concurrently and tallies the outcomes.
type ingester struct {
	engine *engine.Engine
	logger *zap.Logger
	group  *errgroup.Group
	ctx    context.Context

	mu      sync.Mutex
	summary ingestSummary
}

func newIngester(ctx context.Context, s *session) *ingester {
	g, gctx := errgroup.WithContext(ctx)
	// Enough in flight to keep every worker and the committer's batches full.
	g.SetLimit(s.cfg.Engine.IngesterThreads + s.cfg.Engine.CommitBatchSize)
	return &ingester{
		engine:  s.engine,
		logger:  s.logger,
		group:   g,
		ctx:     gctx,
		summary: ingestSummary{Reasons: map[string]int{}},
	}
}

// submit queues one line. It blocks while the in-flight limit is reached.
func (in *ingester) submit(source string, line []byte) error {
	if err := in.ctx.Err(); err != nil {
		return err
	}
	raw := bytes.Clone(line)
	in.group.Go(func() error {
		receipt, err := in.engine.Submit(in.ctx, raw)
		in.mu.Lock()
		defer in.mu.Unlock()
		in.summary.Lines++
		switch {
		case engine.IsRejected(err):
			reason := string(engine.ReasonOf(err))
			in.summary.Rejected++
			in.summary.Reasons[reason]++
			in.logger.Warn("event rejected",
				zap.String("source", source),
				zap.String("reason", reason),
				zap.Error(err))
		case err != nil:
			return err
		case receipt.Status == engine.StatusDuplicate:
			in.summary.Duplicates++
		default:
			in.summary.Stored++
		}
		return nil
	})
	return nil
}

func (in *ingester) wait() (*ingestSummary, error) {
	err := in.group.Wait()
	in.mu.Lock()
	defer in.mu.Unlock()
	return &in.summary, err
}

func runIngest(opts *IngestOptions, files []string, cmd *cobra.Command) (err error) {
	if opts.Follow && len(files) == 0 {
		return NewExitError(ExitCommandError, "--follow needs at least one file")
	}

	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer closeSession(s, &err)

	ctx, cancel := signalContext(cmd)
	defer cancel()

	in := newIngester(ctx, s)
	readErr := readInput(ctx, opts, files, cmd, s, in)
	summary, waitErr := in.wait()
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		return WrapExitError(ExitFailure, "ingest failed", waitErr)
	}
	var exitErr *ExitError
	switch {
	case errors.As(readErr, &exitErr):
		return readErr
	case readErr != nil && !errors.Is(readErr, context.Canceled):
		return WrapExitError(ExitFailure, "ingest failed", readErr)
	}

	s.logger.Info("ingest finished",
		zap.Int("lines", summary.Lines),
		zap.Int("stored", summary.Stored),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("rejected", summary.Rejected))
	if err := s.out.Success(summary); err != nil {
		return err
	}
	if opts.Strict && summary.Rejected > 0 {
		return NewExitError(ExitFailure, "some events were rejected")
	}
	return nil
}

func readInput(ctx context.Context, opts *IngestOptions, files []string, cmd *cobra.Command, s *session, in *ingester) error {
	feedOpts := s.feedOptions()
	if opts.Follow {
		f, err := feed.NewFollower(feedOpts, files...)
		if err != nil {
			return err
		}
		s.out.VerboseLog("following %d file(s) until interrupted", len(files))
		return f.Follow(ctx, in.submit)
	}

	if len(files) == 0 {
		s.out.VerboseLog("reading events from stdin")
		return feed.ReadLines(ctx, "stdin", cmd.InOrStdin(), feedOpts, in.submit)
	}
	for _, path := range files {
		s.out.VerboseLog("reading events from %s", path)
		fh, err := os.Open(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open input", err)
		}
		err = feed.ReadLines(ctx, path, fh, feedOpts, in.submit)
		fh.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
