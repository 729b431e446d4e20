package cli

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nostrstore/nostrstore/internal/feed"
	"github.com/nostrstore/nostrstore/internal/filter"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Filters  []string
	Interval time.Duration
	Follow   []string
	Max      int
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print new events matching filters as they are stored",
		Long: `Subscribe with one or more filters and print every newly stored event
that matches any of them, oldest first, until interrupted.

Only events stored by this process are seen, so watch is usually combined
with --ingest, which follows JSONL files into the store.

Example:
  nostrstore watch --db ./data --filter '{"kinds":[1]}' --ingest relay.jsonl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Filters, "filter", []string{matchAllFilter}, "filter as JSON (repeatable)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 200*time.Millisecond, "poll interval")
	cmd.Flags().StringArrayVar(&opts.Follow, "ingest", nil, "JSONL file to follow into the store (repeatable)")
	cmd.Flags().IntVar(&opts.Max, "max", 0, "exit after this many events (0 = never)")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) (err error) {
	if opts.Interval <= 0 {
		return NewExitError(ExitCommandError, "--interval must be positive")
	}
	filters := make([]*filter.Filter, len(opts.Filters))
	for i, js := range opts.Filters {
		if filters[i], err = parseFilter(js); err != nil {
			return err
		}
	}

	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer closeSession(s, &err)

	sub, err := s.engine.Subscribe(filters...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to subscribe", err)
	}
	defer s.engine.Unsubscribe(sub)
	s.out.VerboseLog("subscription %d watching %d filter(s)", sub, len(filters))

	ctx, cancel := signalContext(cmd)
	defer cancel()

	var in *ingester
	if len(opts.Follow) > 0 {
		in = newIngester(ctx, s)
		follower, err := feed.NewFollower(s.feedOptions(), opts.Follow...)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to follow input", err)
		}
		go func() {
			if err := follower.Follow(ctx, in.submit); err != nil {
				s.logger.Error("follow failed", zap.Error(err))
				cancel()
			}
		}()
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	printed := 0
poll:
	for {
		n, err := printPending(cmd, s, sub, opts.Max-printed)
		printed += n
		if err != nil {
			return err
		}
		if opts.Max > 0 && printed >= opts.Max {
			break
		}

		select {
		case <-ctx.Done():
			break poll
		case <-ticker.C:
		}
	}

	if in != nil {
		cancel()
		if _, err := in.wait(); err != nil && ctx.Err() == nil {
			return WrapExitError(ExitFailure, "ingest failed", err)
		}
	}
	return nil
}

// printPending polls up to max keys (all when max <= 0) and prints their
// notes from one snapshot.
func printPending(cmd *cobra.Command, s *session, sub uint64, max int) (int, error) {
	keys, err := s.engine.Poll(sub, max)
	if err != nil {
		return 0, WrapExitError(ExitFailure, "poll failed", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	snap, err := s.engine.BeginSnapshot(cmd.Context())
	if err != nil {
		return 0, WrapExitError(ExitFailure, "failed to open snapshot", err)
	}
	defer snap.End()

	for i, key := range keys {
		n, err := snap.GetByKey(cmd.Context(), key)
		if err != nil {
			return i, WrapExitError(ExitFailure, "failed to read event", err)
		}
		if err := s.out.Line(noteView{Key: key, Note: n}); err != nil {
			return i, err
		}
	}
	return len(keys), nil
}
