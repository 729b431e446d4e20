package cli

import (
	"github.com/spf13/cobra"

	"github.com/nostrstore/nostrstore/internal/filter"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Filter string
	Limit  int
	Count  bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query events with a filter",
		Long: `Print the stored events matching a NIP-01 filter, newest first.

Without --filter every stored event matches.

The effective limit is the smaller of --limit and the filter's own "limit";
without either, at most 500 events are printed. --count prints the number of
matches instead, ignoring every limit.

Example:
  nostrstore query --db ./data --filter '{"kinds":[1],"limit":20}'
  nostrstore query --db ./data --filter '{"#t":["nostr"]}' --count`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", matchAllFilter, "filter as JSON")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "maximum number of events (0 = filter limit or default)")
	cmd.Flags().BoolVar(&opts.Count, "count", false, "print the number of matches only")

	return cmd
}

// matchAllFilter is the --filter default. A filter needs at least one field,
// and every note has created_at >= 0.
const matchAllFilter = `{"since":0}`

func parseFilter(js string) (*filter.Filter, error) {
	f, err := filter.ParseJSON([]byte(js))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "parse --filter", err)
	}
	return f, nil
}

func runQuery(opts *QueryOptions, cmd *cobra.Command) (err error) {
	f, err := parseFilter(opts.Filter)
	if err != nil {
		return err
	}

	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer closeSession(s, &err)

	snap, err := s.engine.BeginSnapshot(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to open snapshot", err)
	}
	defer snap.End()

	if opts.Count {
		n, err := snap.Count(cmd.Context(), f)
		if err != nil {
			return WrapExitError(ExitFailure, "count failed", err)
		}
		return s.out.Success(countView{Count: n})
	}

	res, err := snap.Query(cmd.Context(), f, opts.Limit)
	if err != nil {
		return WrapExitError(ExitFailure, "query failed", err)
	}
	view := queryView{Notes: make([]noteView, len(res.Keys)), Truncated: res.Truncated}
	for i, key := range res.Keys {
		view.Notes[i] = noteView{Key: key, Note: res.Notes[i]}
	}
	return s.out.Success(view)
}
