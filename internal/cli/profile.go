package cli

import (
	"github.com/spf13/cobra"

	"github.com/nostrstore/nostrstore/internal/event"
)

// NewProfileCommand creates the profile command.
func NewProfileCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profile <pubkey>",
		Short: "Print the latest profile of an author",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			pk, perr := event.ParseID(args[0])
			if perr != nil {
				return WrapExitError(ExitCommandError, "invalid pubkey", perr)
			}

			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer closeSession(s, &err)

			snap, err := s.engine.BeginSnapshot(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to open snapshot", err)
			}
			defer snap.End()

			rec, err := snap.Profile(cmd.Context(), pk)
			if err != nil {
				return lookupError("profile", err)
			}
			return s.out.Success(newProfileView(rec))
		},
	}
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <prefix>",
		Short: "Find profiles by name prefix",
		Long: `Find cached profiles whose name or display name starts with prefix.
Matching ignores case and Unicode compatibility differences.

Example:
  nostrstore search --db ./data jack`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer closeSession(s, &err)

			snap, err := s.engine.BeginSnapshot(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to open snapshot", err)
			}
			defer snap.End()

			recs, err := snap.SearchProfiles(cmd.Context(), args[0], limit)
			if err != nil {
				return WrapExitError(ExitFailure, "search failed", err)
			}
			view := searchView{Profiles: make([]profileView, len(recs))}
			for i, rec := range recs {
				view.Profiles[i] = newProfileView(rec)
			}
			return s.out.Success(view)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of profiles")
	return cmd
}
