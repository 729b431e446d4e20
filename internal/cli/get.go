package cli

import (
	"github.com/spf13/cobra"

	"github.com/nostrstore/nostrstore/internal/event"
)

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print the event with the given id",
		Long: `Print a stored event and its key. The id is 64 hex characters.

Example:
  nostrstore get --db ./data 5c83da77af1dec6d7289834998ad7aafbd9e2191396d75ec3cc27f5a77226f36`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			id, perr := event.ParseID(args[0])
			if perr != nil {
				return WrapExitError(ExitCommandError, "invalid id", perr)
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

			n, key, err := snap.GetByID(cmd.Context(), id)
			if err != nil {
				return lookupError("event", err)
			}
			return s.out.Success(noteView{Key: key, Note: n})
		},
	}
}
