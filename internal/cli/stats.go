package cli

import (
	"github.com/spf13/cobra"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print table and kind statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer closeSession(s, &err)

			st, err := s.engine.Stats(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to compute stats", err)
			}
			return s.out.Success(newStatsView(st))
		},
	}
}
