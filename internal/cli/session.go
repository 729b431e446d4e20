package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nostrstore/nostrstore/internal/config"
	"github.com/nostrstore/nostrstore/internal/engine"
	"github.com/nostrstore/nostrstore/internal/feed"
)

// session is an open store plus the process config and logger, shared by
// every command that touches the database.
type session struct {
	cfg    *config.Config
	logger *zap.Logger
	engine *engine.Engine
	out    *OutputFormatter
}

func openSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	if opts.Database == "" {
		return nil, NewExitError(ExitCommandError, "required flag \"db\" not set")
	}

	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}

	logger, err := cfg.Logging.NewLogger(opts.Verbose)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build logger", err)
	}

	logger.Debug("opening store", zap.String("path", opts.Database))
	eng, err := engine.Open(opts.Database, cfg.Engine, engine.WithLogger(logger))
	if err != nil {
		_ = logger.Sync()
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}

	return &session{
		cfg:    cfg,
		logger: logger,
		engine: eng,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
	}, nil
}

// Close closes the engine and flushes the logger.
func (s *session) Close() error {
	err := s.engine.Close()
	if err != nil {
		s.logger.Error("error closing store", zap.Error(err))
	}
	// Sync fails harmlessly on terminals and pipes.
	_ = s.logger.Sync()
	return err
}

// closeSession closes s, keeping the command's own error if it has one.
func closeSession(s *session, err *error) {
	if cerr := s.Close(); cerr != nil && *err == nil {
		*err = WrapExitError(ExitFailure, "failed to close store", cerr)
	}
}

// lookupError maps a point-lookup failure to an exit error.
func lookupError(what string, err error) error {
	if errors.Is(err, engine.ErrNotFound) {
		return WrapExitError(ExitFailure, what+" not found", err)
	}
	return WrapExitError(ExitFailure, "failed to read "+what, err)
}

func (s *session) feedOptions() feed.Options {
	return feed.Options{
		MaxLineBytes:   s.cfg.Feed.MaxLineBytes,
		FromStart:      s.cfg.Feed.FromStart,
		RescanInterval: s.cfg.Feed.RescanInterval,
		Logger:         s.logger,
	}
}
