package main

import (
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rpattn/tradeboard/internal/config"
	"github.com/rpattn/tradeboard/internal/logging"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configDir string
	logLevel  string
	cfg       config.Config
	logCloser io.Closer
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "tradeboard",
		Short:         "Filter, view and export buyer/seller trade sheets",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configDir)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}
			opts.cfg = cfg
			opts.logCloser = logging.Init(logging.Options{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				File:   cfg.Log.File,
			})
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logCloser != nil {
				if err := opts.logCloser.Close(); err != nil {
					log.Warn().Err(err).Msg("closing log file")
				}
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.configDir, "config", ".", "directory holding config.yaml")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(newServeCommand(opts), newFilterCommand(opts))
	return root
}
