// Package cli implements the nodus command line interface.
package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aleksaelezovic/nodus/pkg/graph"
)

// RootOptions holds global flags for all commands. Flag values
// override anything loaded from the config file.
type RootOptions struct {
	Path       string
	ConfigPath string
	LogLevel   string
	SyncWrites bool
}

// NewRootCommand creates the root command for the nodus CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "nodus",
		Short: "nodus - embedded graph database",
		Long:  "An embedded graph database storing facts as triples of interned terms.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.ConfigPath == "" {
				return nil
			}
			cfg, err := LoadConfig(opts.ConfigPath)
			if err != nil {
				return err
			}
			// Flags the user set explicitly win over the config file
			if !cmd.Flags().Changed("db") && cfg.Path != "" {
				opts.Path = cfg.Path
			}
			if !cmd.Flags().Changed("sync-writes") {
				opts.SyncWrites = cfg.SyncWrites
			}
			if !cmd.Flags().Changed("log-level") && cfg.LogLevel != "" {
				opts.LogLevel = cfg.LogLevel
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Path, "db", "./nodus_data", "database directory")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().BoolVar(&opts.SyncWrites, "sync-writes", false, "fsync every commit")

	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewResolveCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewExecCommand(opts))
	cmd.AddCommand(NewCountCommand(opts))

	return cmd
}

// openDatabase opens the database the global flags point at.
func openDatabase(opts *RootOptions) (*graph.Database, error) {
	level, err := logrus.ParseLevel(opts.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opts.LogLevel, err)
	}
	log := logrus.New()
	log.SetLevel(level)

	return graph.Open(graph.Options{
		Path:       opts.Path,
		SyncWrites: opts.SyncWrites,
		Logger:     log,
	})
}
