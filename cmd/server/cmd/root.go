package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/subjectboard/server/internal/config"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCommand builds the command tree. Each call returns fresh commands
// with their own flag state.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}
	serve := newServeCommand(flags)

	root := &cobra.Command{
		Use:   "server",
		Short: "subjectboard server - content board backend",
		Long: `subjectboard server stores nested groups of links, text blocks and
deadlines, records an audit trail of every change and streams updates to
connected viewers over server-sent events.`,
		SilenceUsage: true,
		// Run the serve command by default if no subcommand is specified
		RunE: serve.RunE,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file path (optional, env vars override file values)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log format (json, console) (default: json)")

	root.AddCommand(serve)
	root.AddCommand(newMigrateCommand(flags))
	root.AddCommand(newVersionCommand())
	root.AddCommand(newHealthcheckCommand())
	return root
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the optional file and the environment, then applies the
// logging flags on top.
func (f *globalFlags) loadConfig() (config.Config, error) {
	cfg, err := config.LoadFile(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Logging.Format = f.logFormat
	}
	return cfg, nil
}
