package commands

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/txnimport/internal/buildinfo"
	"github.com/cleared-dev/txnimport/internal/config"
	"github.com/cleared-dev/txnimport/internal/logger"
)

// globals carries state shared by every subcommand.
type globals struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg *config.Config
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:     "txnimport",
		Short:   "Import bank and accounting exports into normalized transactions",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&g.configPath, "config", config.FileName, "config file")
	flags.StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&g.logFormat, "log-format", "", "log format (console, json)")

	rootCmd.AddCommand(
		newInitCommand(),
		newFormatsCommand(g),
		newParseCommand(g),
		newMatchCommand(g),
		newVersionCommand(),
	)

	return rootCmd
}

// setup loads the config and builds the logger. A missing config file is
// only an error when --config was given explicitly.
func (g *globals) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(g.configPath)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config"):
		cfg = config.Default()
	default:
		return err
	}

	level := cfg.Log.Level
	if g.logLevel != "" {
		level = g.logLevel
	}
	format := cfg.Log.Format
	if g.logFormat != "" {
		format = g.logFormat
	}
	switch logger.Format(format) {
	case logger.FormatConsole, logger.FormatJSON:
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	g.cfg = cfg
	log := logger.New(cmd.ErrOrStderr(), logger.Format(format), level)
	cmd.SetContext(logger.WithContext(cmd.Context(), log))
	return nil
}

// output opens path for writing, or returns stdout when path is empty.
func output(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return f, f.Close, nil
}
