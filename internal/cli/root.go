// Package cli implements the quadkv command line tool.
package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/aleksaelezovic/quadkv/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "text" | "json"

	// Backend and Path override the config file when set.
	Backend string
	Path    string

	config *config.Config
	logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the quadkv CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "quadkv",
		Short: "quadkv - RDF quad store over an ordered key-value backend",
		Long: `quadkv stores RDF quads in every configured index permutation of a
Badger or SQLite key-value store, and answers pattern, range and
multi-pattern join queries against them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "storage backend (badger|memory|sqlite), overrides config")
	cmd.PersistentFlags().StringVar(&opts.Path, "path", "", "data directory or database file, overrides config")

	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewCountCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewSearchCommand(opts))

	return cmd
}

// load reads the config, applies flag overrides and sets up logging
func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Backend != "" {
		cfg.Backend = o.Backend
	}
	if o.Path != "" {
		cfg.Path = o.Path
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	level, _ := cfg.Level()
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.config = cfg
	o.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}
