package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/roomstate/internal/config"
	"github.com/roach88/roomstate/internal/roomversion"
	"github.com/roach88/roomstate/internal/testutil"
)

// RootOptions holds global flags for all commands, merged over the
// environment configuration before any subcommand runs.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Rules   string // CUE file with extra room versions

	Config   config.Config
	Logger   *slog.Logger
	Registry *roomversion.Registry
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the roomstate CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "roomstate",
		Short: "roomstate - Matrix room state resolution",
		Long: `Resolve conflicting Matrix room states with state resolution v2.

Events and named state snapshots live in a SQLite store. Scenario files
describe room DAGs that are replayed and resolved at every fork.

Environment:
  ROOMSTATE_DB            default --db path
  ROOMSTATE_LOG_LEVEL     debug, info, warn or error
  ROOMSTATE_FORMAT        default --format
  ROOMSTATE_ROOM_VERSION  room version for scenarios that omit one
  ROOMSTATE_RULES         default --rules file`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Rules, "rules", "", "CUE file declaring extra room versions")

	// Add subcommands
	cmd.AddCommand(NewResolveCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewAuthChainCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewVersionsCommand(opts))

	return cmd
}

// load reads the environment, lets explicitly set flags win, and builds the
// logger and room version registry shared by the subcommands.
func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.Format = o.Format
	}
	if flags.Changed("rules") {
		cfg.Rules = o.Rules
	}
	if o.Verbose {
		cfg.LogLevel = "debug"
	}
	o.Format = cfg.Format
	o.Rules = cfg.Rules

	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}

	logger, err := cfg.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to configure logging", err)
	}
	registry, err := cfg.Registry()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load room version rules", err)
	}

	o.Config = cfg
	o.Logger = logger
	o.Registry = registry
	return nil
}

// logger returns the configured logger, or one that discards output when
// a subcommand runs without the root command.
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return testutil.DiscardLogger()
	}
	return o.Logger
}

func (o *RootOptions) registry() *roomversion.Registry {
	if o.Registry == nil {
		return roomversion.NewRegistry()
	}
	return o.Registry
}

// dbPath returns flag if set, otherwise the configured database.
func (o *RootOptions) dbPath(flag string) string {
	if flag != "" {
		return flag
	}
	if o.Config.DB != "" {
		return o.Config.DB
	}
	return "roomstate.db"
}

func (o *RootOptions) roomVersion(flag string) string {
	if flag != "" {
		return flag
	}
	if o.Config.RoomVersion != "" {
		return o.Config.RoomVersion
	}
	return "6"
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
