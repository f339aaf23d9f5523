package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lorenzobigazzi0/app/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	ConfigFile string
	EnvFile    string
	Server     string
	Channel    string
	Token      string

	// Getenv overrides the environment lookup (for testing).
	Getenv func(string) string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the barsync CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "barsync",
		Short: "barsync - realtime order board for bar stations",
		Long: `Keeps a station's view of the open orders in step with the backend.

Orders are loaded with a full snapshot, then kept current by the push
channel. Status, priority and timers are derived locally from the items.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			setupLogging(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "dotenv file (default .env when present)")
	cmd.PersistentFlags().StringVar(&opts.Server, "server", "", "backend base URL")
	cmd.PersistentFlags().StringVar(&opts.Channel, "channel", "", "push channel (bar|waiter|admin|cassa)")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", "", "bearer token")

	// Add subcommands
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewOrdersCommand(opts))
	cmd.AddCommand(NewDoneCommand(opts))
	cmd.AddCommand(NewReadyCommand(opts))
	cmd.AddCommand(NewPrintCommand(opts))
	cmd.AddCommand(NewCallCommand(opts))
	cmd.AddCommand(NewAckCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
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

func setupLogging(w io.Writer, verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// loadConfig merges file, dotenv and environment, then applies the global
// flags on top and validates the result.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		File:    o.ConfigFile,
		EnvFile: o.EnvFile,
		Getenv:  o.Getenv,
	})
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	if o.Server != "" {
		cfg.Server = o.Server
	}
	if o.Channel != "" {
		cfg.Channel = o.Channel
	}
	if o.Token != "" {
		cfg.Token = o.Token
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
