package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/lorenzobigazzi0/app/internal/config"
)

// ConfigView is the JSON form of the config command.
type ConfigView struct {
	Config     config.Config      `json:"config"`
	Credential *config.Credential `json:"credential,omitempty"`
}

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Merge defaults, the config file, the dotenv file, BARSYNC_* variables
and flags, validate the result and print it as YAML. The token is masked.

Example:
  barsync config --config barsync.yaml
  barsync config --channel waiter --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(rootOpts, cmd)
		},
	}
	return cmd
}

func runConfig(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		if config.IsValidationError(err) {
			_ = opts.formatter(cmd).Error(CodeConfig, err.Error(), nil)
		}
		return err
	}

	view := ConfigView{Config: cfg}
	if cfg.Token != "" {
		if cred, err := config.InspectCredential(cfg.Token); err == nil {
			view.Credential = &cred
		}
		view.Config.Token = maskToken(cfg.Token)
	}

	return opts.formatter(cmd).Render(view, func(w io.Writer) error {
		if err := view.Config.Write(w); err != nil {
			return err
		}
		if c := view.Credential; c != nil {
			fmt.Fprintf(w, "# token subject=%s role=%s", c.Subject, c.Role)
			if c.ExpiresAt != nil {
				fmt.Fprintf(w, " expires_at=%s", c.ExpiresAt.Format(time.RFC3339))
			}
			fmt.Fprintln(w)
		}
		return nil
	})
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****"
}
