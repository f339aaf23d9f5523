package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/lorenzobigazzi0/app/internal/httpapi"
	"github.com/lorenzobigazzi0/app/internal/realtime"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen       string
	AllowOrigins []string

	// Dialer overrides the push channel dialer (for testing).
	Dialer realtime.Dialer
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync engine behind the board HTTP API",
		Long: `Run the sync engine and expose the board over HTTP:

  GET /healthz       connectivity and engine counters
  GET /board         rows in board order (?status=new|prep|done)
  GET /orders/:id    one order and its row

Example:
  barsync serve --listen :8090
  barsync serve --allow-origin http://bar.local --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")
	cmd.Flags().StringSliceVar(&opts.AllowOrigins, "allow-origin", nil, "CORS origin (repeatable, any when empty)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	dialer := opts.Dialer
	if dialer == nil {
		dialer = realtime.WebsocketDialer{}
	}
	sess, err := openSession(ctx, cfg, dialer)
	if err != nil {
		return err
	}
	defer sess.close()

	router := httpapi.NewRouter(sess.engine, httpapi.Config{
		AllowOrigins: opts.AllowOrigins,
		Now:          time.Now,
	})

	engineErr := make(chan error, 1)
	go func() { engineErr <- sess.run(ctx) }()

	serveErr := httpapi.Serve(ctx, cfg.Listen, router)
	// Either the context ended or the listener failed; stop the engine too.
	cancel()
	if err := <-engineErr; err != nil {
		return WrapExitError(ExitCommandError, "engine error", err)
	}
	if serveErr != nil {
		return WrapExitError(ExitCommandError, "http server error", serveErr)
	}
	return nil
}
