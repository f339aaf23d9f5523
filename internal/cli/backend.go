package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lorenzobigazzi0/app/internal/api"
	"github.com/lorenzobigazzi0/app/internal/config"
	"github.com/lorenzobigazzi0/app/internal/store"
)

// newAPIClient builds the REST client for cfg.
func newAPIClient(cfg config.Config) (*api.Client, error) {
	client, err := api.New(cfg.Server, cfg.Token)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid server", err)
	}
	return client, nil
}

// loadStore fetches one snapshot into a fresh store.
func loadStore(ctx context.Context, client *api.Client) (*store.Store, error) {
	orders, err := client.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	st := store.New()
	if _, err := st.ReplaceAll(orders); err != nil {
		return nil, err
	}
	return st, nil
}

// transportFailure reports a backend error and returns the matching exit
// error.
func transportFailure(f *OutputFormatter, message string, err error) error {
	details := map[string]any{"status_code": api.StatusCode(err)}
	_ = f.Error(CodeTransport, fmt.Sprintf("%s: %v", message, err), details)
	return WrapExitError(ExitCommandError, message, err)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM or when the
// command's own context ends.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
