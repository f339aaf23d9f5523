package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lorenzobigazzi0/app/internal/board"
	"github.com/lorenzobigazzi0/app/internal/order"
)

// OrdersOptions holds flags for the orders command.
type OrdersOptions struct {
	*RootOptions
	Status string
}

// NewOrdersCommand creates the orders command.
func NewOrdersCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OrdersOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Print the current board once",
		Long: `Fetch one snapshot and print the orders in board order.

Example:
  barsync orders --server http://localhost:8000 --token $TOKEN
  barsync orders --status READY --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrders(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "only orders with this backend status (OPEN|READY|PRINTED|CLOSED)")

	return cmd
}

func runOrders(opts *OrdersOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	status, err := parseServerStatus(opts.Status)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --status", err)
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	client, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	var orders []order.Order
	if status == "" {
		orders, err = client.FetchAll(cmd.Context())
	} else {
		orders, err = client.FetchByStatus(cmd.Context(), status)
	}
	if err != nil {
		return transportFailure(formatter, "failed to fetch orders", err)
	}

	rows := board.Build(orders, time.Now())
	formatter.VerboseLog("Fetched %d order(s) from %s", len(orders), cfg.Server)

	return formatter.Render(rows, func(w io.Writer) error {
		return board.RenderText(w, rows)
	})
}

func parseServerStatus(s string) (order.ServerStatus, error) {
	if s == "" {
		return "", nil
	}
	st := order.ServerStatus(strings.ToUpper(s))
	switch st {
	case order.ServerOpen, order.ServerReady, order.ServerPrinted, order.ServerClosed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}
