package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lorenzobigazzi0/app/internal/api"
	"github.com/lorenzobigazzi0/app/internal/board"
	"github.com/lorenzobigazzi0/app/internal/mutation"
	"github.com/lorenzobigazzi0/app/internal/order"
)

// DoneOptions holds flags for the done command.
type DoneOptions struct {
	*RootOptions
	Undo bool
}

// NewDoneCommand creates the done command.
func NewDoneCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DoneOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "done <order> <item>",
		Short: "Mark one item done (or not done with --undo)",
		Long: `Set the done flag of one item and print the order as confirmed by
the backend. A rejected change exits with code 1.

Example:
  barsync done A1 12
  barsync done A1 12 --undo`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid item id", err)
			}
			return runDone(opts, args[0], itemID, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Undo, "undo", false, "clear the done flag instead")

	return cmd
}

func runDone(opts *DoneOptions, orderID string, itemID int64, cmd *cobra.Command) error {
	return withMutations(opts.RootOptions, cmd, func(m *mutation.Client) (order.Order, error) {
		return m.SetItemDone(cmd.Context(), orderID, itemID, !opts.Undo)
	})
}

// NewReadyCommand creates the ready command.
func NewReadyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ready <order>",
		Short: "Mark every item of an order done",
		Long: `Mark the remaining items of an order done, one request per item.
Stops at the first rejection; items confirmed before it stay done.

Example:
  barsync ready A1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMutations(rootOpts, cmd, func(m *mutation.Client) (order.Order, error) {
				return m.MarkAllDone(cmd.Context(), args[0])
			})
		},
	}
	return cmd
}

// withMutations loads a snapshot, runs fn with a mutation client over it
// and prints the resulting order.
func withMutations(opts *RootOptions, cmd *cobra.Command, fn func(*mutation.Client) (order.Order, error)) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	client, err := newAPIClient(cfg)
	if err != nil {
		return err
	}
	st, err := loadStore(cmd.Context(), client)
	if err != nil {
		return transportFailure(formatter, "failed to fetch orders", err)
	}

	o, err := fn(mutation.New(client, st))
	if err != nil {
		var mr *mutation.MutationRejected
		if errors.As(err, &mr) {
			_ = formatter.Error(CodeRejected, err.Error(), map[string]any{
				"order_id": mr.OrderID,
				"item_id":  mr.ItemID,
				"done":     mr.Done,
			})
			return WrapExitError(ExitFailure, "mutation rejected", err)
		}
		return transportFailure(formatter, "mutation failed", err)
	}

	return formatter.Render(o, func(w io.Writer) error {
		fmt.Fprintf(w, "#%s %s (%d/%d)\n", o.ID, order.Derive(o).Label(), order.DoneCount(o), len(o.Items))
		return nil
	})
}

// PrintOptions holds flags for the print command.
type PrintOptions struct {
	*RootOptions
	Printer string
	Preview bool
}

// NewPrintCommand creates the print command.
func NewPrintCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PrintOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "print <order>",
		Short: "Ask the backend to print an order",
		Long: `Send a print request. A printer failure is reported by the backend
in the result and exits with code 1.

Example:
  barsync print A1
  barsync print A1 --printer bancone --preview`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrint(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Printer, "printer", "", "printer name (backend default when empty)")
	cmd.Flags().BoolVar(&opts.Preview, "preview", false, "also write the ticket to stdout")

	return cmd
}

func runPrint(opts *PrintOptions, orderID string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	client, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	if opts.Preview && opts.Format == "text" {
		st, err := loadStore(cmd.Context(), client)
		if err != nil {
			return transportFailure(formatter, "failed to fetch orders", err)
		}
		if o, ok := st.Get(orderID); ok {
			if err := board.RenderTicket(formatter.Writer, cfg.Station, o); err != nil {
				return err
			}
			fmt.Fprintln(formatter.Writer)
		}
	}

	res, err := client.PrintOrder(cmd.Context(), orderID, opts.Printer)
	if err != nil {
		return transportFailure(formatter, "print request failed", err)
	}
	if !res.OK {
		_ = formatter.Error(CodePrint, fmt.Sprintf("print #%s failed: %s", orderID, res.Error), res)
		return NewExitError(ExitFailure, "print failed")
	}

	return formatter.Render(res, func(w io.Writer) error {
		fmt.Fprintf(w, "✓ Printed #%s\n", orderID)
		return nil
	})
}

// CallOptions holds flags for the call command.
type CallOptions struct {
	*RootOptions
	Type    string
	Table   int
	Message string
}

// NewCallCommand creates the call command.
func NewCallCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "call [order]",
		Short: "Call a waiter or the barman",
		Long: `Raise a call. The backend broadcasts it to the stations.

Example:
  barsync call A1 --message "ghiaccio"
  barsync call --type barman --table 4`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID := ""
			if len(args) == 1 {
				orderID = args[0]
			}
			return runCall(opts, orderID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "waiter", "who to call (waiter|barman)")
	cmd.Flags().IntVar(&opts.Table, "table", 0, "table number")
	cmd.Flags().StringVar(&opts.Message, "message", "", "free text for the recipient")

	return cmd
}

func runCall(opts *CallOptions, orderID string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	callType, err := parseCallType(opts.Type)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --type", err)
	}
	if orderID == "" && opts.Table <= 0 {
		return NewExitError(ExitCommandError, "an order or --table is required")
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	client, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	call, err := client.CreateCall(cmd.Context(), api.CallRequest{
		Type:        callType,
		OrderID:     orderID,
		TableNumber: opts.Table,
		Message:     opts.Message,
	})
	if err != nil {
		return transportFailure(formatter, "call failed", err)
	}

	return formatter.Render(call, func(w io.Writer) error {
		fmt.Fprintf(w, "✓ Call %d created (%s)\n", call.ID, call.Type)
		return nil
	})
}

func parseCallType(s string) (order.CallType, error) {
	switch strings.ToLower(s) {
	case "waiter", strings.ToLower(string(order.CallWaiter)):
		return order.CallWaiter, nil
	case "barman", strings.ToLower(string(order.CallBarman)):
		return order.CallBarman, nil
	default:
		return "", fmt.Errorf("unknown call type %q", s)
	}
}

// NewAckCommand creates the ack command.
func NewAckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ack <call-id>",
		Short: "Acknowledge a call",
		Long: `Acknowledge a call so the other stations stop showing it.

Example:
  barsync ack 7`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			callID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid call id", err)
			}
			return runAck(rootOpts, callID, cmd)
		},
	}
	return cmd
}

func runAck(opts *RootOptions, callID int64, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	client, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	if err := client.AckCall(cmd.Context(), callID); err != nil {
		return transportFailure(formatter, "ack failed", err)
	}

	return formatter.Render(map[string]any{"call_id": callID, "acked": true}, func(w io.Writer) error {
		fmt.Fprintf(w, "✓ Call %d acknowledged\n", callID)
		return nil
	})
}
