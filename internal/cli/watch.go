package cli

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/lorenzobigazzi0/app/internal/board"
	"github.com/lorenzobigazzi0/app/internal/engine"
	"github.com/lorenzobigazzi0/app/internal/order"
	"github.com/lorenzobigazzi0/app/internal/realtime"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Tick time.Duration

	// Dialer overrides the push channel dialer (for testing).
	// If nil, defaults to realtime.WebsocketDialer.
	Dialer realtime.Dialer
}

// BoardFrame is one rendering of the board in JSON output.
type BoardFrame struct {
	At     time.Time   `json:"at"`
	Online bool        `json:"online"`
	Rows   []board.Row `json:"rows"`
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the board in sync and print it",
		Long: `Run the sync engine and print the board whenever it changes and on
every tick, so timers keep moving. Calls and print results are printed as
they arrive.

Example:
  barsync watch --server http://localhost:8000 --token $TOKEN
  barsync watch --channel waiter --tick 5s --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Tick, "tick", time.Second, "re-render interval")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	if opts.Tick <= 0 {
		return NewExitError(ExitCommandError, "--tick must be positive")
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	out := &lockedWriter{w: cmd.OutOrStdout()}
	formatter := opts.formatter(cmd)
	formatter.Writer = out

	changed := make(chan struct{}, 1)
	poke := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	observer := engine.ObserverFuncs{
		OnOrdersChanged: poke,
		OnConnectivity:  func(bool) { poke() },
		OnCallCreated: func(c order.Call) {
			if opts.Format == "text" {
				fmt.Fprintln(out, describeCall(c))
			}
		},
		OnPrintJob: func(r order.PrintResult) {
			if opts.Format != "text" {
				return
			}
			if r.OK {
				fmt.Fprintf(out, "✓ Printed #%s\n", r.OrderID)
			} else {
				fmt.Fprintf(out, "✗ Print #%s failed: %s\n", r.OrderID, r.Error)
			}
		},
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = realtime.WebsocketDialer{}
	}
	sess, err := openSession(ctx, cfg, dialer, observer)
	if err != nil {
		return err
	}
	defer sess.close()

	errCh := make(chan error, 1)
	go func() { errCh <- sess.run(ctx) }()

	ticker := time.NewTicker(opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case err := <-errCh:
			if err != nil {
				return WrapExitError(ExitCommandError, "engine error", err)
			}
			return nil
		case <-ticker.C:
		case <-changed:
		}
		if err := renderFrame(formatter, sess.engine); err != nil {
			return err
		}
	}
}

func renderFrame(f *OutputFormatter, eng *engine.Engine) error {
	now := time.Now()
	frame := BoardFrame{
		At:     now.UTC(),
		Online: eng.Online(),
		Rows:   board.Build(eng.Board(now), now),
	}
	return f.Render(frame, func(w io.Writer) error {
		state := "offline"
		if frame.Online {
			state = "online"
		}
		// One Write per frame keeps observer lines out of the board.
		var b bytes.Buffer
		fmt.Fprintf(&b, "--- %s %s (%d)\n", now.Format("15:04:05"), state, len(frame.Rows))
		if err := board.RenderText(&b, frame.Rows); err != nil {
			return err
		}
		_, err := w.Write(b.Bytes())
		return err
	})
}

func describeCall(c order.Call) string {
	s := fmt.Sprintf("! CHIAMATA %d %s", c.ID, c.Type)
	if c.TableID != nil {
		s += fmt.Sprintf(" TAVOLO %d", *c.TableID)
	}
	if c.Message != nil && *c.Message != "" {
		s += ": " + *c.Message
	}
	return s
}

// lockedWriter serializes writes from the render loop and the engine
// observers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
