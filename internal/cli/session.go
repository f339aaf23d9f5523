package cli

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lorenzobigazzi0/app/internal/api"
	"github.com/lorenzobigazzi0/app/internal/clock"
	"github.com/lorenzobigazzi0/app/internal/config"
	"github.com/lorenzobigazzi0/app/internal/engine"
	"github.com/lorenzobigazzi0/app/internal/fanout"
	"github.com/lorenzobigazzi0/app/internal/realtime"
	"github.com/lorenzobigazzi0/app/internal/store"
)

// session is one running sync engine with its optional mirror and fan-out.
type session struct {
	cfg       config.Config
	engine    *engine.Engine
	mirror    *store.Mirror
	publisher *fanout.Publisher
}

// openSession wires the engine for cfg. The mirror, when configured, seeds
// the store before the first snapshot so the board is not empty while the
// backend is unreachable.
func openSession(ctx context.Context, cfg config.Config, dialer realtime.Dialer, observers ...engine.Observer) (*session, error) {
	client, err := newAPIClient(cfg)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg}
	st := store.New()

	if cfg.Mirror != "" {
		s.mirror, err = store.OpenMirror(cfg.Mirror)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open mirror", err)
		}
		if err := s.seed(ctx, st); err != nil {
			slog.Warn("mirror seed skipped", "path", cfg.Mirror, "error", err)
		}
	}

	if cfg.Kafka.Enabled() {
		s.publisher, err = fanout.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			s.close()
			return nil, WrapExitError(ExitCommandError, "failed to start status fan-out", err)
		}
		s.publisher.Attach(st)
		slog.Info("status fan-out enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	opts := []engine.Option{engine.WithRemote(client)}
	for _, o := range observers {
		opts = append(opts, engine.WithObserver(o))
	}
	s.engine = engine.New(engineConfig(cfg), st, client, dialer, clock.Wall{}, opts...)
	return s, nil
}

func engineConfig(cfg config.Config) engine.Config {
	return engine.Config{
		BaseURL:         cfg.Server,
		Channel:         realtime.Channel(cfg.Channel),
		Token:           cfg.Token,
		RefreshInterval: cfg.RefreshInterval,
		Realtime: []realtime.Option{
			realtime.WithPingInterval(cfg.PingInterval),
			realtime.WithReconnectDelay(cfg.ReconnectDelay),
		},
	}
}

func (s *session) seed(ctx context.Context, st *store.Store) error {
	orders, err := s.mirror.Load(ctx)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		return nil
	}
	if _, err := st.ReplaceAll(orders); err != nil {
		return err
	}
	savedAt, _, err := s.mirror.SavedAt(ctx)
	if err != nil {
		return err
	}
	slog.Info("board seeded from mirror", "orders", len(orders), "saved_at", savedAt)
	return nil
}

// run blocks until ctx is done. A cancelled context is a clean stop.
func (s *session) run(ctx context.Context) error {
	config.LogCredential(s.cfg.Token, time.Now())

	if s.mirror != nil {
		// Subscribe before the engine runs so its first snapshot is saved.
		follower := s.mirror.Attach(s.engine.Store())
		followCtx, stopFollow := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := follower.Run(followCtx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("mirror stopped", "error", err)
			}
		}()
		// The mirror must be idle before close.
		defer func() {
			stopFollow()
			<-done
		}()
	}

	err := s.engine.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (s *session) close() {
	if s.publisher != nil {
		slog.Info("status fan-out closing", "published", s.publisher.Published(), "failed", s.publisher.Failed())
		if err := s.publisher.Close(); err != nil {
			slog.Error("error closing producer", "error", err)
		}
	}
	if s.mirror != nil {
		if err := s.mirror.Close(); err != nil {
			slog.Error("error closing mirror", "error", err)
		}
	}
}

var _ engine.Loader = (*api.Client)(nil)
