// Package httpapi serves the derived board to other displays over HTTP.
// It is read-only: every write still goes to the backend.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/lorenzobigazzi0/app/internal/board"
	"github.com/lorenzobigazzi0/app/internal/engine"
	"github.com/lorenzobigazzi0/app/internal/order"
)

// Source is the part of the engine the API reads.
type Source interface {
	Board(now time.Time) []order.Order
	Online() bool
	Stats() engine.Stats
}

// Config tunes the router.
type Config struct {
	// AllowOrigins lists origins allowed by CORS. Empty allows any origin.
	AllowOrigins []string
	// Now is the clock used for elapsed times. Defaults to time.Now.
	Now func() time.Time
}

// NewRouter builds the gin engine with the board routes.
func NewRouter(src Source, cfg Config) *gin.Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLog)

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowOrigins
	}
	router.Use(cors.New(corsCfg))

	h := &handlers{src: src, now: cfg.Now}
	router.GET("/healthz", h.health)
	router.GET("/board", h.board)
	router.GET("/orders/:id", h.order)
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "not found"})
	})
	return router
}

type handlers struct {
	src Source
	now func() time.Time
}

func (h *handlers) health(c *gin.Context) {
	stats := h.src.Stats()
	c.JSON(http.StatusOK, gin.H{
		"online":            h.src.Online(),
		"orders":            stats.Orders,
		"snapshots":         stats.Snapshots,
		"snapshot_failures": stats.SnapshotFailures,
		"last_snapshot":     stats.LastSnapshot,
		"frames":            stats.Frames,
	})
}

func (h *handlers) board(c *gin.Context) {
	now := h.now()
	rows := board.Build(h.src.Board(now), now)
	if status := order.Status(c.Query("status")); status != "" {
		filtered := rows[:0]
		for _, r := range rows {
			if r.Status == status {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}
	c.JSON(http.StatusOK, gin.H{"online": h.src.Online(), "rows": rows})
}

func (h *handlers) order(c *gin.Context) {
	id := c.Param("id")
	now := h.now()
	for _, o := range h.src.Board(now) {
		if o.ID != id {
			continue
		}
		rows := board.Build([]order.Order{o}, now)
		c.JSON(http.StatusOK, gin.H{"order": o, "row": rows[0]})
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"detail": "order not found"})
}

func requestLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	slog.Debug("http request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start),
	)
}

// Serve runs the router on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("board api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
