package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lorenzobigazzi0/app/internal/order"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on orders.position
const currentSchemaVersion = 1

// Mirror persists the latest snapshot to a SQLite file.
type Mirror struct {
	db  *sql.DB
	now func() time.Time
}

// OpenMirror creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func OpenMirror(path string) (*Mirror, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Mirror{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (m *Mirror) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// Save replaces the stored snapshot with orders, keeping their order.
func (m *Mirror) Save(ctx context.Context, orders []order.Order) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM orders"); err != nil {
		return fmt.Errorf("clear orders: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO orders (public_id, position, fingerprint, payload)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, o := range orders {
		payload, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("marshal order %q: %w", o.ID, err)
		}
		fp, err := order.Fingerprint(o)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, o.ID, i, fp, string(payload)); err != nil {
			return fmt.Errorf("insert order %q: %w", o.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshot_meta (id, saved_at, count) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET saved_at = excluded.saved_at, count = excluded.count`,
		m.now().UTC().Format(time.RFC3339Nano), len(orders))
	if err != nil {
		return fmt.Errorf("update snapshot meta: %w", err)
	}

	return tx.Commit()
}

// Load returns the stored snapshot in saved order.
// An empty database yields an empty slice.
func (m *Mirror) Load(ctx context.Context) ([]order.Order, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT public_id, payload FROM orders
		ORDER BY position ASC, public_id ASC COLLATE BINARY`)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	out := []order.Order{}
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		var o order.Order
		if err := json.Unmarshal([]byte(payload), &o); err != nil {
			return nil, fmt.Errorf("decode order %q: %w", id, err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SavedAt returns when the snapshot was last written.
func (m *Mirror) SavedAt(ctx context.Context) (time.Time, bool, error) {
	var raw string
	err := m.db.QueryRowContext(ctx, "SELECT saved_at FROM snapshot_meta WHERE id = 1").Scan(&raw)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query snapshot meta: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse saved_at: %w", err)
	}
	return t, true, nil
}

// Follower writes the store to the mirror after changes. Changes made
// between Attach and Run are not lost.
type Follower struct {
	mirror *Mirror
	store  *Store
	signal chan struct{}
}

// Attach subscribes to s immediately. Call Run to start writing.
func (m *Mirror) Attach(s *Store) *Follower {
	f := &Follower{mirror: m, store: s, signal: make(chan struct{}, 1)}
	s.Subscribe(func(Change) {
		select {
		case f.signal <- struct{}{}:
		default:
		}
	})
	return f
}

// Run keeps the mirror in step with the store until ctx is done. Bursts of
// changes are coalesced into one write of the full list.
func (f *Follower) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.signal:
			if err := f.mirror.Save(ctx, f.store.All()); err != nil {
				slog.Warn("mirror save failed", "error", err)
			}
		}
	}
}

// Follow is Attach followed by Run.
func (m *Mirror) Follow(ctx context.Context, s *Store) error {
	return m.Attach(s).Run(ctx)
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_orders_position ON orders(position)`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (m *Mirror) verifyPragma(name, expected string) error {
	var value string
	if err := m.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
