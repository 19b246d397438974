// Package localstate is the client's small persistent memory: a sqlite
// key/value table holding the per-user last-active plan pointer used for
// auto-resume and the sealed credential blob used for offline re-login.
//
// The store is strictly optional. When the database cannot be opened or
// migrated the constructor returns a disabled gateway whose reads miss and
// whose writes are no-ops, so a missing or broken local store never takes
// the planner down.
package localstate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/kzxian1201/medical-tourism-planning-system/internal/localstate/migrations"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/logging"
)

const (
	lastActivePrefix = "last_active:"
	credentialPrefix = "cred:"
)

// Gateway is the sqlite-backed key/value store. The zero-value-like
// disabled form (nil db) is a valid gateway that remembers nothing.
type Gateway struct {
	db  *sql.DB
	log logging.Logger
}

// New opens (or creates) the local state database at dsn and runs the
// embedded migrations. On any failure a disabled gateway is returned and
// the cause is logged; New never fails.
func New(ctx context.Context, dsn string, log logging.Logger) *Gateway {
	if log == nil {
		log = logging.Discard()
	}
	if dsn == "" {
		log.Warn(ctx, "local state disabled, no database path configured")
		return &Gateway{log: log}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Warn(ctx, "local state disabled, cannot open database", "dsn", dsn, "error", err)
		return &Gateway{log: log}
	}
	if err := runMigrations(ctx, db); err != nil {
		log.Warn(ctx, "local state disabled, migration failed", "dsn", dsn, "error", err)
		_ = db.Close()
		return &Gateway{log: log}
	}

	return &Gateway{db: db, log: log}
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// Enabled reports whether the gateway has a working database behind it.
func (g *Gateway) Enabled() bool { return g.db != nil }

// Get returns the value stored under key, or nil when the key is absent or
// the store is disabled.
func (g *Gateway) Get(ctx context.Context, key string) ([]byte, error) {
	if g.db == nil {
		return nil, nil
	}
	var value []byte
	err := g.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading local state[%s]: %w", key, err)
	}
	return value, nil
}

// Set stores value under key, replacing any previous value. A disabled
// store accepts and forgets the write.
func (g *Gateway) Set(ctx context.Context, key string, value []byte) error {
	if g.db == nil {
		return nil
	}
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("writing local state[%s]: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (g *Gateway) Delete(ctx context.Context, key string) error {
	if g.db == nil {
		return nil
	}
	if _, err := g.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting local state[%s]: %w", key, err)
	}
	return nil
}

// Clear drops every stored key.
func (g *Gateway) Clear(ctx context.Context) error {
	if g.db == nil {
		return nil
	}
	if _, err := g.db.ExecContext(ctx, `DELETE FROM kv`); err != nil {
		return fmt.Errorf("clearing local state: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (g *Gateway) Close() error {
	if g.db == nil {
		return nil
	}
	return g.db.Close()
}

// LastActive returns the user's last-active plan id, or "" when none is
// recorded. Implements the session engine's pointer port.
func (g *Gateway) LastActive(ctx context.Context, userID string) (string, error) {
	v, err := g.Get(ctx, lastActivePrefix+userID)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// SetLastActive records sessionID as the user's last-active plan.
func (g *Gateway) SetLastActive(ctx context.Context, userID, sessionID string) error {
	return g.Set(ctx, lastActivePrefix+userID, []byte(sessionID))
}

// ClearLastActive forgets the user's last-active plan pointer.
func (g *Gateway) ClearLastActive(ctx context.Context, userID string) error {
	return g.Delete(ctx, lastActivePrefix+userID)
}

// Credential returns the sealed credential blob cached for email, or nil.
func (g *Gateway) Credential(ctx context.Context, email string) ([]byte, error) {
	return g.Get(ctx, credentialPrefix+email)
}

// SetCredential caches a sealed credential blob for email.
func (g *Gateway) SetCredential(ctx context.Context, email string, sealed []byte) error {
	return g.Set(ctx, credentialPrefix+email, sealed)
}

// DeleteCredential drops the cached credential blob for email.
func (g *Gateway) DeleteCredential(ctx context.Context, email string) error {
	return g.Delete(ctx, credentialPrefix+email)
}
