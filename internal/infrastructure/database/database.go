package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/nerrad567/hsm-core/internal/infrastructure/config"
)

const (
	// dirPermissions is the permission mode for the journal directory.
	dirPermissions = 0750

	// filePermissions keeps the journal readable by its owner only; it
	// records every path the operator archived.
	filePermissions = 0600

	// pingTimeout bounds the connectivity check in Open.
	pingTimeout = 5 * time.Second

	// connMaxIdleTime is how long an idle connection is kept open. A long
	// archive-dir run records an event per file, so keep it warm.
	connMaxIdleTime = 30 * time.Minute
)

// DB is the journal database. It embeds *sql.DB, so queries go straight
// to the pool; Open, Migrate and the health check are added on top.
type DB struct {
	*sql.DB
	path string
}

// dsn builds the go-sqlite3 connection string for cfg.
// See: https://github.com/mattn/go-sqlite3#connection-string
func dsn(cfg config.JournalConfig) string {
	params := url.Values{}
	params.Set("_busy_timeout", strconv.Itoa(cfg.BusyTimeout*int(time.Second/time.Millisecond)))
	params.Set("_foreign_keys", "on")

	// Take the write lock up front so two hsmctl runs sharing a journal
	// wait on busy_timeout instead of failing mid-transaction
	params.Set("_txlock", "immediate")

	if cfg.WALMode {
		// Readers (journal list) don't block a running archive job
		params.Set("_journal_mode", "WAL")
		params.Set("_synchronous", "NORMAL")
	}
	return "file:" + cfg.Path + "?" + params.Encode()
}

// Open opens the journal database at cfg.Path, creating the file and its
// directory when missing, and pings it before returning.
func Open(ctx context.Context, cfg config.JournalConfig) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("opening journal: empty path")
	}

	// Create the directory; SQLite creates the file itself
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", cfg.Path, err)
	}

	// SQLite has one writer; a single connection serialises journal writes
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	db := &DB{DB: sqlDB, path: cfg.Path}

	// Verify the connection before handing it out
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying journal %s: %w", cfg.Path, err)
	}

	// Tighten the mode once the file exists; without WAL it may not yet
	if err := os.Chmod(cfg.Path, filePermissions); err != nil && !errors.Is(err, fs.ErrNotExist) {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("restricting journal permissions: %w", err)
	}

	return db, nil
}

// Path returns the journal file path.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck runs a trivial query against the journal.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("journal health check: %w", err)
	}
	return nil
}

// Close closes the pool. Closing a DB whose pool is nil is a no-op.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing journal: %w", err)
	}
	return nil
}
