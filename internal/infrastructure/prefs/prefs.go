package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Store configuration constants.
const (
	// dirPermissions is the permission mode for the store directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the store file.
	// Credentials are stored here, so owner-only access.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connectionTimeout is the timeout for verifying store connectivity.
	connectionTimeout = 5 * time.Second
)

// schema is the single-table layout of the preferences store.
const schema = `
CREATE TABLE IF NOT EXISTS prefs (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// Store is a synchronous persistent key-value store backed by SQLite.
//
// It is the Grindlink equivalent of the controller's NVS preferences:
// WiFi credentials, MQTT broker configuration, and the per-link enabled
// flags live here under fixed key names (wifi_ssid, wifi_password,
// mqtt_broker, mqtt_port, ... plus *_enabled).
//
// All reads and writes complete before the call returns; missing keys
// yield the caller-supplied default. Reads and writes are safe for
// concurrent use (database/sql serialises access).
type Store struct {
	db   *sql.DB
	path string
}

// Config contains preferences store options.
type Config struct {
	// Path is the filesystem path to the SQLite file.
	// The directory will be created if it doesn't exist.
	Path string

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int
}

// Open creates or opens the preferences store.
//
// It performs the following setup:
//  1. Creates the store directory if it doesn't exist
//  2. Opens the SQLite file (creates if not present)
//  3. Creates the prefs table if missing
//  4. Sets owner-only file permissions
//  5. Verifies the connection with a ping
func Open(cfg Config) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
	)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening preferences store: %w", err)
	}

	// SQLite only supports one writer; keep a single connection ready.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying preferences store: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("creating prefs table: %w", err)
	}

	// Ignore error - file might not exist yet on first run.
	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // Intentional: first run creates file later

	return &Store{db: db, path: cfg.Path}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the store file.
func (s *Store) Path() string {
	return s.path
}

// GetString returns the value for key, or def if the key is absent.
func (s *Store) GetString(key, def string) string {
	var value string
	err := s.db.QueryRow(`SELECT value FROM prefs WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return def
	}
	return value
}

// PutString stores value under key, replacing any existing value.
func (s *Store) PutString(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO prefs (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("storing preference %q: %w", key, err)
	}
	return nil
}

// GetBool returns the boolean value for key, or def if absent or unparsable.
func (s *Store) GetBool(key string, def bool) bool {
	raw := s.GetString(key, "")
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}

// PutBool stores a boolean value under key.
func (s *Store) PutBool(key string, value bool) error {
	return s.PutString(key, strconv.FormatBool(value))
}

// GetUint16 returns the numeric value for key, or def if absent or unparsable.
func (s *Store) GetUint16(key string, def uint16) uint16 {
	raw := s.GetString(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return def
	}
	return uint16(n)
}

// PutUint16 stores a numeric value under key.
func (s *Store) PutUint16(key string, value uint16) error {
	return s.PutString(key, strconv.FormatUint(uint64(value), 10))
}

// Remove deletes key from the store. Removing an absent key is not an error.
func (s *Store) Remove(key string) error {
	_, err := s.db.Exec(`DELETE FROM prefs WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("removing preference %q: %w", key, err)
	}
	return nil
}

// Clear deletes every key in the store. Used by the gateway "reset" command.
func (s *Store) Clear() error {
	_, err := s.db.Exec(`DELETE FROM prefs`)
	if err != nil {
		return fmt.Errorf("clearing preferences: %w", err)
	}
	return nil
}

// Has reports whether key exists in the store.
func (s *Store) Has(key string) bool {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM prefs WHERE key = ?`, key).Scan(&one)
	return !errors.Is(err, sql.ErrNoRows) && err == nil
}
