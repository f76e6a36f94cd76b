package knxip

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLite connection tuning constants, mirrored from the infrastructure
// database package this is adapted from.
const (
	sqliteCacheDirPerm  = 0750
	sqliteBusyTimeoutMS = 5000
	sqliteConnTimeout   = 5 * time.Second
)

// SQLiteCache is an optional persistent Cache backed by a SQLite database,
// for deployments that want the last-known value of every group address to
// survive a process restart. Most programs are well served by MemCache;
// SQLiteCache exists for long-lived installations where a cold cache after
// every restart means every sensor reads as unknown until its next bus
// update.
type SQLiteCache struct {
	db *sql.DB
}

// OpenSQLiteCache opens (creating if necessary) a SQLite-backed cache at
// path, in WAL mode with a busy timeout, and ensures its schema exists.
func OpenSQLiteCache(path string) (*SQLiteCache, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, sqliteCacheDirPerm); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL",
		path, sqliteBusyTimeoutMS)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), sqliteConnTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verifying cache database connection: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS group_cache (
	address INTEGER PRIMARY KEY,
	value   BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}

	return &SQLiteCache{db: db}, nil
}

// Get implements Cache.
func (c *SQLiteCache) Get(addr GroupAddress) ([]byte, bool) {
	var data []byte
	err := c.db.QueryRow(`SELECT value FROM group_cache WHERE address = ?`, uint16(addr)).Scan(&data)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set implements Cache.
func (c *SQLiteCache) Set(addr GroupAddress, data []byte) {
	_, _ = c.db.Exec(
		`INSERT INTO group_cache (address, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(address) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		uint16(addr), data, time.Now().Unix(),
	)
}

// Clear implements Cache.
func (c *SQLiteCache) Clear() {
	_, _ = c.db.Exec(`DELETE FROM group_cache`)
}

// Close releases the underlying database connection.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
