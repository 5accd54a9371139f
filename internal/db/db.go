package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	storeDir = ".rxsync"
	dbFile   = ".rxsync/pharmacy.db"
)

// Sentinel errors returned by record and outbox operations.
var (
	ErrNotFound      = errors.New("record not found")
	ErrUnknownEntity = errors.New("unknown entity")
)

// DB wraps the local store connection
type DB struct {
	conn    *sql.DB
	baseDir string
	now     func() time.Time
}

// Open opens an existing store and runs any pending migrations
func Open(baseDir string) (*DB, error) {
	dbPath := filepath.Join(baseDir, dbFile)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("store not found: run 'rxsync init' first")
	}

	conn, err := openConn(dbPath)
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn, baseDir: baseDir, now: time.Now}
	if _, err := db.RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// Initialize creates the store if needed and runs migrations
func Initialize(baseDir string) (*DB, error) {
	dbPath := filepath.Join(baseDir, dbFile)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	conn, err := openConn(dbPath)
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn, baseDir: baseDir, now: time.Now}
	if _, err := db.RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

func openConn(dbPath string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL lets the drainer read while the UI writes
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=2000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")

	return conn, nil
}

// Close closes the database
func (db *DB) Close() error {
	return db.conn.Close()
}

// BaseDir returns the directory the store lives under
func (db *DB) BaseDir() string {
	return db.baseDir
}

// Path returns the path of the SQLite file.
func (db *DB) Path() string {
	return filepath.Join(db.baseDir, dbFile)
}

// Conn returns the underlying *sql.DB.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// withWriteLock executes fn while holding the cross-process write lock.
func (db *DB) withWriteLock(fn func() error) error {
	locker := newWriteLocker(db.baseDir)
	if err := locker.acquire(defaultTimeout); err != nil {
		return err
	}
	defer locker.release()
	return fn()
}

// Tx is a local transaction. Every record mutation and the outbox entry it
// produces go through the same Tx, so they commit or abort together.
type Tx struct {
	tx  *sql.Tx
	now time.Time
}

// WithTx runs fn inside a write transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	return db.withWriteLock(func() error {
		sqlTx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		t := &Tx{tx: sqlTx, now: db.now().UTC()}
		if err := fn(t); err != nil {
			sqlTx.Rollback()
			return err
		}
		if err := sqlTx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	})
}

// View runs fn inside a transaction that is always rolled back. It takes no
// write lock.
func (db *DB) View(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()
	return fn(&Tx{tx: sqlTx, now: db.now().UTC()})
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTimestamp tries the formats SQLite drivers hand back.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}
