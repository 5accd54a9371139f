package serverdb

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Sentinel errors returned by row operations.
var (
	ErrNotFound       = errors.New("row not found")
	ErrConstraint     = errors.New("constraint violation")
	ErrUnknownTable   = errors.New("unknown table")
	ErrUnknownColumn  = errors.New("unknown column")
	ErrMissingClient  = errors.New("client_id is required")
	ErrChildrenTarget = errors.New("children do not belong to table")
)

// ServerDB wraps the server database connection
type ServerDB struct {
	conn    *sql.DB
	path    string
	columns map[string]map[string]bool
}

// Open opens the server database and runs any pending migrations.
// If the database file does not exist, it is created and initialized.
func Open(dbPath string) (*ServerDB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db, err := New(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	db.path = dbPath
	return db, nil
}

// New prepares an already-open SQLite connection (any driver) as a server
// database: pragmas, schema, migrations and the column whitelist.
func New(conn *sql.DB) (*ServerDB, error) {
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if _, err := conn.Exec(serverSchema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}

	db := &ServerDB{conn: conn}
	if _, err := db.RunMigrations(); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if err := db.loadColumns(); err != nil {
		return nil, err
	}
	return db, nil
}

// Ping checks the database connection is alive.
func (db *ServerDB) Ping() error {
	return db.conn.Ping()
}

// Close checkpoints the WAL and closes the database connection.
func (db *ServerDB) Close() error {
	db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return db.conn.Close()
}

// RunMigrations runs any pending database migrations.
func (db *ServerDB) RunMigrations() (int, error) {
	if _, err := db.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_info (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return 0, fmt.Errorf("create schema_info: %w", err)
	}

	currentVersion := db.getSchemaVersion()
	if currentVersion >= ServerSchemaVersion {
		return 0, nil
	}

	migrationsRun := 0
	for _, m := range Migrations {
		if m.Version > currentVersion {
			if _, err := db.conn.Exec(m.SQL); err != nil {
				return migrationsRun, fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
			}
			if err := db.setSchemaVersion(m.Version); err != nil {
				return migrationsRun, fmt.Errorf("set version %d: %w", m.Version, err)
			}
			migrationsRun++
		}
	}

	if currentVersion == 0 {
		if err := db.setSchemaVersion(ServerSchemaVersion); err != nil {
			return migrationsRun, err
		}
	}
	return migrationsRun, nil
}

func (db *ServerDB) getSchemaVersion() int {
	var version string
	err := db.conn.QueryRow("SELECT value FROM schema_info WHERE key = 'version'").Scan(&version)
	if err != nil {
		return 0
	}
	var v int
	fmt.Sscanf(version, "%d", &v)
	return v
}

func (db *ServerDB) setSchemaVersion(version int) error {
	_, err := db.conn.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`,
		fmt.Sprintf("%d", version))
	return err
}

// loadColumns reads the column set of every writable table. Column names in
// requests are checked against it before they reach SQL text.
func (db *ServerDB) loadColumns() error {
	db.columns = map[string]map[string]bool{}
	load := func(table string) error {
		rows, err := db.conn.Query(fmt.Sprintf(`SELECT name FROM pragma_table_info('%s')`, table))
		if err != nil {
			return fmt.Errorf("table info %s: %w", table, err)
		}
		defer rows.Close()
		cols := map[string]bool{}
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return fmt.Errorf("scan column: %w", err)
			}
			cols[name] = true
		}
		db.columns[table] = cols
		return rows.Err()
	}
	for table, child := range headerTables {
		if err := load(table); err != nil {
			return err
		}
		if child != nil {
			if err := load(child.Table); err != nil {
				return err
			}
		}
	}
	return nil
}

// HasTable reports whether table is a writable header table.
func (db *ServerDB) HasTable(table string) bool {
	_, ok := headerTables[table]
	return ok
}

// classifyErr maps driver errors onto the package sentinels. Both SQLite
// drivers report constraint failures as "... constraint failed".
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "constraint failed") {
		return fmt.Errorf("%w: %v", ErrConstraint, err)
	}
	return err
}

// generateID creates a prefixed ID with 8 random hex chars.
func generateID(prefix string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s", prefix, hex.EncodeToString(b)), nil
}
