package db

import (
	"database/sql"
	"fmt"
	"strconv"
)

// Migration is one schema step.
type Migration struct {
	Version     int
	Description string
	SQL         func() string
}

// Migrations are applied in order to bring a store up to SchemaVersion.
var Migrations = []Migration{
	{
		Version:     1,
		Description: "entity tables and outbox",
		SQL:         baseSchema,
	},
	{
		Version:     2,
		Description: "outbox failure bookkeeping and quarantine",
		SQL:         func() string { return outboxSupportDDL },
	},
	{
		Version:     3,
		Description: "sync history",
		SQL:         func() string { return syncHistoryDDL },
	},
	{
		Version:     4,
		Description: "key tombstones for deleted records",
		SQL:         func() string { return tombstonesDDL },
	},
}

// GetSchemaVersion returns the current schema version from the database
func (db *DB) GetSchemaVersion() (int, error) {
	var version string
	err := db.conn.QueryRow("SELECT value FROM schema_info WHERE key = 'version'").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(version)
	if err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", version, err)
	}
	return v, nil
}

func (db *DB) setSchemaVersion(version int) error {
	_, err := db.conn.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`,
		strconv.Itoa(version))
	return err
}

// RunMigrations applies pending migrations and returns how many ran.
func (db *DB) RunMigrations() (int, error) {
	var ran int
	err := db.withWriteLock(func() error {
		if _, err := db.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_info (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
			return fmt.Errorf("create schema_info: %w", err)
		}

		current, err := db.GetSchemaVersion()
		if err != nil {
			return err
		}

		for _, m := range Migrations {
			if m.Version <= current {
				continue
			}
			if _, err := db.conn.Exec(m.SQL()); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
			}
			if err := db.setSchemaVersion(m.Version); err != nil {
				return fmt.Errorf("set version %d: %w", m.Version, err)
			}
			ran++
		}
		return nil
	})
	return ran, err
}
