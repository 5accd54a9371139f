package db

import (
	"fmt"
	"strings"

	"github.com/marcus/rxsync/internal/models"
)

// SchemaVersion is the current local schema version
const SchemaVersion = 4

// entityTableDDL is the layout shared by every synced entity table. Business
// fields live in the data JSON column; the key columns are what the sync
// engine needs to index.
const entityTableDDL = `
CREATE TABLE IF NOT EXISTS %[1]q (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    client_id TEXT NOT NULL UNIQUE,
    remote_key INTEGER,
    data TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS %[2]q ON %[1]q(remote_key) WHERE remote_key IS NOT NULL;
`

const outboxDDL = `
-- Outbox: append-only queue of pending remote operations
CREATE TABLE IF NOT EXISTS outbox (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    entity TEXT NOT NULL,
    action TEXT NOT NULL,
    local_key INTEGER NOT NULL,
    payload TEXT NOT NULL,
    enqueued_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outbox_entity_key ON outbox(entity, local_key);
`

const outboxSupportDDL = `
-- Failure bookkeeping for stuck entries; rows die with their entry
CREATE TABLE IF NOT EXISTS outbox_failures (
    seq INTEGER PRIMARY KEY,
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    failed_at TEXT NOT NULL
);

-- Entries the drainer skipped (malformed) or an operator discarded
CREATE TABLE IF NOT EXISTS outbox_quarantine (
    seq INTEGER PRIMARY KEY,
    entity TEXT NOT NULL,
    action TEXT NOT NULL,
    payload TEXT NOT NULL,
    reason TEXT NOT NULL,
    quarantined_at TEXT NOT NULL
);
`

// baseSchema builds the version-1 schema: one table per synced entity plus
// the outbox.
func baseSchema() string {
	var b strings.Builder
	for _, entity := range models.SyncedEntities {
		fmt.Fprintf(&b, entityTableDDL, entity, "idx_"+entity+"_remote_key")
	}
	b.WriteString(outboxDDL)
	return b.String()
}
