// Package warehouse normalizes parsed events into the SQLite analytics schema.
package warehouse

// Schema contains the SQL definitions for the analytics database. The four
// tables form the stable read contract: raw_events preserves payloads
// verbatim, users and documents are dimension tables maintained by upsert,
// and events is the normalized fact table reporting queries run against.

// CreateRawEventsTableSQL creates the bronze table holding every payload
// exactly as it arrived, keyed by event_id.
const CreateRawEventsTableSQL = `
CREATE TABLE IF NOT EXISTS raw_events (
    event_id TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    event_ts TEXT,
    user_id TEXT,
    document_id TEXT,
    session_id TEXT,
    source_file TEXT NOT NULL,
    raw_json TEXT NOT NULL
)`

// CreateUsersTableSQL creates the users dimension. first_seen_ts and
// last_seen_ts are aggregates over all committed events for the user.
const CreateUsersTableSQL = `
CREATE TABLE IF NOT EXISTS users (
    user_id TEXT PRIMARY KEY,
    first_seen_ts TEXT,
    last_seen_ts TEXT
)`

// CreateDocumentsTableSQL creates the documents dimension.
const CreateDocumentsTableSQL = `
CREATE TABLE IF NOT EXISTS documents (
    document_id TEXT PRIMARY KEY,
    title TEXT,
    owner_user_id TEXT,
    first_seen_ts TEXT,
    last_seen_ts TEXT
)`

// CreateEventsTableSQL creates the normalized fact table. day_of_week is
// derived at ingest time from event_ts; the extracted columns are null for
// event types they do not apply to.
const CreateEventsTableSQL = `
CREATE TABLE IF NOT EXISTS events (
    event_id TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    event_ts TEXT,
    user_id TEXT,
    document_id TEXT,
    session_id TEXT,
    day_of_week TEXT,
    comment_text TEXT,
    shared_with_user_id TEXT,
    edit_chars_delta INTEGER
)`

// CreateIndexesSQL creates indexes matching the reporting query patterns.
var CreateIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type)`,
	`CREATE INDEX IF NOT EXISTS idx_events_user ON events(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_events_document ON events(document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_events_day ON events(day_of_week)`,
	`CREATE INDEX IF NOT EXISTS idx_raw_events_source ON raw_events(source_file)`,
}

// AllSchemaSQL returns every schema statement in creation order.
func AllSchemaSQL() []string {
	stmts := []string{
		CreateRawEventsTableSQL,
		CreateUsersTableSQL,
		CreateDocumentsTableSQL,
		CreateEventsTableSQL,
	}
	stmts = append(stmts, CreateIndexesSQL...)
	return stmts
}
