package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quillstream/quillstream/internal/errors"
	"github.com/quillstream/quillstream/pkg/types"
)

// Warehouse owns the single write connection to the analytics database.
// All ingest writes for one source file happen in one transaction, so a
// file's effects are either fully visible or not at all.
type Warehouse struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open opens (creating if needed) the analytics database and initializes
// the schema. WAL mode keeps readers unblocked during ingest.
func Open(dbPath string) (*Warehouse, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("warehouse: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // Single writer
	db.SetMaxIdleConns(1)

	w := &Warehouse{db: db, dbPath: dbPath}
	if err := w.initSchema(); err != nil {
		db.Close()
		return nil, errors.NewWarehouseError(errors.CodeSchemaInitFailed,
			"failed to initialize warehouse schema", err)
	}
	return w, nil
}

func (w *Warehouse) initSchema() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := w.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (w *Warehouse) Close() error {
	return w.db.Close()
}

const upsertRawEventSQL = `
INSERT INTO raw_events (event_id, event_type, event_ts, user_id, document_id, session_id, source_file, raw_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(event_id) DO UPDATE SET
    event_type = excluded.event_type,
    event_ts = excluded.event_ts,
    user_id = excluded.user_id,
    document_id = excluded.document_id,
    session_id = excluded.session_id,
    source_file = excluded.source_file,
    raw_json = excluded.raw_json`

const upsertEventSQL = `
INSERT INTO events (event_id, event_type, event_ts, user_id, document_id, session_id,
    day_of_week, comment_text, shared_with_user_id, edit_chars_delta)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(event_id) DO UPDATE SET
    event_type = excluded.event_type,
    event_ts = excluded.event_ts,
    user_id = excluded.user_id,
    document_id = excluded.document_id,
    session_id = excluded.session_id,
    day_of_week = excluded.day_of_week,
    comment_text = excluded.comment_text,
    shared_with_user_id = excluded.shared_with_user_id,
    edit_chars_delta = excluded.edit_chars_delta`

// First/last seen aggregate over every committed event regardless of arrival
// order. The coalesce pairing keeps min/max null-safe: a null timestamp never
// shrinks the window, and both-null stays null.
const upsertUserSQL = `
INSERT INTO users (user_id, first_seen_ts, last_seen_ts)
VALUES (?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
    first_seen_ts = min(coalesce(first_seen_ts, excluded.first_seen_ts), coalesce(excluded.first_seen_ts, first_seen_ts)),
    last_seen_ts = max(coalesce(last_seen_ts, excluded.last_seen_ts), coalesce(excluded.last_seen_ts, last_seen_ts))`

// Document metadata is first-value-wins: a later event fills fields that are
// still null, but never overwrites a known value.
const upsertDocumentSQL = `
INSERT INTO documents (document_id, title, owner_user_id, first_seen_ts, last_seen_ts)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(document_id) DO UPDATE SET
    title = coalesce(title, excluded.title),
    owner_user_id = coalesce(owner_user_id, excluded.owner_user_id),
    first_seen_ts = min(coalesce(first_seen_ts, excluded.first_seen_ts), coalesce(excluded.first_seen_ts, first_seen_ts)),
    last_seen_ts = max(coalesce(last_seen_ts, excluded.last_seen_ts), coalesce(excluded.last_seen_ts, last_seen_ts))`

// IngestFile writes one source file's records in a single transaction.
// records and extracted are parallel slices produced by the parser and
// extractor for the same file.
func (w *Warehouse) IngestFile(ctx context.Context, records []types.Record, extracted []types.Extracted) error {
	if len(records) != len(extracted) {
		return errors.NewInternalError(
			fmt.Sprintf("record/extraction count mismatch: %d vs %d", len(records), len(extracted)), nil)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewWarehouseError(errors.CodeWriteFailed, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	for i := range records {
		if err := w.upsertRecord(ctx, tx, &records[i], &extracted[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewWarehouseError(errors.CodeWriteFailed, "failed to commit transaction", err)
	}
	return nil
}

func (w *Warehouse) upsertRecord(ctx context.Context, tx *sql.Tx, rec *types.Record, ex *types.Extracted) error {
	_, err := tx.ExecContext(ctx, upsertRawEventSQL,
		rec.EventID, rec.EventType, rec.EventTS, rec.UserID, rec.DocumentID,
		rec.SessionID, rec.SourceFile, string(rec.RawJSON))
	if err != nil {
		return errors.NewWarehouseError(errors.CodeWriteFailed,
			fmt.Sprintf("failed to upsert raw event %s", rec.EventID), err)
	}

	_, err = tx.ExecContext(ctx, upsertEventSQL,
		rec.EventID, rec.EventType, rec.EventTS, rec.UserID, rec.DocumentID,
		rec.SessionID, DayOfWeek(rec.EventTS), ex.CommentText,
		ex.SharedWithUserID, ex.EditCharsDelta)
	if err != nil {
		return errors.NewWarehouseError(errors.CodeWriteFailed,
			fmt.Sprintf("failed to upsert event %s", rec.EventID), err)
	}

	if rec.UserID != nil {
		if _, err := tx.ExecContext(ctx, upsertUserSQL, rec.UserID, rec.EventTS, rec.EventTS); err != nil {
			return errors.NewWarehouseError(errors.CodeWriteFailed,
				fmt.Sprintf("failed to upsert user for event %s", rec.EventID), err)
		}
	}

	if rec.DocumentID != nil {
		if _, err := tx.ExecContext(ctx, upsertDocumentSQL,
			rec.DocumentID, ex.Title, ex.OwnerUserID, rec.EventTS, rec.EventTS); err != nil {
			return errors.NewWarehouseError(errors.CodeWriteFailed,
				fmt.Sprintf("failed to upsert document for event %s", rec.EventID), err)
		}
	}

	return nil
}

// TableCounts returns the current row count of each output table.
func (w *Warehouse) TableCounts(ctx context.Context) (types.TableCounts, error) {
	var counts types.TableCounts
	for _, q := range []struct {
		table string
		dst   *int64
	}{
		{"raw_events", &counts.RawEvents},
		{"users", &counts.Users},
		{"documents", &counts.Documents},
		{"events", &counts.Events},
	} {
		if err := w.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+q.table).Scan(q.dst); err != nil {
			return types.TableCounts{}, errors.NewWarehouseError(errors.CodeQueryFailed,
				fmt.Sprintf("failed to count %s", q.table), err)
		}
	}
	return counts, nil
}

// Timestamp layouts accepted for day-of-week derivation, most specific first.
var tsLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// DayOfWeek derives the English day name from an event timestamp.
// Returns nil for a null or unparseable timestamp.
func DayOfWeek(ts *string) *string {
	if ts == nil {
		return nil
	}
	for _, layout := range tsLayouts {
		if t, err := time.Parse(layout, *ts); err == nil {
			day := t.Weekday().String()
			return &day
		}
	}
	return nil
}
