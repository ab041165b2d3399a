package pipeline

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillstream/quillstream/internal/archive"
	"github.com/quillstream/quillstream/internal/checkpoint"
	"github.com/quillstream/quillstream/internal/errors"
	"github.com/quillstream/quillstream/internal/source"
	"github.com/quillstream/quillstream/internal/warehouse"
	"github.com/quillstream/quillstream/pkg/types"
)

type fixture struct {
	eventsDir string
	dbPath    string
	driver    *Driver
	wh        *warehouse.Warehouse
	cp        *checkpoint.Store
}

func newFixture(t *testing.T, archiveDir string) *fixture {
	t.Helper()
	dataDir := t.TempDir()
	eventsDir := filepath.Join(dataDir, "events")
	require.NoError(t, os.MkdirAll(eventsDir, 0o755))

	dbPath := filepath.Join(dataDir, "analytics.db")
	wh, err := warehouse.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { wh.Close() })

	cp, err := checkpoint.Open(filepath.Join(dataDir, "ingested_files.checkpoint"))
	require.NoError(t, err)
	t.Cleanup(func() { cp.Close() })

	var arch *archive.Archiver
	if archiveDir != "" {
		arch = archive.New(archiveDir)
	}

	return &fixture{
		eventsDir: eventsDir,
		dbPath:    dbPath,
		driver:    New(source.NewLocalSource(eventsDir), wh, cp, arch, zerolog.Nop()),
		wh:        wh,
		cp:        cp,
	}
}

func (f *fixture) writeFile(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.eventsDir, name), []byte(content), 0o644))
}

// queryRow runs a single-row query against the warehouse database on its own
// read-only connection.
func (f *fixture) queryRow(t *testing.T, query string, dst ...interface{}) error {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+f.dbPath+"?mode=ro&_journal_mode=WAL&_busy_timeout=5000")
	require.NoError(t, err)
	defer db.Close()
	return db.QueryRow(query).Scan(dst...)
}

const goodEvent = `{
	"event_id": "e-1",
	"event_type": "document_edit",
	"event_ts": "2024-01-01T09:00:00Z",
	"user_id": "u-1",
	"document_id": "doc-1",
	"edit": {"chars_delta": 42}
}`

func TestRun_IngestsNewFiles(t *testing.T) {
	f := newFixture(t, "")
	f.writeFile(t, "e1.json", goodEvent)
	f.writeFile(t, "e2.json", `[
		{"event_id": "e-2", "event_type": "comment_added", "event_ts": "2024-01-02T09:00:00Z", "user_id": "u-2", "document_id": "doc-1", "comment": {"text": "hi"}},
		{"event_id": "e-3", "event_type": "document_shared", "user_id": "u-1", "document_id": "doc-1", "shared_with_user_id": "u-2"}
	]`)

	summary, err := f.driver.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 2, summary.Discovered)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 2, summary.Ingested)
	assert.Empty(t, summary.Failed)
	assert.Equal(t, 3, summary.EventsIngested)
	assert.Equal(t, types.TableCounts{RawEvents: 3, Users: 2, Documents: 1, Events: 3}, summary.TableCounts)

	assert.True(t, f.cp.Contains("e1.json"))
	assert.True(t, f.cp.Contains("e2.json"))
}

func TestRun_SingleEventFile(t *testing.T) {
	f := newFixture(t, "")
	f.writeFile(t, "e1.json",
		`{"event_id":"1","event_type":"document_edit","event_ts":"2024-01-01T10:00:00","user_id":"u1","document_id":"d1","session_id":"s1","edit_chars_delta":42}`)

	summary, err := f.driver.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Ingested)

	var firstSeen, lastSeen string
	err = f.queryRow(t, "SELECT first_seen_ts, last_seen_ts FROM users WHERE user_id = 'u1'", &firstSeen, &lastSeen)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T10:00:00", firstSeen)
	assert.Equal(t, firstSeen, lastSeen)

	var docCount int
	require.NoError(t, f.queryRow(t, "SELECT COUNT(*) FROM documents WHERE document_id = 'd1'", &docCount))
	assert.Equal(t, 1, docCount)

	var delta int64
	var dayOfWeek string
	require.NoError(t, f.queryRow(t, "SELECT edit_chars_delta, day_of_week FROM events WHERE event_id = '1'", &delta, &dayOfWeek))
	assert.Equal(t, int64(42), delta)
	assert.Equal(t, "Monday", dayOfWeek)
}

func TestRun_SecondRunSkipsCheckpointedFiles(t *testing.T) {
	f := newFixture(t, "")
	f.writeFile(t, "e1.json", goodEvent)

	_, err := f.driver.Run(context.Background())
	require.NoError(t, err)

	summary, err := f.driver.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Discovered)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Ingested)
	assert.Empty(t, summary.Failed)
	assert.Equal(t, 0, summary.EventsIngested)
	// Table counts reflect the committed state, not this run's writes.
	assert.Equal(t, int64(1), summary.TableCounts.Events)
}

func TestRun_MalformedFileIsolated(t *testing.T) {
	f := newFixture(t, "")
	f.writeFile(t, "bad.json", `{"event_type": "document_edit"}`) // missing event_id
	f.writeFile(t, "good.json", goodEvent)

	summary, err := f.driver.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Discovered)
	assert.Equal(t, 1, summary.Ingested)
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, "bad.json", summary.Failed[0].FileID)
	assert.Contains(t, summary.Failed[0].Reason, "event_id")

	// The failed file stays unmarked so a fixed version gets retried.
	assert.False(t, f.cp.Contains("bad.json"))
	assert.True(t, f.cp.Contains("good.json"))
}

func TestRun_ArrayFileIsAtomic(t *testing.T) {
	f := newFixture(t, "")
	f.writeFile(t, "mixed.json", `[
		{"event_id": "e-1", "event_type": "document_edit"},
		{"event_id": "", "event_type": "document_edit"}
	]`)

	summary, err := f.driver.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Failed, 1)
	assert.Equal(t, types.TableCounts{}, summary.TableCounts)
	assert.False(t, f.cp.Contains("mixed.json"))
}

func TestRun_WarehouseWriteFailureIsolated(t *testing.T) {
	f := newFixture(t, "")

	// A trigger rejecting one event id stands in for a storage-level write
	// failure partway through a file's transaction.
	db, err := sql.Open("sqlite3", f.dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TRIGGER reject_event BEFORE INSERT ON raw_events
		WHEN NEW.event_id = 'e-reject'
		BEGIN SELECT RAISE(ABORT, 'disk write rejected'); END`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	f.writeFile(t, "a.json", `[
		{"event_id": "e-ok", "event_type": "document_edit", "event_ts": "2024-01-01T09:00:00Z", "user_id": "u-9", "document_id": "doc-9"},
		{"event_id": "e-reject", "event_type": "document_edit", "event_ts": "2024-01-01T09:05:00Z", "user_id": "u-9", "document_id": "doc-9"}
	]`)
	f.writeFile(t, "b.json", goodEvent)

	summary, err := f.driver.Run(context.Background())
	require.NoError(t, err)

	// a.json failed mid-transaction: its failure is accumulated, it stays
	// unmarked, and the run continues with b.json.
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, "a.json", summary.Failed[0].FileID)
	assert.Contains(t, summary.Failed[0].Reason, "WRITE_FAILED")
	assert.Equal(t, 1, summary.Ingested)
	assert.False(t, f.cp.Contains("a.json"))
	assert.True(t, f.cp.Contains("b.json"))

	// The rolled-back transaction left no partial rows, not even for the
	// event that inserted before the failure.
	var n int
	require.NoError(t, f.queryRow(t, "SELECT COUNT(*) FROM raw_events WHERE source_file = 'a.json'", &n))
	assert.Equal(t, 0, n)
	assert.Equal(t, types.TableCounts{RawEvents: 1, Users: 1, Documents: 1, Events: 1}, summary.TableCounts)
}

func TestRun_ArchivesIngestedFiles(t *testing.T) {
	archiveDir := t.TempDir()
	f := newFixture(t, archiveDir)
	f.writeFile(t, "e1.json", goodEvent)
	f.writeFile(t, "bad.json", `not json`)

	_, err := f.driver.Run(context.Background())
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(archiveDir, "e1.json.snappy"))
	assert.NoError(t, err)
	// Failed files are never archived.
	_, err = os.Stat(filepath.Join(archiveDir, "bad.json.snappy"))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_EmptySource(t *testing.T) {
	f := newFixture(t, "")

	summary, err := f.driver.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Discovered)
	assert.Equal(t, types.TableCounts{}, summary.TableCounts)
}

func TestRun_CheckpointAppendFailureAborts(t *testing.T) {
	f := newFixture(t, "")
	f.writeFile(t, "e1.json", goodEvent)

	// Closing the store makes the next append fail.
	require.NoError(t, f.cp.Close())

	_, err := f.driver.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodeCheckpointAppendFailed, errors.GetCode(err))
}

func TestRun_CanceledContext(t *testing.T) {
	f := newFixture(t, "")
	f.writeFile(t, "e1.json", goodEvent)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.driver.Run(ctx)
	require.Error(t, err)
}
