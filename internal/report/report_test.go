package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillstream/quillstream/internal/warehouse"
	"github.com/quillstream/quillstream/pkg/types"
)

func strPtr(s string) *string { return &s }
func i64Ptr(n int64) *int64   { return &n }

func seedWarehouse(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "analytics.db")
	w, err := warehouse.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	var records []types.Record
	var extracted []types.Extracted

	add := func(rec types.Record, ex types.Extracted) {
		records = append(records, rec)
		extracted = append(extracted, ex)
	}

	// u-1 edits doc-1 three times across the first week of 2024.
	for i, day := range []int{1, 2, 3} {
		add(types.Record{
			EventID:    fmt.Sprintf("edit-%d", i),
			EventType:  types.EventTypeDocumentEdit,
			EventTS:    strPtr(fmt.Sprintf("2024-01-%02dT10:00:00Z", day)),
			UserID:     strPtr("u-1"),
			DocumentID: strPtr("doc-1"),
			SourceFile: "seed.json",
			RawJSON:    []byte(`{}`),
		}, types.Extracted{Title: strPtr("Roadmap"), OwnerUserID: strPtr("u-1"), EditCharsDelta: i64Ptr(10)})
	}

	// u-2 comments on doc-1 once, on the same Monday as the first edit.
	add(types.Record{
		EventID:    "comment-1",
		EventType:  types.EventTypeCommentAdded,
		EventTS:    strPtr("2024-01-01T12:00:00Z"),
		UserID:     strPtr("u-2"),
		DocumentID: strPtr("doc-1"),
		SourceFile: "seed.json",
		RawJSON:    []byte(`{}`),
	}, types.Extracted{CommentText: strPtr("nice")})

	// doc-2 exists but has no events with parseable timestamps.
	add(types.Record{
		EventID:    "share-1",
		EventType:  types.EventTypeDocumentShared,
		UserID:     strPtr("u-1"),
		DocumentID: strPtr("doc-2"),
		SourceFile: "seed.json",
		RawJSON:    []byte(`{}`),
	}, types.Extracted{SharedWithUserID: strPtr("u-2")})

	require.NoError(t, w.IngestFile(context.Background(), records, extracted))
	return dbPath
}

func openReporter(t *testing.T) *Reporter {
	t.Helper()
	r, err := Open(seedWarehouse(t))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestOpen_MissingDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "missing.db")

	_, err := Open(dbPath)
	assert.Error(t, err)

	// A read-only open must not create the database file as a side effect.
	_, err = os.Stat(dbPath)
	assert.True(t, os.IsNotExist(err))
}

func TestReporter_CannotWrite(t *testing.T) {
	r, err := Open(seedWarehouse(t))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.db.Exec("DELETE FROM events")
	assert.Error(t, err)
}

func TestTableCounts(t *testing.T) {
	r := openReporter(t)

	counts, err := r.TableCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.TableCounts{RawEvents: 5, Users: 2, Documents: 2, Events: 5}, counts)
}

func TestEventsByType(t *testing.T) {
	r := openReporter(t)

	got, err := r.EventsByType(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []TypeCount{
		{EventType: types.EventTypeDocumentEdit, Count: 3},
		{EventType: types.EventTypeCommentAdded, Count: 1},
		{EventType: types.EventTypeDocumentShared, Count: 1},
	}, got)
}

func TestActivityByDay_CalendarOrderExcludesNull(t *testing.T) {
	r := openReporter(t)

	got, err := r.ActivityByDay(context.Background())
	require.NoError(t, err)
	// share-1 has no timestamp and is excluded.
	assert.Equal(t, []DayCount{
		{Day: "Monday", Count: 2},
		{Day: "Tuesday", Count: 1},
		{Day: "Wednesday", Count: 1},
	}, got)
}

func TestTopUsers(t *testing.T) {
	r := openReporter(t)

	got, err := r.TopUsers(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "u-1", got[0].UserID)
	assert.Equal(t, int64(4), got[0].EventCount)
	require.NotNil(t, got[0].FirstSeen)
	assert.Equal(t, "2024-01-01T10:00:00Z", *got[0].FirstSeen)
	require.NotNil(t, got[0].LastSeen)
	assert.Equal(t, "2024-01-03T10:00:00Z", *got[0].LastSeen)

	assert.Equal(t, "u-2", got[1].UserID)
	assert.Equal(t, int64(1), got[1].EventCount)
}

func TestTopUsers_LimitApplies(t *testing.T) {
	r := openReporter(t)

	got, err := r.TopUsers(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u-1", got[0].UserID)
}

func TestDocumentEngagementReport(t *testing.T) {
	r := openReporter(t)

	got, err := r.DocumentEngagementReport(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "doc-1", got[0].DocumentID)
	require.NotNil(t, got[0].Title)
	assert.Equal(t, "Roadmap", *got[0].Title)
	assert.Equal(t, int64(4), got[0].EventCount)

	assert.Equal(t, "doc-2", got[1].DocumentID)
	assert.Nil(t, got[1].Title)
	assert.Equal(t, int64(1), got[1].EventCount)
}
