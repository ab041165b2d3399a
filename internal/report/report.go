// Package report runs the canned analytics queries over the warehouse schema.
// Reporting is strictly read-only: it opens its own read connection and never
// mutates state.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quillstream/quillstream/internal/errors"
	"github.com/quillstream/quillstream/pkg/types"
)

// Reporter holds a read-only connection pool to the analytics database.
type Reporter struct {
	db *sql.DB
}

// Open opens the analytics database read-only. The database must already
// exist; reporting against a never-ingested warehouse is an error.
func Open(dbPath string) (*Reporter, error) {
	// mode=ro requires the file: URI form to take effect.
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?mode=ro&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("report: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("report: failed to open database read-only: %w", err)
	}
	return &Reporter{db: db}, nil
}

// Close closes the read connection pool.
func (r *Reporter) Close() error {
	return r.db.Close()
}

// TypeCount is one row of the events-by-type report.
type TypeCount struct {
	EventType string
	Count     int64
}

// DayCount is one row of the activity-by-day report.
type DayCount struct {
	Day   string
	Count int64
}

// UserActivity is one row of the top-users report.
type UserActivity struct {
	UserID     string
	EventCount int64
	FirstSeen  *string
	LastSeen   *string
}

// DocumentEngagement is one row of the document-engagement report.
type DocumentEngagement struct {
	DocumentID  string
	Title       *string
	OwnerUserID *string
	EventCount  int64
}

// TableCounts returns the row count of each output table.
func (r *Reporter) TableCounts(ctx context.Context) (types.TableCounts, error) {
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
		if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+q.table).Scan(q.dst); err != nil {
			return types.TableCounts{}, errors.NewWarehouseError(errors.CodeQueryFailed,
				fmt.Sprintf("failed to count %s", q.table), err)
		}
	}
	return counts, nil
}

// EventsByType returns event counts grouped by type, most frequent first.
func (r *Reporter) EventsByType(ctx context.Context) ([]TypeCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_type, COUNT(*) AS n
		FROM events
		GROUP BY event_type
		ORDER BY n DESC, event_type`)
	if err != nil {
		return nil, errors.NewWarehouseError(errors.CodeQueryFailed, "events-by-type query failed", err)
	}
	defer rows.Close()

	var out []TypeCount
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.EventType, &tc.Count); err != nil {
			return nil, errors.NewWarehouseError(errors.CodeQueryFailed, "events-by-type scan failed", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// ActivityByDay returns event counts per derived day of week in calendar
// order, Monday first. Events with an unparseable timestamp are excluded.
func (r *Reporter) ActivityByDay(ctx context.Context) ([]DayCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT day_of_week, COUNT(*)
		FROM events
		WHERE day_of_week IS NOT NULL
		GROUP BY day_of_week
		ORDER BY CASE day_of_week
			WHEN 'Monday' THEN 1
			WHEN 'Tuesday' THEN 2
			WHEN 'Wednesday' THEN 3
			WHEN 'Thursday' THEN 4
			WHEN 'Friday' THEN 5
			WHEN 'Saturday' THEN 6
			WHEN 'Sunday' THEN 7
		END`)
	if err != nil {
		return nil, errors.NewWarehouseError(errors.CodeQueryFailed, "activity-by-day query failed", err)
	}
	defer rows.Close()

	var out []DayCount
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, errors.NewWarehouseError(errors.CodeQueryFailed, "activity-by-day scan failed", err)
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

// TopUsers returns the most active users by event count, joined with their
// seen window from the users dimension.
func (r *Reporter) TopUsers(ctx context.Context, limit int) ([]UserActivity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.user_id, COUNT(*) AS n, u.first_seen_ts, u.last_seen_ts
		FROM events e
		JOIN users u ON u.user_id = e.user_id
		WHERE e.user_id IS NOT NULL
		GROUP BY e.user_id
		ORDER BY n DESC, e.user_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, errors.NewWarehouseError(errors.CodeQueryFailed, "top-users query failed", err)
	}
	defer rows.Close()

	var out []UserActivity
	for rows.Next() {
		var ua UserActivity
		if err := rows.Scan(&ua.UserID, &ua.EventCount, &ua.FirstSeen, &ua.LastSeen); err != nil {
			return nil, errors.NewWarehouseError(errors.CodeQueryFailed, "top-users scan failed", err)
		}
		out = append(out, ua)
	}
	return out, rows.Err()
}

// DocumentEngagementReport returns per-document event counts joined with the
// document dimension, most active first.
func (r *Reporter) DocumentEngagementReport(ctx context.Context, limit int) ([]DocumentEngagement, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT d.document_id, d.title, d.owner_user_id, COUNT(e.event_id) AS n
		FROM documents d
		LEFT JOIN events e ON e.document_id = d.document_id
		GROUP BY d.document_id
		ORDER BY n DESC, d.document_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, errors.NewWarehouseError(errors.CodeQueryFailed, "document-engagement query failed", err)
	}
	defer rows.Close()

	var out []DocumentEngagement
	for rows.Next() {
		var de DocumentEngagement
		if err := rows.Scan(&de.DocumentID, &de.Title, &de.OwnerUserID, &de.EventCount); err != nil {
			return nil, errors.NewWarehouseError(errors.CodeQueryFailed, "document-engagement scan failed", err)
		}
		out = append(out, de)
	}
	return out, rows.Err()
}
