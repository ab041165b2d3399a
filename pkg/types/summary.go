package types

import "time"

// FileFailure records one source file that could not be ingested.
type FileFailure struct {
	FileID string `json:"file_id"`
	Reason string `json:"reason"`
}

// TableCounts holds per-table row counts after a run.
type TableCounts struct {
	RawEvents int64 `json:"raw_events"`
	Users     int64 `json:"users"`
	Documents int64 `json:"documents"`
	Events    int64 `json:"events"`
}

// RunSummary is the result of one pipeline run. Per-file failures are
// accumulated here rather than aborting the run.
type RunSummary struct {
	RunID          string        `json:"run_id"`
	Discovered     int           `json:"discovered"`
	Skipped        int           `json:"skipped"`
	Ingested       int           `json:"ingested"`
	Failed         []FileFailure `json:"failed"`
	EventsIngested int           `json:"events_ingested"`
	TableCounts    TableCounts   `json:"table_counts"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
}

// FailedCount returns the number of files that failed during the run.
func (s *RunSummary) FailedCount() int {
	return len(s.Failed)
}

// Duration returns the wall-clock duration of the run.
func (s *RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
