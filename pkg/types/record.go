// Package types provides core data types for Quillstream.
package types

// Event types with event-specific extracted fields.
const (
	EventTypeDocumentEdit   = "document_edit"
	EventTypeCommentAdded   = "comment_added"
	EventTypeDocumentShared = "document_shared"
)

// Record is a single validated event parsed from a source file.
type Record struct {
	// EventID is the unique event identifier (required, primary key downstream)
	EventID string `json:"event_id"`

	// EventType categorizes the event (required, normalized to lower case)
	EventType string `json:"event_type"`

	// EventTS is the event timestamp as emitted by the source
	// (ISO-8601-like text), nil when the source carried none
	EventTS *string `json:"event_ts"`

	// UserID identifies the acting user, nil when absent
	UserID *string `json:"user_id"`

	// DocumentID identifies the affected document, nil when absent
	DocumentID *string `json:"document_id"`

	// SessionID identifies the client session, nil when absent
	SessionID *string `json:"session_id"`

	// SourceFile is the identifier of the file this record came from
	SourceFile string `json:"source_file"`

	// RawJSON preserves the original payload verbatim for the bronze table
	RawJSON []byte `json:"-"`
}

// Extracted holds the optional event-specific and document-metadata fields
// pulled out of a record's payload by ordered JSON-path fallbacks.
// A nil field means no candidate path matched.
type Extracted struct {
	Title            *string
	OwnerUserID      *string
	CommentText      *string
	SharedWithUserID *string
	EditCharsDelta   *int64
}
