// Package extract pulls optional event-specific metadata out of raw payloads.
//
// Each target field has an ordered list of candidate JSON paths; candidates
// are evaluated in order and the first non-null match wins. Absence of every
// candidate yields null, never an error, and numeric coercion failures are
// tolerated as null.
package extract

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/quillstream/quillstream/pkg/types"
)

// Candidate paths per target field, in priority order. The nested form
// (emitted by newer collectors) wins over the flat legacy form.
var (
	titlePaths      = []string{"document.title", "title"}
	ownerPaths      = []string{"document.owner_user_id", "owner_user_id", "ownerUserId"}
	commentPaths    = []string{"comment.text", "comment_text"}
	sharedWithPaths = []string{"shared_with_user_id", "sharedWithUserId"}
	editDeltaPaths  = []string{"edit.chars_delta", "edit_chars_delta"}
)

// Fields extracts the optional fields relevant to a record's event type.
// Document metadata candidates apply to any event type carrying a document_id.
func Fields(rec types.Record) types.Extracted {
	var ex types.Extracted

	if rec.DocumentID != nil {
		ex.Title = firstString(rec.RawJSON, titlePaths)
		ex.OwnerUserID = firstString(rec.RawJSON, ownerPaths)
	}

	switch rec.EventType {
	case types.EventTypeCommentAdded:
		ex.CommentText = firstString(rec.RawJSON, commentPaths)
	case types.EventTypeDocumentShared:
		ex.SharedWithUserID = firstString(rec.RawJSON, sharedWithPaths)
	case types.EventTypeDocumentEdit:
		ex.EditCharsDelta = firstInt(rec.RawJSON, editDeltaPaths)
	}

	return ex
}

// firstString returns the first candidate that resolves to a non-empty scalar.
func firstString(raw []byte, paths []string) *string {
	for _, path := range paths {
		res := gjson.GetBytes(raw, path)
		if !res.Exists() || res.Type == gjson.Null {
			continue
		}
		if res.IsObject() || res.IsArray() {
			continue
		}
		s := strings.TrimSpace(res.String())
		if s == "" {
			continue
		}
		return &s
	}
	return nil
}

// firstInt returns the first candidate that coerces to an integer.
// Unparsable values resolve to nil rather than failing the event.
func firstInt(raw []byte, paths []string) *int64 {
	for _, path := range paths {
		res := gjson.GetBytes(raw, path)
		if !res.Exists() || res.Type == gjson.Null {
			continue
		}
		switch res.Type {
		case gjson.Number:
			n := res.Int()
			return &n
		case gjson.String:
			s := strings.TrimSpace(res.String())
			if s == "" {
				continue
			}
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return &n
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				n := int64(f)
				return &n
			}
			// Unparsable candidate: fall through to the next path.
		}
	}
	return nil
}
