// Package event parses raw source-file bytes into validated records.
//
// A source file holds either a single JSON event object or an array of event
// objects. JSONL is intentionally not supported. Validation is strict at the
// file level: one malformed record fails the whole file, which keeps the
// per-file warehouse transaction all-or-nothing.
package event

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	pkgerrors "github.com/quillstream/quillstream/internal/errors"
	"github.com/quillstream/quillstream/pkg/types"
)

// Ordered fallback candidates for the event timestamp.
var timestampCandidates = []string{"event_ts", "timestamp", "event_timestamp", "ts", "time"}

// ParseFile turns one file's bytes into validated records.
// Returns a PipelineError with category PARSE on any malformed content;
// such errors fail the file but never the run.
func ParseFile(data []byte, sourceFile string) ([]types.Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, pkgerrors.NewParseError(pkgerrors.CodeMalformedRecord, "empty file")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber() // keep numeric IDs verbatim instead of float64 round-trips

	var parsed interface{}
	if err := dec.Decode(&parsed); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrCategoryParse, pkgerrors.CodeMalformedRecord, "invalid JSON", err)
	}

	switch v := parsed.(type) {
	case map[string]interface{}:
		rec, err := buildRecord(v, trimmed, sourceFile, -1)
		if err != nil {
			return nil, err
		}
		return []types.Record{rec}, nil

	case []interface{}:
		records := make([]types.Record, 0, len(v))
		for i, elem := range v {
			obj, ok := elem.(map[string]interface{})
			if !ok {
				return nil, pkgerrors.NewParseError(pkgerrors.CodeMalformedRecord,
					fmt.Sprintf("record %d: not a JSON object", i))
			}
			raw, err := json.Marshal(obj)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.ErrCategoryParse, pkgerrors.CodeMalformedRecord,
					fmt.Sprintf("record %d: cannot re-encode payload", i), err)
			}
			rec, err := buildRecord(obj, raw, sourceFile, i)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
		return records, nil

	default:
		return nil, pkgerrors.NewParseError(pkgerrors.CodeMalformedRecord, "JSON is not an object or array of objects")
	}
}

// buildRecord validates one decoded event object. idx is the position within
// an array file, or -1 for a single-object file (used only for messages).
func buildRecord(obj map[string]interface{}, raw []byte, sourceFile string, idx int) (types.Record, error) {
	eventID := toString(obj["event_id"])
	if eventID == nil {
		return types.Record{}, missingField("event_id", idx)
	}

	eventType := toString(obj["event_type"])
	if eventType == nil {
		return types.Record{}, missingField("event_type", idx)
	}
	normalizedType := strings.ToLower(*eventType)

	rec := types.Record{
		EventID:    *eventID,
		EventType:  normalizedType,
		EventTS:    firstTimestamp(obj),
		UserID:     firstString(obj, "user_id", "userId", "uid"),
		DocumentID: firstString(obj, "document_id", "documentId", "doc_id"),
		SessionID:  firstString(obj, "session_id", "sessionId"),
		SourceFile: sourceFile,
		RawJSON:    raw,
	}
	return rec, nil
}

func missingField(field string, idx int) error {
	msg := fmt.Sprintf("missing required field %s", field)
	if idx >= 0 {
		msg = fmt.Sprintf("record %d: %s", idx, msg)
	}
	return pkgerrors.NewParseError(pkgerrors.CodeMissingRequiredField, msg)
}

// firstTimestamp returns the first non-empty timestamp candidate as text.
func firstTimestamp(obj map[string]interface{}) *string {
	for _, key := range timestampCandidates {
		if s := toString(obj[key]); s != nil {
			return s
		}
	}
	return nil
}

// firstString returns the first non-empty value among the given keys.
func firstString(obj map[string]interface{}, keys ...string) *string {
	for _, key := range keys {
		if s := toString(obj[key]); s != nil {
			return s
		}
	}
	return nil
}

// toString converts a scalar value to a trimmed string, or nil when the value
// is absent, null, or trims to empty. Numbers pass through in their source
// form (json.Number); objects and arrays are not valid scalar fields.
func toString(v interface{}) *string {
	var s string
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s = t
	case json.Number:
		s = t.String()
	case bool:
		s = fmt.Sprintf("%t", t)
	default:
		return nil
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
