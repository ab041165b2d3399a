// Package checkpoint persists the set of already-ingested source files as an
// append-only, human-inspectable text file. A file is marked only after its
// events are durably committed; losing a mark is therefore safe (the file is
// reprocessed and the warehouse upserts make that a no-op), but a mark once
// written must never be lost, so every append is fsynced.
package checkpoint

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"
)

// Entry is one checkpoint record.
type Entry struct {
	FileID      string
	ContentHash string
	MarkedAt    time.Time
}

// Store is the append-only checkpoint store. Safe for use from a single
// process; concurrent runs against the same file are not supported.
type Store struct {
	path     string
	file     *os.File
	mu       sync.Mutex
	ingested map[string]string // fileID -> content hash
}

// Open reads any existing checkpoint entries and opens the file for appending.
// A missing file means a fresh start.
func Open(path string) (*Store, error) {
	s := &Store{
		path:     path,
		ingested: make(map[string]string),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: failed to open %s: %w", path, err)
	}
	s.file = f

	return s, nil
}

// load reads existing entries. Lines are fileID<TAB>hash<TAB>timestamp;
// older entries with fewer fields are tolerated (first field wins).
func (s *Store) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("checkpoint: failed to read %s: %w", s.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		id := fields[0]
		hash := ""
		if len(fields) > 1 {
			hash = fields[1]
		}
		// Duplicate marks are harmless; last one wins.
		s.ingested[id] = hash
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("checkpoint: failed to scan %s: %w", s.path, err)
	}
	return nil
}

// Contains reports whether a file has already been ingested.
func (s *Store) Contains(fileID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ingested[fileID]
	return ok
}

// Len returns the number of distinct ingested files.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ingested)
}

// ContentHash returns the recorded content hash for a file, if any.
// The hash is audit metadata: discovery never re-opens checkpointed files.
func (s *Store) ContentHash(fileID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.ingested[fileID]
	return h, ok && h != ""
}

// Mark appends a checkpoint entry for a fully committed file and fsyncs.
// Call only after the file's events are durably committed.
func (s *Store) Mark(fileID string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("checkpoint: store is closed")
	}

	hash := Hash(content)
	line := fmt.Sprintf("%s\t%s\t%s\n", fileID, hash, time.Now().UTC().Format(time.RFC3339))

	if _, err := s.file.WriteString(line); err != nil {
		return fmt.Errorf("checkpoint: failed to append mark for %s: %w", fileID, err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("checkpoint: failed to sync mark for %s: %w", fileID, err)
	}

	s.ingested[fileID] = hash
	return nil
}

// Close closes the underlying file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Hash returns the murmur3-64 hash of content as fixed-width hex.
func Hash(content []byte) string {
	return fmt.Sprintf("%016x", murmur3.Sum64(content))
}
