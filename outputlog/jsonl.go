// Package outputlog provides the durable, append-only output sinks: a JSONL
// file (the default) and a Postgres table. Both persist one record per
// delivered page and can hand back the most recent record so a restarted
// process resumes exactly where the previous one stopped.
package outputlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/onnwee/chat-tap/stream"
)

// maxRecordSize bounds a single output line during resume scanning. Pages are
// small, but a burst page with raw payloads can exceed bufio's default.
const maxRecordSize = 16 << 20

// JSONL appends records to a file, one JSON object per line. Each record is
// written with a single Write call so an interrupt never leaves a partial
// line, and synced so the resume point survives a crash.
type JSONL struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

// OpenJSONL opens (creating if needed) the output file for appending.
func OpenJSONL(path string) (*JSONL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file %q: %w", path, err)
	}
	return &JSONL{path: path, f: f}, nil
}

func (s *JSONL) Emit(ctx context.Context, rec *stream.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode output record: %w", err)
	}
	b = append(b, '\n')
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(b); err != nil {
		return fmt.Errorf("append to %q: %w", s.path, err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync %q: %w", s.path, err)
	}
	return nil
}

// LastRecord returns the last non-empty line parsed as a record, or nil when
// the file is missing or empty. A line that cannot be parsed is reported as
// stream.ErrMalformedRecord so the caller can fall back to fresh resolution.
func (s *JSONL) LastRecord(ctx context.Context) (*stream.Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %q for resume: %w", s.path, err)
	}
	defer f.Close()

	var last string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64<<10), maxRecordSize)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			last = line
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan %q for resume: %w", s.path, err)
	}
	if last == "" {
		return nil, nil
	}
	var rec stream.Record
	if err := json.Unmarshal([]byte(last), &rec); err != nil {
		return nil, fmt.Errorf("%w: parse last line of %q: %v", stream.ErrMalformedRecord, s.path, err)
	}
	return &rec, nil
}

func (s *JSONL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
