package outputlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/onnwee/chat-tap/stream"
)

// Writer emits records as JSON lines to an arbitrary writer (typically
// stdout). It offers no resume state: LastRecord always reports an empty
// target.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

func (s *Writer) Emit(ctx context.Context, rec *stream.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode output record: %w", err)
	}
	b = append(b, '\n')
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(b); err != nil {
		return fmt.Errorf("write output record: %w", err)
	}
	return nil
}

func (s *Writer) LastRecord(ctx context.Context) (*stream.Record, error) { return nil, nil }

func (s *Writer) Close() error { return nil }
