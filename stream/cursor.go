package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedRecord means a persisted record cannot seed a cursor; the
	// caller falls back to fresh chat-id resolution.
	ErrMalformedRecord = errors.New("output record missing fields required for resume")
	// ErrTokenRegressed means the feed returned a page token that moves the
	// cursor backwards. Forward-or-equal is the only valid progression.
	ErrTokenRegressed = errors.New("page token moved backwards")
)

const (
	// deliveredWindow bounds the set of message ids remembered for duplicate
	// detection across reconnects.
	deliveredWindow = 4096
	// tokenWindow bounds the set of past page tokens used to detect rewinds.
	// Tokens are opaque, so a regression is only detectable as a return to a
	// recently seen value.
	tokenWindow = 64
)

// Cursor is the pagination/resume state: which feed, where in it, and which
// message ids were already delivered (bounded window, in-memory only). An
// empty PageToken means start of feed. The cursor only moves forward; it is
// owned and mutated by a single Client between reconnect cycles.
type Cursor struct {
	ChatID    string
	PageToken string

	delivered *ringSet
	past      *ringSet
}

// NewCursor starts a cursor at the beginning of the given feed.
func NewCursor(chatID string) *Cursor {
	return &Cursor{
		ChatID:    chatID,
		delivered: newRingSet(deliveredWindow),
		past:      newRingSet(tokenWindow),
	}
}

// CursorFromRecord reconstructs the cursor a restarted process should resume
// from, using the last persisted output record.
func CursorFromRecord(rec *Record) (*Cursor, error) {
	if rec == nil || rec.ChatID == "" {
		return nil, ErrMalformedRecord
	}
	c := NewCursor(rec.ChatID)
	c.PageToken = rec.NextPageToken
	return c, nil
}

// Advance moves the cursor to the page's forwarding token. A token equal to
// the current one signals "no progress yet" and is accepted. A return to an
// earlier token, or a rewind to start-of-feed, fails with ErrTokenRegressed
// and leaves the cursor at its last good value.
func (c *Cursor) Advance(page *Page) error {
	next := page.NextPageToken
	if next == c.PageToken {
		return nil
	}
	if next == "" {
		return fmt.Errorf("%w: token rewound to start of feed from %q", ErrTokenRegressed, c.PageToken)
	}
	if c.past.contains(next) {
		return fmt.Errorf("%w: %q was already consumed", ErrTokenRegressed, next)
	}
	if c.PageToken != "" {
		c.past.add(c.PageToken)
	}
	c.PageToken = next
	return nil
}

// MarkDelivered records the page's message ids in the delivered window and
// returns any ids that were already delivered this run. Duplicates indicate a
// remote pagination anomaly; they are reported, not suppressed.
func (c *Cursor) MarkDelivered(page *Page) []string {
	var dups []string
	for _, m := range page.Items {
		if m.ID == "" {
			continue
		}
		if c.delivered.contains(m.ID) {
			dups = append(dups, m.ID)
			continue
		}
		c.delivered.add(m.ID)
	}
	return dups
}

// ringSet is a bounded insertion-ordered set; adding beyond capacity evicts
// the oldest entry.
type ringSet struct {
	cap   int
	order []string
	index map[string]struct{}
}

func newRingSet(capacity int) *ringSet {
	return &ringSet{cap: capacity, index: make(map[string]struct{}, capacity)}
}

func (r *ringSet) contains(s string) bool {
	_, ok := r.index[s]
	return ok
}

func (r *ringSet) add(s string) {
	if r.contains(s) {
		return
	}
	if len(r.order) >= r.cap {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.index, oldest)
	}
	r.order = append(r.order, s)
	r.index[s] = struct{}{}
}
