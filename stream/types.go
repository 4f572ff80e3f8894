// Package stream implements the resumable live-chat streaming engine: the
// pagination cursor, the page transport, and the reconnecting client that
// survives mid-stream faults without losing or duplicating pages.
package stream

import (
	"context"
	"encoding/json"
	"time"
)

// Message is one chat message as delivered by the feed. ID is unique within a
// feed and is what downstream consumers de-duplicate on. Raw preserves the
// full wire payload for consumers that need fields this client does not model.
type Message struct {
	ID          string          `json:"id"`
	Author      string          `json:"author"`
	Text        string          `json:"text"`
	PublishedAt time.Time       `json:"published_at"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// Page is one response unit from the stream endpoint. Empty Items is a valid
// heartbeat, not a termination signal.
type Page struct {
	ChatID             string
	NextPageToken      string
	PollIntervalMillis int64
	Items              []Message
}

// Record is the persisted form of a Page: one output record per delivered
// page. PageToken is the cursor value that requested the page and
// NextPageToken the forwarding token it returned, so every record is
// self-describing enough to reconstruct the cursor on resume.
type Record struct {
	ChatID        string    `json:"chat_id"`
	PageToken     string    `json:"page_token,omitempty"`
	NextPageToken string    `json:"next_page_token,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
	Items         []Message `json:"items"`
}

// NewRecord builds the Record for a delivered page. pageToken is the cursor
// value before the page advanced it.
func NewRecord(chatID, pageToken string, page *Page, receivedAt time.Time) *Record {
	items := page.Items
	if items == nil {
		items = []Message{}
	}
	return &Record{
		ChatID:        chatID,
		PageToken:     pageToken,
		NextPageToken: page.NextPageToken,
		ReceivedAt:    receivedAt,
		Items:         items,
	}
}

// Sink is the durable output boundary. Emit appends exactly one record per
// page; a failure means the resume point can no longer be trusted and is
// fatal to the run. LastRecord returns the most recently emitted record, or
// nil when the target is empty or missing.
type Sink interface {
	Emit(ctx context.Context, rec *Record) error
	LastRecord(ctx context.Context) (*Record, error)
	Close() error
}
