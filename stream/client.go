package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/onnwee/chat-tap/telemetry"
)

// State is the client's position in its lifecycle. Connecting covers both the
// initial attempt and resume attempts; the two differ only in failure policy.
type State int

const (
	StateConnecting State = iota
	StateStreaming
	StateFaulted
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateFaulted:
		return "faulted"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Status is a point-in-time snapshot for the /status endpoint.
type Status struct {
	RunID      string `json:"run_id"`
	State      string `json:"state"`
	ChatID     string `json:"chat_id"`
	PageToken  string `json:"page_token,omitempty"`
	Pages      uint64 `json:"pages"`
	Messages   uint64 `json:"messages"`
	Reconnects uint64 `json:"reconnects"`
}

// Client owns the live network stream and drives the
// Connecting -> Streaming -> Faulted -> Connecting cycle. Failure policy:
// the very first connection attempt of a run is fail-fast (misconfiguration
// must surface immediately); once a connection has succeeded, every stream
// fault is recoverable and retried forever with a fixed delay. Durability
// failures from the sink are always fatal.
type Client struct {
	Transport     Transport
	Sink          Sink
	ReconnectWait time.Duration

	// Clock defaults to time.Now; injectable for tests.
	Clock func() time.Time

	mu         sync.Mutex
	state      State
	chatID     string
	pageToken  string
	pages      uint64
	messages   uint64
	reconnects uint64
}

// Run consumes the feed from cur until ctx is cancelled (returns nil) or a
// fatal error occurs. The reconnect cycle is an explicit loop with a state
// variable; there is deliberately no recursion and no retry cap.
func (c *Client) Run(ctx context.Context, cur *Cursor) error {
	wait := c.ReconnectWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	now := c.Clock
	if now == nil {
		now = time.Now
	}

	c.setState(StateConnecting, cur)
	ps, err := c.open(ctx, cur)
	if err != nil {
		c.setState(StateTerminated, cur)
		return fmt.Errorf("initial stream connect: %w", err)
	}
	telemetry.SetConnected(true)
	c.setState(StateStreaming, cur)
	slog.Info("stream connected",
		slog.String("chat_id", cur.ChatID),
		slog.String("page_token", cur.PageToken))

	for {
		page, err := ps.Recv()
		if err == nil {
			err = c.deliver(ctx, cur, page, now)
			if err == nil {
				continue
			}
			if !errors.Is(err, ErrTokenRegressed) {
				// Durability failure: the resume point can no longer be
				// trusted, so the run ends here.
				_ = ps.Close()
				telemetry.SetConnected(false)
				c.setState(StateTerminated, cur)
				return err
			}
			// Token regression is surfaced and handled like a stream fault:
			// the cursor kept its last good value and we reconnect from it.
		}

		_ = ps.Close()
		telemetry.SetConnected(false)
		if ctx.Err() != nil {
			c.setState(StateTerminated, cur)
			return nil
		}
		inc(telemetry.StreamFaults)
		c.setState(StateFaulted, cur)
		slog.Warn("stream fault; will reconnect",
			slog.Any("err", err),
			slog.Duration("wait", wait),
			slog.String("resume_page_token", cur.PageToken))

		ps, err = c.reconnect(ctx, cur, wait)
		if err != nil {
			// Only cancellation exits the reconnect loop.
			c.setState(StateTerminated, cur)
			return nil
		}
		telemetry.SetConnected(true)
		c.setState(StateStreaming, cur)
		slog.Info("reconnected", slog.String("page_token", cur.PageToken))
	}
}

// reconnect blocks until a new stream is open or ctx is cancelled. The delay
// precedes every attempt and is aborted immediately on cancellation.
func (c *Client) reconnect(ctx context.Context, cur *Cursor, wait time.Duration) (PageStream, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		c.mu.Lock()
		c.reconnects++
		c.mu.Unlock()
		inc(telemetry.ReconnectAttempts)
		c.setState(StateConnecting, cur)
		slog.Info("reconnect attempt", slog.String("page_token", cur.PageToken))

		ps, err := c.open(ctx, cur)
		if err == nil {
			return ps, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.setState(StateFaulted, cur)
		slog.Warn("reconnect failed", slog.Any("err", err), slog.Duration("wait", wait))
	}
}

// open wraps a connection attempt in a trace span.
func (c *Client) open(ctx context.Context, cur *Cursor) (PageStream, error) {
	sctx, span := telemetry.StartSpan(ctx, "chat-tap", "stream_open")
	defer span.End()
	ps, err := c.Transport.Open(sctx, cur)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return ps, nil
}

// deliver advances the cursor past the page, then appends the record. A
// regressed token aborts before anything is written so the persisted resume
// state never points backwards.
func (c *Client) deliver(ctx context.Context, cur *Cursor, page *Page, now func() time.Time) error {
	if dups := cur.MarkDelivered(page); len(dups) > 0 {
		add(telemetry.DuplicateMessages, len(dups))
		slog.Warn("feed re-delivered message ids already seen this run",
			slog.Int("count", len(dups)),
			slog.String("page_token", cur.PageToken))
	}

	prevToken := cur.PageToken
	if err := cur.Advance(page); err != nil {
		inc(telemetry.TokenRegressions)
		slog.Error("page token regressed; dropping page and reconnecting from last good cursor",
			slog.Any("err", err),
			slog.String("cursor_token", cur.PageToken),
			slog.String("page_token", page.NextPageToken))
		return err
	}

	rec := NewRecord(cur.ChatID, prevToken, page, now().UTC())
	if err := c.Sink.Emit(ctx, rec); err != nil {
		return fmt.Errorf("append output record: %w", err)
	}

	inc(telemetry.PagesEmitted)
	if len(page.Items) == 0 {
		inc(telemetry.EmptyPages)
		slog.Debug("heartbeat page (no items)", slog.String("page_token", cur.PageToken))
	} else {
		add(telemetry.MessagesDelivered, len(page.Items))
	}

	c.mu.Lock()
	c.pages++
	c.messages += uint64(len(page.Items))
	c.pageToken = cur.PageToken
	c.mu.Unlock()
	return nil
}

// Status returns a snapshot of the client's progress.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		RunID:      telemetry.RunID(),
		State:      c.state.String(),
		ChatID:     c.chatID,
		PageToken:  c.pageToken,
		Pages:      c.pages,
		Messages:   c.messages,
		Reconnects: c.reconnects,
	}
}

func (c *Client) setState(s State, cur *Cursor) {
	c.mu.Lock()
	c.state = s
	c.chatID = cur.ChatID
	c.pageToken = cur.PageToken
	c.mu.Unlock()
}

// Metric registration happens in main; tests exercising the client directly
// run with nil counters.
func inc(m prometheus.Counter) {
	if m != nil {
		m.Inc()
	}
}

func add(m prometheus.Counter, n int) {
	if m != nil {
		m.Add(float64(n))
	}
}
