package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/onnwee/chat-tap/auth"
)

// Transport opens a live page stream positioned at a cursor.
type Transport interface {
	Open(ctx context.Context, cur *Cursor) (PageStream, error)
}

// PageStream yields pages until the remote closes the stream (idle timeout)
// or a transport fault occurs. Recv returns io.EOF on an orderly remote close.
type PageStream interface {
	Recv() (*Page, error)
	Close() error
}

// HTTPTransport speaks the liveChat/messages/stream endpoint: one long-lived
// GET whose response body carries a sequence of concatenated JSON page
// objects. The credential is consulted per connection attempt so a refreshed
// OAuth token is always the one on the wire.
type HTTPTransport struct {
	BaseURL    string
	Cred       auth.Credential
	HTTPClient *http.Client
}

func (t *HTTPTransport) http() *http.Client {
	if t.HTTPClient != nil {
		return t.HTTPClient
	}
	return http.DefaultClient
}

func (t *HTTPTransport) Open(ctx context.Context, cur *Cursor) (PageStream, error) {
	if cur == nil || cur.ChatID == "" {
		return nil, fmt.Errorf("cursor has no chat id")
	}
	tok, err := t.Cred.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("credential for stream open: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.BaseURL+"/youtube/v3/liveChat/messages/stream", nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("liveChatId", cur.ChatID)
	q.Set("part", "snippet,authorDetails")
	if cur.PageToken != "" {
		q.Set("pageToken", cur.PageToken)
	}
	req.URL.RawQuery = q.Encode()

	switch t.Cred.Kind() {
	case auth.KindAPIKey:
		req.Header.Set("X-Goog-Api-Key", tok)
	default:
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := t.http().Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("open stream: %s: %s", resp.Status, string(b))
	}
	return &httpPageStream{body: resp.Body, dec: json.NewDecoder(resp.Body), chatID: cur.ChatID}, nil
}

type httpPageStream struct {
	body   io.ReadCloser
	dec    *json.Decoder
	chatID string
}

// wire shapes for the liveChatMessageListResponse payload.
type listResponse struct {
	NextPageToken         string            `json:"nextPageToken"`
	PollingIntervalMillis int64             `json:"pollingIntervalMillis"`
	Items                 []json.RawMessage `json:"items"`
}

type wireItem struct {
	ID      string `json:"id"`
	Snippet struct {
		DisplayMessage string `json:"displayMessage"`
		PublishedAt    string `json:"publishedAt"`
	} `json:"snippet"`
	AuthorDetails struct {
		DisplayName string `json:"displayName"`
	} `json:"authorDetails"`
}

func (s *httpPageStream) Recv() (*Page, error) {
	var wire listResponse
	if err := s.dec.Decode(&wire); err != nil {
		return nil, err
	}
	page := &Page{
		ChatID:             s.chatID,
		NextPageToken:      wire.NextPageToken,
		PollIntervalMillis: wire.PollingIntervalMillis,
		Items:              make([]Message, 0, len(wire.Items)),
	}
	for _, raw := range wire.Items {
		var it wireItem
		if err := json.Unmarshal(raw, &it); err != nil {
			return nil, fmt.Errorf("decode page item: %w", err)
		}
		msg := Message{
			ID:     it.ID,
			Author: it.AuthorDetails.DisplayName,
			Text:   it.Snippet.DisplayMessage,
			Raw:    raw,
		}
		if it.Snippet.PublishedAt != "" {
			if ts, err := time.Parse(time.RFC3339Nano, it.Snippet.PublishedAt); err == nil {
				msg.PublishedAt = ts
			}
		}
		page.Items = append(page.Items, msg)
	}
	return page, nil
}

func (s *httpPageStream) Close() error { return s.body.Close() }
