// Package youtubeapi wraps the YouTube Data API for the single purpose of
// translating a public video id into its active live chat id. The lookup runs
// once per process; when a chat id is recovered from existing output during
// resume it is trusted as-is and this package is never called.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/chat-tap/auth"
)

var (
	// ErrVideoNotFound means the API returned no video for the given id.
	ErrVideoNotFound = errors.New("no video found with the given id")
	// ErrNotLive means the video exists but carries no active live chat
	// (not a live broadcast, or the broadcast has ended).
	ErrNotLive = errors.New("video has no active live chat")
)

// Resolver performs the videos.list lookup. There is no retry here: a failed
// resolution at startup is fatal by contract.
type Resolver struct {
	svc *yt.Service
}

// NewResolver builds the API client with the configured credential. baseURL
// overrides the Google endpoint for tests and proxies; empty means production.
func NewResolver(ctx context.Context, cred auth.Credential, baseURL string) (*Resolver, error) {
	opts := []option.ClientOption{}
	if baseURL != "" {
		opts = append(opts, option.WithEndpoint(baseURL))
	}
	switch cred.Kind() {
	case auth.KindAPIKey:
		key, err := cred.Token(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithAPIKey(key))
	default:
		opts = append(opts, option.WithTokenSource(auth.OAuth2TokenSource(ctx, cred)))
	}
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("build youtube client: %w", err)
	}
	return &Resolver{svc: svc}, nil
}

// ResolveLiveChatID looks up the active live chat id for videoID.
func (r *Resolver) ResolveLiveChatID(ctx context.Context, videoID string) (string, error) {
	if videoID == "" {
		return "", errors.New("video id empty")
	}
	res, err := r.svc.Videos.List([]string{"liveStreamingDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("videos.list for %q: %w", videoID, err)
	}
	if len(res.Items) == 0 {
		return "", fmt.Errorf("%w: %q", ErrVideoNotFound, videoID)
	}
	details := res.Items[0].LiveStreamingDetails
	if details == nil || details.ActiveLiveChatId == "" {
		return "", fmt.Errorf("%w: %q", ErrNotLive, videoID)
	}
	return details.ActiveLiveChatId, nil
}
