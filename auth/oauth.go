package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/onnwee/chat-tap/telemetry"
)

// expiryMargin mirrors the app-token buffer used elsewhere: a token within
// this window of expiry is refreshed before use.
const expiryMargin = 60 * time.Second

// ErrNoToken indicates OAuth mode was requested but no persisted token exists.
// First-time authorization is an operator step (cmd/oauth-helper), so this is
// a configuration error and must not be retried.
var ErrNoToken = errors.New("no stored oauth token; run oauth-helper to authorize first")

// OAuth is the refreshing credential. The persisted record is loaded once at
// construction; Token refreshes it through the authorization endpoint when it
// nears expiry and saves the new record before returning.
type OAuth struct {
	// Endpoint is the authorization server. Tests point this at a local server.
	Endpoint oauth2.Endpoint

	clientID     string
	clientSecret string
	store        TokenStore

	mu  sync.Mutex
	rec TokenRecord

	now func() time.Time
}

// NewOAuth loads the persisted token from store. A missing or unreadable
// record fails fast: there is nothing to refresh from.
func NewOAuth(clientID, clientSecret string, store TokenStore) (*OAuth, error) {
	rec, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("%w (%v)", ErrNoToken, err)
	}
	return &OAuth{
		Endpoint:     google.Endpoint,
		clientID:     clientID,
		clientSecret: clientSecret,
		store:        store,
		rec:          rec,
		now:          time.Now,
	}, nil
}

func (o *OAuth) Kind() Kind { return KindOAuth }

// Token returns a valid access token, refreshing first when less than
// expiryMargin of lifetime remains. The whole check-refresh-persist sequence
// holds the mutex, so concurrent callers around an expiry boundary observe a
// single token exchange. Refresh and persist failures are not retried here;
// the caller's policy decides what happens next.
func (o *OAuth) Token(ctx context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.rec.Expiry().Sub(o.now()) > expiryMargin {
		return o.rec.AccessToken, nil
	}

	slog.Info("oauth access token near expiry; refreshing", slog.Time("expires_at", o.rec.Expiry()))
	cfg := &oauth2.Config{
		ClientID:     o.clientID,
		ClientSecret: o.clientSecret,
		Endpoint:     o.Endpoint,
	}
	// An already-expired Expiry forces TokenSource into the refresh grant.
	stale := &oauth2.Token{
		AccessToken:  o.rec.AccessToken,
		RefreshToken: o.rec.RefreshToken,
		TokenType:    o.rec.TokenType,
		Expiry:       time.Unix(1, 0),
	}
	fresh, err := cfg.TokenSource(ctx, stale).Token()
	if err != nil {
		return "", fmt.Errorf("oauth token refresh: %w", err)
	}

	rec := TokenRecord{
		AccessToken:  fresh.AccessToken,
		RefreshToken: fresh.RefreshToken,
		TokenType:    fresh.TokenType,
		ExpiresAt:    fresh.Expiry.Unix(),
	}
	// Google omits the refresh token from refresh responses; keep the old one.
	if rec.RefreshToken == "" {
		rec.RefreshToken = o.rec.RefreshToken
	}
	if rec.TokenType == "" {
		rec.TokenType = "Bearer"
	}
	if err := o.store.Save(rec); err != nil {
		return "", fmt.Errorf("persist refreshed oauth token: %w", err)
	}
	o.rec = rec
	if telemetry.TokenRefreshes != nil {
		telemetry.TokenRefreshes.Inc()
	}
	slog.Info("oauth access token refreshed", slog.Time("expires_at", rec.Expiry()))
	return rec.AccessToken, nil
}

// OAuth2TokenSource adapts a Credential to the oauth2.TokenSource shape the
// Google API client expects.
func OAuth2TokenSource(ctx context.Context, c Credential) oauth2.TokenSource {
	return credSource{ctx: ctx, cred: c}
}

type credSource struct {
	ctx  context.Context
	cred Credential
}

func (s credSource) Token() (*oauth2.Token, error) {
	tok, err := s.cred.Token(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: tok, TokenType: "Bearer", Expiry: time.Now().Add(expiryMargin)}, nil
}
