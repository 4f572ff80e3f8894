// Package main provides a CLI tool for first-time OAuth authorization.
//
// It runs the authorization-code flow with PKCE: opens a consent URL, waits
// for the redirect on a local callback server, exchanges the code, and writes
// the resulting token file for the main binary to refresh from.
//
// Usage:
//
//	oauth-helper [--listen ADDR] [--out FILE]
//
// Environment Variables:
//
//	OAUTH_CLIENT_ID:     OAuth client id (required)
//	OAUTH_CLIENT_SECRET: OAuth client secret (required)
//
// Example:
//
//	export OAUTH_CLIENT_ID=...
//	export OAUTH_CLIENT_SECRET=...
//	./oauth-helper --out token.json
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/onnwee/chat-tap/auth"
)

const scope = "https://www.googleapis.com/auth/youtube.readonly"

func main() {
	listen := flag.String("listen", "localhost:8089", "address for the local OAuth callback server")
	out := flag.String("out", "token.json", "path to write the token file")
	flag.Parse()

	_ = godotenv.Load(".env")
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	clientID := os.Getenv("OAUTH_CLIENT_ID")
	clientSecret := os.Getenv("OAUTH_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		slog.Error("OAUTH_CLIENT_ID and OAUTH_CLIENT_SECRET are required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	tok, err := authorize(ctx, clientID, clientSecret, *listen)
	if err != nil {
		slog.Error("authorization failed", slog.Any("err", err))
		os.Exit(1)
	}
	if tok.RefreshToken == "" {
		slog.Error("authorization response carried no refresh token; revoke prior access and retry")
		os.Exit(1)
	}

	store := &auth.FileTokenStore{Path: *out}
	rec := auth.TokenRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry.Unix(),
	}
	if rec.TokenType == "" {
		rec.TokenType = "Bearer"
	}
	if err := store.Save(rec); err != nil {
		slog.Error("failed to write token file", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("token file written", slog.String("path", *out), slog.Time("expires_at", tok.Expiry))
}

// authorize runs the browser consent flow and returns the exchanged token.
func authorize(ctx context.Context, clientID, clientSecret, listen string) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", listen, err)
	}
	defer func() {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			slog.Warn("failed to close callback listener", slog.Any("err", err))
		}
	}()

	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  fmt.Sprintf("http://%s/callback", ln.Addr().String()),
		Scopes:       []string{scope},
	}

	state, err := randomState()
	if err != nil {
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()

	type result struct {
		code string
		err  error
	}
	results := make(chan result, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			results <- result{err: errors.New("oauth state mismatch")}
			return
		}
		if e := q.Get("error"); e != "" {
			http.Error(w, "authorization denied", http.StatusBadRequest)
			results <- result{err: fmt.Errorf("authorization denied: %s", e)}
			return
		}
		fmt.Fprintln(w, "Authorized. You can close this tab.")
		results <- result{code: q.Get("code")}
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("callback server error", slog.Any("err", err))
		}
	}()
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer scancel()
		_ = srv.Shutdown(sctx)
	}()

	url := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	)
	fmt.Printf("Open this URL in your browser:\n\n%s\n\n", url)

	var res result
	select {
	case res = <-results:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for authorization: %w", ctx.Err())
	}
	if res.err != nil {
		return nil, res.err
	}
	if res.code == "" {
		return nil, errors.New("callback carried no authorization code")
	}

	tok, err := cfg.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("code exchange: %w", err)
	}
	return tok, nil
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
