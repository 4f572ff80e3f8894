package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func writeTokenFile(t *testing.T, rec TokenRecord) *FileTokenStore {
	t.Helper()
	store := &FileTokenStore{Path: filepath.Join(t.TempDir(), "token.json")}
	if err := store.Save(rec); err != nil {
		t.Fatalf("seed token file: %v", err)
	}
	return store
}

func authServer(t *testing.T, calls *atomic.Int32, accessToken string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": accessToken,
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewOAuthMissingFile(t *testing.T) {
	store := &FileTokenStore{Path: filepath.Join(t.TempDir(), "absent.json")}
	if _, err := NewOAuth("cid", "secret", store); err == nil {
		t.Fatal("expected error for missing token file")
	}
}

func TestTokenFreshNoRefresh(t *testing.T) {
	var calls atomic.Int32
	srv := authServer(t, &calls, "never-used")
	store := writeTokenFile(t, TokenRecord{
		AccessToken:  "cached",
		RefreshToken: "rt",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
	})
	o, err := NewOAuth("cid", "secret", store)
	if err != nil {
		t.Fatalf("NewOAuth: %v", err)
	}
	o.Endpoint = oauth2.Endpoint{TokenURL: srv.URL + "/token"}

	tok, err := o.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok != "cached" {
		t.Errorf("Token = %q, want cached", tok)
	}
	if calls.Load() != 0 {
		t.Errorf("token exchange calls = %d, want 0", calls.Load())
	}
}

func TestTokenRefreshSingleExchangeUnderConcurrency(t *testing.T) {
	var calls atomic.Int32
	srv := authServer(t, &calls, "fresh-token")
	store := writeTokenFile(t, TokenRecord{
		AccessToken:  "stale",
		RefreshToken: "rt",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(-time.Minute).Unix(),
	})
	o, err := NewOAuth("cid", "secret", store)
	if err != nil {
		t.Fatalf("NewOAuth: %v", err)
	}
	o.Endpoint = oauth2.Endpoint{TokenURL: srv.URL + "/token"}

	var wg sync.WaitGroup
	results := make([]string, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = o.Token(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Fatalf("Token[%d]: %v", i, errs[i])
		}
		if results[i] != "fresh-token" {
			t.Errorf("Token[%d] = %q, want fresh-token", i, results[i])
		}
	}
	if calls.Load() != 1 {
		t.Errorf("token exchange calls = %d, want exactly 1", calls.Load())
	}
}

func TestTokenRefreshPersistsRecord(t *testing.T) {
	var calls atomic.Int32
	srv := authServer(t, &calls, "fresh-token")
	store := writeTokenFile(t, TokenRecord{
		AccessToken:  "stale",
		RefreshToken: "keep-me",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(-time.Minute).Unix(),
	})
	o, err := NewOAuth("cid", "secret", store)
	if err != nil {
		t.Fatalf("NewOAuth: %v", err)
	}
	o.Endpoint = oauth2.Endpoint{TokenURL: srv.URL + "/token"}

	if _, err := o.Token(context.Background()); err != nil {
		t.Fatalf("Token: %v", err)
	}

	rec, err := store.Load()
	if err != nil {
		t.Fatalf("reload token file: %v", err)
	}
	if rec.AccessToken != "fresh-token" {
		t.Errorf("persisted access_token = %q, want fresh-token", rec.AccessToken)
	}
	// Refresh responses omit the refresh token; the stored one must survive.
	if rec.RefreshToken != "keep-me" {
		t.Errorf("persisted refresh_token = %q, want keep-me", rec.RefreshToken)
	}
	if rec.Expiry().Before(time.Now().Add(30 * time.Minute)) {
		t.Errorf("persisted expires_at %v not advanced", rec.Expiry())
	}
}

func TestTokenRefreshFailurePropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()
	store := writeTokenFile(t, TokenRecord{
		AccessToken:  "stale",
		RefreshToken: "revoked",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(-time.Minute).Unix(),
	})
	o, err := NewOAuth("cid", "secret", store)
	if err != nil {
		t.Fatalf("NewOAuth: %v", err)
	}
	o.Endpoint = oauth2.Endpoint{TokenURL: srv.URL + "/token"}

	if _, err := o.Token(context.Background()); err == nil {
		t.Fatal("expected refresh failure to propagate")
	}
	// The stored record must be untouched after a failed refresh.
	rec, err := store.Load()
	if err != nil {
		t.Fatalf("reload token file: %v", err)
	}
	if rec.AccessToken != "stale" || rec.RefreshToken != "revoked" {
		t.Errorf("token file changed after failed refresh: %+v", rec)
	}
}

func TestStaticKey(t *testing.T) {
	k := StaticKey("abc")
	tok, err := k.Token(context.Background())
	if err != nil || tok != "abc" {
		t.Errorf("Token = %q, %v; want abc, nil", tok, err)
	}
	if k.Kind() != KindAPIKey {
		t.Errorf("Kind = %v, want KindAPIKey", k.Kind())
	}
}
