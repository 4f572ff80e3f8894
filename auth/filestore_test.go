package auth

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestFileTokenStoreRoundTrip(t *testing.T) {
	store := &FileTokenStore{Path: filepath.Join(t.TempDir(), "token.json")}
	in := TokenRecord{
		AccessToken:  "at",
		RefreshToken: "rt",
		TokenType:    "Bearer",
		ExpiresAt:    1700000000,
	}
	if err := store.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out != in {
		t.Errorf("Load = %+v, want %+v", out, in)
	}
}

func TestFileTokenStorePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions only")
	}
	store := &FileTokenStore{Path: filepath.Join(t.TempDir(), "token.json")}
	if err := store.Save(TokenRecord{AccessToken: "at", RefreshToken: "rt", TokenType: "Bearer", ExpiresAt: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	fi, err := os.Stat(store.Path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := fi.Mode().Perm(); perm != 0o600 {
		t.Errorf("token file mode = %o, want 600", perm)
	}
}

func TestFileTokenStoreOverwriteKeepsOldOnFailure(t *testing.T) {
	store := &FileTokenStore{Path: filepath.Join(t.TempDir(), "token.json")}
	if err := store.Save(TokenRecord{AccessToken: "old", RefreshToken: "rt", TokenType: "Bearer", ExpiresAt: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Overwrite succeeds atomically.
	if err := store.Save(TokenRecord{AccessToken: "new", RefreshToken: "rt", TokenType: "Bearer", ExpiresAt: 2}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	rec, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.AccessToken != "new" {
		t.Errorf("AccessToken = %q, want new", rec.AccessToken)
	}
	// No stray temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(store.Path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("dir entries = %d, want only the token file", len(entries))
	}
}

func TestFileTokenStoreLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	store := &FileTokenStore{Path: path}
	if _, err := store.Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFileTokenStoreLoadIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(path, []byte(`{"access_token":"at"}`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	store := &FileTokenStore{Path: path}
	if _, err := store.Load(); err == nil {
		t.Fatal("expected error for record missing refresh_token")
	}
}
