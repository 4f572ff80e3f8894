package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TokenRecord is the persisted form of an OAuth token. The expires_at field is
// a Unix timestamp in seconds.
type TokenRecord struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Expiry returns ExpiresAt as a time.Time.
func (r TokenRecord) Expiry() time.Time { return time.Unix(r.ExpiresAt, 0) }

// TokenStore abstracts where the OAuth token record lives so refresh logic is
// testable without real files.
type TokenStore interface {
	Load() (TokenRecord, error)
	Save(TokenRecord) error
}

// FileTokenStore persists the token record as JSON in a single file. Save is
// atomic (temp file + rename) so a crash mid-write leaves the previous record
// intact, and the file is restricted to the owner.
type FileTokenStore struct {
	Path string
}

func (s *FileTokenStore) Load() (TokenRecord, error) {
	var rec TokenRecord
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return rec, fmt.Errorf("read oauth token file %q: %w", s.Path, err)
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		return rec, fmt.Errorf("parse oauth token file %q: %w", s.Path, err)
	}
	if rec.AccessToken == "" || rec.RefreshToken == "" {
		return rec, fmt.Errorf("oauth token file %q missing access_token or refresh_token", s.Path)
	}
	return rec, nil
}

func (s *FileTokenStore) Save(rec TokenRecord) error {
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.Path)
	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("create temp token file in %q: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp token file: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp token file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		return fmt.Errorf("replace oauth token file %q: %w", s.Path, err)
	}
	return nil
}
