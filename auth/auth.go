// Package auth supplies the per-request credential for YouTube API calls.
//
// Two mutually exclusive modes exist per process:
//   - StaticKey: an API key, immutable for the process lifetime.
//   - OAuth: a user token persisted in a small JSON file, refreshed through
//     the authorization endpoint when it nears expiry and written back to the
//     file before the new token is handed out.
package auth

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Kind discriminates how a credential is attached to an outgoing request.
type Kind int

const (
	// KindAPIKey credentials go into the x-goog-api-key header (or key query param).
	KindAPIKey Kind = iota
	// KindOAuth credentials go into the Authorization header as a Bearer token.
	KindOAuth
)

func (k Kind) String() string {
	switch k {
	case KindAPIKey:
		return "apikey"
	case KindOAuth:
		return "oauth"
	default:
		return "unknown"
	}
}

// Credential yields a usable token for the next request. Implementations must
// be safe for concurrent use.
type Credential interface {
	Token(ctx context.Context) (string, error)
	Kind() Kind
}

// StaticKey is the API-key credential. It never changes and never fails.
type StaticKey string

func (s StaticKey) Token(ctx context.Context) (string, error) { return string(s), nil }

func (s StaticKey) Kind() Kind { return KindAPIKey }

// StaticKeyFromFile reads an API key from path, trimming surrounding whitespace.
func StaticKeyFromFile(path string) (StaticKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read api key file %q: %w", path, err)
	}
	key := strings.TrimSpace(string(b))
	if key == "" {
		return "", fmt.Errorf("api key file %q is empty", path)
	}
	return StaticKey(key), nil
}
