package identity

import (
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// TokenSource describes where a BearerToken came from.
type TokenSource string

const (
	// SourceInbound is the validated token of the current request.
	SourceInbound TokenSource = "inbound"
	// SourceCachedFile is the token read from .cognito-token.json.
	SourceCachedFile TokenSource = "cached-file"
	// SourceDynamicExchange is a token from the client-credentials grant.
	SourceDynamicExchange TokenSource = "dynamic-exchange"
)

// BearerToken is an opaque access token with its provenance.
// Treat it as immutable: replace, never mutate.
type BearerToken struct {
	Value      string
	Source     TokenSource
	AcquiredAt time.Time
}

// String never prints the token value.
func (t *BearerToken) String() string {
	if t == nil {
		return "<nil>"
	}
	return string(t.Source) + ":" + Fingerprint(t.Value)
}

// Fingerprint returns a hex xxhash of the token, safe to log.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	return strconv.FormatUint(xxhash.Sum64String(token), 16)
}
