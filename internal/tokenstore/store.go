// ABOUTME: Refresh token storage interface keyed by subject DID
// ABOUTME: One active token per subject; entries expire after their TTL

package tokenstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates no live refresh token exists for the subject.
// Expired entries are indistinguishable from absent ones.
var ErrNotFound = errors.New("refresh token not found")

// Store maps a subject DID to its currently valid refresh token. Set
// unconditionally overwrites, so issuing a new token invalidates the old one.
// Implementations must be safe for concurrent use and atomic per key.
type Store interface {
	Set(ctx context.Context, did, token string, ttl time.Duration) error
	Get(ctx context.Context, did string) (string, error)
	Delete(ctx context.Context, did string) error
}
