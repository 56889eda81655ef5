// ABOUTME: Unit tests for token pair minting, rotation, and verification
// ABOUTME: Covers secret separation, reserved claim stripping, expiry, and store overwrite

package token

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypersign-protocol/hypersign-auth-go/internal/tokenstore"
)

func newTestIssuer(t *testing.T, accessTTL, refreshTTL time.Duration) (*Issuer, *tokenstore.Memory) {
	t.Helper()
	store := tokenstore.NewMemory()
	t.Cleanup(store.Close)

	issuer := NewIssuer(
		[]byte("access-secret"), []byte("refresh-secret"),
		accessTTL, refreshTTL, store,
	)
	return issuer, store
}

func subjectClaims() Claims {
	return Claims{"id": "did:hs:42", "name": "alice", "email": "alice@example.com"}
}

func TestMint_RoundTrip(t *testing.T) {
	issuer, _ := newTestIssuer(t, time.Minute, time.Hour)

	pair, err := issuer.Mint(subjectClaims())
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	accessClaims, err := issuer.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "did:hs:42", accessClaims.DID())
	assert.Equal(t, "alice", accessClaims["name"])

	refreshClaims, err := issuer.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "did:hs:42", refreshClaims.DID())
}

func TestMint_MissingDID(t *testing.T) {
	issuer, _ := newTestIssuer(t, time.Minute, time.Hour)

	_, err := issuer.Mint(Claims{"name": "alice"})
	assert.ErrorIs(t, err, ErrMissingDID)
}

func TestMint_SecretsAreNotInterchangeable(t *testing.T) {
	issuer, _ := newTestIssuer(t, time.Minute, time.Hour)

	pair, err := issuer.Mint(subjectClaims())
	require.NoError(t, err)

	_, err = issuer.VerifyAccess(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.VerifyRefresh(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMint_StripsReservedClaims(t *testing.T) {
	issuer, _ := newTestIssuer(t, time.Minute, time.Hour)

	stale := subjectClaims()
	stale["iat"] = float64(1000)
	stale["exp"] = float64(2000)
	stale["did"] = "did:hs:42"

	pair, err := issuer.Mint(stale)
	require.NoError(t, err)

	claims, err := issuer.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)

	// iat/exp must be fresh, not the stale embedded values
	iat, ok := claims["iat"].(float64)
	require.True(t, ok)
	assert.Greater(t, iat, float64(2000))
	assert.NotContains(t, claims, "did")
}

func TestVerifyAccess_Expired(t *testing.T) {
	issuer, _ := newTestIssuer(t, -time.Minute, time.Hour)

	pair, err := issuer.Mint(subjectClaims())
	require.NoError(t, err)

	_, err = issuer.VerifyAccess(pair.AccessToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerify_Garbage(t *testing.T) {
	issuer, _ := newTestIssuer(t, time.Minute, time.Hour)

	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := issuer.VerifyAccess(tok)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", tok)
	}
}

func TestRotate_OverwritesStoredToken(t *testing.T) {
	issuer, store := newTestIssuer(t, time.Minute, time.Hour)
	ctx := context.Background()

	first, err := issuer.Rotate(ctx, subjectClaims())
	require.NoError(t, err)

	stored, err := store.Get(ctx, "did:hs:42")
	require.NoError(t, err)
	assert.Equal(t, first.RefreshToken, stored)

	second, err := issuer.Rotate(ctx, subjectClaims())
	require.NoError(t, err)

	stored, err = store.Get(ctx, "did:hs:42")
	require.NoError(t, err)
	assert.Equal(t, second.RefreshToken, stored)
	assert.NotEqual(t, first.RefreshToken, stored)
}
