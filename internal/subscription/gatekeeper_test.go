// ABOUTME: Tests for the subscription gatekeeper state machine
// ABOUTME: Covers token caching, expired-token retry, and fatal rejection paths

package subscription

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypersign-protocol/hypersign-auth-go/internal/credential"
)

// fakeVerifier implements credential.Verifier for gatekeeper tests. Only the
// presentation methods are exercised here.
type fakeVerifier struct {
	signCalls atomic.Int64
}

func (f *fakeVerifier) VerifyPresentation(context.Context, credential.VerifyRequest) (bool, error) {
	return false, nil
}

func (f *fakeVerifier) GenerateCredential(context.Context, string, map[string]any) (*credential.VerifiableCredential, error) {
	return nil, nil
}

func (f *fakeVerifier) SignCredential(_ context.Context, vc *credential.VerifiableCredential, _ credential.KeyPair) (*credential.VerifiableCredential, error) {
	return vc, nil
}

func (f *fakeVerifier) GeneratePresentation(_ context.Context, vc *credential.VerifiableCredential, _ string) (*credential.Presentation, error) {
	return &credential.Presentation{
		VerifiableCredential: []credential.VerifiableCredential{*vc},
	}, nil
}

func (f *fakeVerifier) SignPresentation(_ context.Context, vp *credential.Presentation, _ credential.KeyPair, challenge string) (*credential.Presentation, error) {
	f.signCalls.Add(1)
	signed := *vp
	signed.Proof = credential.Proof{Challenge: challenge}
	return &signed, nil
}

func appCredential() *credential.VerifiableCredential {
	return &credential.VerifiableCredential{
		CredentialSubject: map[string]any{"id": "did:hs:app"},
	}
}

func newGatekeeper(t *testing.T, handler http.HandlerFunc) (*Gatekeeper, *fakeVerifier) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	verifier := &fakeVerifier{}
	gk := New(verifier, appCredential(), credential.KeyPair{PublicKeyID: "did:hs:app#key-1"}, srv.URL, slog.Default())
	return gk, verifier
}

func respond(w http.ResponseWriter, status int, body verifyResponse) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestCheck_SelfPresentation_CachesToken(t *testing.T) {
	gk, verifier := newGatekeeper(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, verifyResponse{Message: "api-token-1"})
	})

	require.NoError(t, gk.Check(context.Background()))
	assert.True(t, gk.IsValid())
	assert.Equal(t, "api-token-1", gk.cachedToken())
	assert.Equal(t, int64(1), verifier.signCalls.Load())

	// Second check reuses the cached token; no new presentation is signed.
	require.NoError(t, gk.Check(context.Background()))
	assert.Equal(t, int64(1), verifier.signCalls.Load())
}

func TestCheck_CachedTokenAccepted(t *testing.T) {
	var sawToken atomic.Value
	gk, _ := newGatekeeper(t, func(w http.ResponseWriter, r *http.Request) {
		sawToken.Store(r.URL.Query().Get("apiAuthToken"))
		respond(w, http.StatusOK, verifyResponse{})
	})
	gk.markVerified("cached-token")

	require.NoError(t, gk.Check(context.Background()))
	assert.Equal(t, "cached-token", sawToken.Load())
}

func TestCheck_ExpiredToken_RetriesOnce(t *testing.T) {
	var calls atomic.Int64
	gk, verifier := newGatekeeper(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// First call carries the stale cached token
			respond(w, http.StatusForbidden, verifyResponse{})
			return
		}
		respond(w, http.StatusOK, verifyResponse{Message: "fresh-token"})
	})
	gk.markVerified("stale-token")

	require.NoError(t, gk.Check(context.Background()))
	assert.Equal(t, int64(2), calls.Load())
	assert.Equal(t, int64(1), verifier.signCalls.Load())
	assert.Equal(t, "fresh-token", gk.cachedToken())
}

func TestCheck_ExpiredThenUnauthorized_Fatal(t *testing.T) {
	var calls atomic.Int64
	gk, verifier := newGatekeeper(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			respond(w, http.StatusForbidden, verifyResponse{})
			return
		}
		respond(w, http.StatusUnauthorized, verifyResponse{})
	})
	gk.markVerified("stale-token")

	err := gk.Check(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorizedAccess)
	// Retried exactly once, never a second time
	assert.Equal(t, int64(2), calls.Load())
	assert.Equal(t, int64(1), verifier.signCalls.Load())
	assert.False(t, gk.IsValid())
}

func TestCheck_SelfPresentationUnauthorized_Fatal(t *testing.T) {
	gk, _ := newGatekeeper(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusUnauthorized, verifyResponse{})
	})

	err := gk.Check(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorizedAccess)
	assert.False(t, gk.IsValid())
}

func TestCheck_UpstreamErrorSurfaced(t *testing.T) {
	gk, _ := newGatekeeper(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusPaymentRequired, verifyResponse{Error: "plan limit reached"})
	})

	err := gk.Check(context.Background())
	assert.ErrorIs(t, err, ErrCheckFailed)
	assert.ErrorContains(t, err, "plan limit reached")
}

func TestInvalidate_ClearsCache(t *testing.T) {
	gk, _ := newGatekeeper(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, verifyResponse{Message: "tok"})
	})

	require.NoError(t, gk.Check(context.Background()))
	require.True(t, gk.IsValid())

	gk.Invalidate()
	assert.False(t, gk.IsValid())
	assert.Empty(t, gk.cachedToken())
}
