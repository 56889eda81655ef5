// ABOUTME: Tests for the authentication orchestrator flows
// ABOUTME: Exercises authenticate, refresh, logout, authorize, and poll end to end

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypersign-protocol/hypersign-auth-go/internal/credential"
	"github.com/hypersign-protocol/hypersign-auth-go/internal/session"
	"github.com/hypersign-protocol/hypersign-auth-go/internal/token"
	"github.com/hypersign-protocol/hypersign-auth-go/internal/tokenstore"
)

const testDID = "did:hs:0f49341a-20ef-43d1-bc93-de30993e6c51"

// fakeVerifier approves or rejects every presentation per its verdict and
// records the request it last saw.
type fakeVerifier struct {
	mu      sync.Mutex
	verdict bool
	err     error
	lastReq credential.VerifyRequest
}

func (f *fakeVerifier) VerifyPresentation(_ context.Context, req credential.VerifyRequest) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	return f.verdict, f.err
}

func (f *fakeVerifier) GenerateCredential(_ context.Context, subjectDID string, attributes map[string]any) (*credential.VerifiableCredential, error) {
	subject := map[string]any{"id": subjectDID}
	for k, v := range attributes {
		subject[k] = v
	}
	return &credential.VerifiableCredential{CredentialSubject: subject}, nil
}

func (f *fakeVerifier) SignCredential(_ context.Context, vc *credential.VerifiableCredential, _ credential.KeyPair) (*credential.VerifiableCredential, error) {
	signed := *vc
	signed.Proof = credential.Proof{Type: "Ed25519Signature2020", ProofValue: "zsigned"}
	return &signed, nil
}

func (f *fakeVerifier) GeneratePresentation(_ context.Context, vc *credential.VerifiableCredential, _ string) (*credential.Presentation, error) {
	return &credential.Presentation{VerifiableCredential: []credential.VerifiableCredential{*vc}}, nil
}

func (f *fakeVerifier) SignPresentation(_ context.Context, vp *credential.Presentation, _ credential.KeyPair, challenge string) (*credential.Presentation, error) {
	signed := *vp
	signed.Proof = credential.Proof{Challenge: challenge}
	return &signed, nil
}

// fakeConn captures pushed frames, optionally failing every send.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
}

func (c *fakeConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("connection closed")
	}
	c.frames = append(c.frames, payload)
	return nil
}

func (c *fakeConn) sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

// fakeGatekeeper returns its configured error on every check.
type fakeGatekeeper struct {
	err   error
	calls int
}

func (g *fakeGatekeeper) Check(context.Context) error {
	g.calls++
	return g.err
}

type fixture struct {
	service  *Service
	verifier *fakeVerifier
	sessions *session.Store
	tokens   tokenstore.Store
}

func newFixture(t *testing.T, gatekeeper Gatekeeper) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := tokenstore.NewMemory()
	t.Cleanup(func() { tokens.Close() })

	sessions := session.NewStore(time.Minute, logger)
	t.Cleanup(sessions.Close)

	issuer := token.NewIssuer([]byte("access-secret"), []byte("refresh-secret"), time.Minute, time.Hour, tokens)
	verifier := &fakeVerifier{verdict: true}

	svc := NewService(verifier, issuer, tokens, sessions, gatekeeper, nil, nil, logger, Options{
		BaseURL: "https://app.example.com",
		NodeURL: "https://node.example.com/api",
		AppName: "Example App",
	})
	return &fixture{service: svc, verifier: verifier, sessions: sessions, tokens: tokens}
}

func presentation(t *testing.T, subject map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(credential.Presentation{
		VerifiableCredential: []credential.VerifiableCredential{{
			CredentialSubject: subject,
			Proof:             credential.Proof{VerificationMethod: "did:hs:issuer#key-1"},
		}},
		Proof: credential.Proof{VerificationMethod: testDID + "#key-1"},
	})
	require.NoError(t, err)
	return raw
}

func TestAuthenticateIssuesAndStoresPair(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	result, err := f.service.Authenticate(ctx, presentation(t, map[string]any{"id": testDID, "name": "vishwas"}), "challenge-1")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, testDID, result.User.DID())
	assert.NotEmpty(t, result.Tokens.AccessToken)
	assert.NotEmpty(t, result.Tokens.RefreshToken)

	stored, err := f.tokens.Get(ctx, testDID)
	require.NoError(t, err)
	assert.Equal(t, result.Tokens.RefreshToken, stored)

	// Verification was delegated with the challenge and both methods.
	assert.Equal(t, "challenge-1", f.verifier.lastReq.Challenge)
	assert.Equal(t, "did:hs:issuer#key-1", f.verifier.lastReq.IssuerDID)
	assert.Equal(t, testDID+"#key-1", f.verifier.lastReq.HolderDID)
}

func TestAuthenticateRequiresChallenge(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.service.Authenticate(context.Background(), presentation(t, map[string]any{"id": testDID}), "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAuthenticateRejectsMalformedPresentation(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.service.Authenticate(context.Background(), []byte(`{"verifiableCredential":[]}`), "challenge-1")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.service.Authenticate(context.Background(), nil, "challenge-1")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAuthenticateFailsOnBadProof(t *testing.T) {
	f := newFixture(t, nil)
	f.verifier.verdict = false

	_, err := f.service.Authenticate(context.Background(), presentation(t, map[string]any{"id": testDID}), "challenge-1")
	assert.ErrorIs(t, err, ErrVerificationFailed)

	// Nothing was persisted for the subject.
	_, err = f.tokens.Get(context.Background(), testDID)
	assert.ErrorIs(t, err, tokenstore.ErrNotFound)
}

func TestAuthenticateRejectsSubjectWithoutDID(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.service.Authenticate(context.Background(), presentation(t, map[string]any{"name": "vishwas"}), "challenge-1")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAuthenticateGatekeeperDenies(t *testing.T) {
	gk := &fakeGatekeeper{err: errors.New("subscription expired")}
	f := newFixture(t, gk)

	_, err := f.service.Authenticate(context.Background(), presentation(t, map[string]any{"id": testDID}), "challenge-1")
	assert.ErrorIs(t, err, ErrSubscription)
	assert.Equal(t, 1, gk.calls)
}

func TestAuthenticatePushesToLiveConnection(t *testing.T) {
	f := newFixture(t, nil)
	conn := &fakeConn{}
	require.NoError(t, f.service.RegisterClient("challenge-1", conn))

	result, err := f.service.Authenticate(context.Background(), presentation(t, map[string]any{"id": testDID}), "challenge-1")
	require.NoError(t, err)

	frames := conn.sent()
	require.Len(t, frames, 1)

	var msg pushMessage
	require.NoError(t, json.Unmarshal(frames[0], &msg))
	assert.Equal(t, "end", msg.Type)
	assert.True(t, msg.Success)
	assert.Equal(t, result.Tokens, msg.Data)

	// Pushed sessions are gone; a poll finds nothing.
	_, err = f.service.Poll("challenge-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuthenticatePushFailureFallsBackToPoll(t *testing.T) {
	f := newFixture(t, nil)
	conn := &fakeConn{fail: true}
	require.NoError(t, f.service.RegisterClient("challenge-1", conn))

	result, err := f.service.Authenticate(context.Background(), presentation(t, map[string]any{"id": testDID}), "challenge-1")
	require.NoError(t, err)

	pair, err := f.service.Poll("challenge-1")
	require.NoError(t, err)
	assert.Equal(t, result.Tokens, pair)
}

func TestAuthenticateWithoutConnectionRetainsForPoll(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.service.Authenticate(context.Background(), presentation(t, map[string]any{"id": testDID}), "challenge-1")
	require.NoError(t, err)

	pair, err := f.service.Poll("challenge-1")
	require.NoError(t, err)
	assert.Equal(t, result.Tokens, pair)

	// Poll consumed the session.
	_, err = f.service.Poll("challenge-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPollPendingChallenge(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.service.RegisterClient("challenge-1", nil))

	_, err := f.service.Poll("challenge-1")
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Still pollable afterwards.
	_, err = f.service.Poll("challenge-1")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestPollUnknownChallenge(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.service.Poll("never-registered")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.service.Poll("")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRefreshRotatesPair(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.service.Authenticate(ctx, presentation(t, map[string]any{"id": testDID, "name": "vishwas"}), "challenge-1")
	require.NoError(t, err)

	second, err := f.service.Refresh(ctx, first.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, testDID, second.User.DID())
	assert.NotEqual(t, first.Tokens.RefreshToken, second.Tokens.RefreshToken)

	// The superseded token no longer refreshes.
	_, err = f.service.Refresh(ctx, first.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrToken)

	// The current one still does.
	_, err = f.service.Refresh(ctx, second.Tokens.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshRejectsUnknownSubject(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// A validly signed token whose subject has no stored refresh token.
	issuer := token.NewIssuer([]byte("access-secret"), []byte("refresh-secret"), time.Minute, time.Hour, f.tokens)
	pair, err := issuer.Mint(token.Claims{"id": "did:hs:stranger"})
	require.NoError(t, err)

	_, err = f.service.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrToken)
}

func TestRefreshRejectsGarbage(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.service.Refresh(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrToken)

	_, err = f.service.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	result, err := f.service.Authenticate(ctx, presentation(t, map[string]any{"id": testDID}), "challenge-1")
	require.NoError(t, err)

	_, err = f.service.Refresh(ctx, result.Tokens.AccessToken)
	assert.ErrorIs(t, err, ErrToken)
}

func TestLogoutSeversRefreshChain(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	result, err := f.service.Authenticate(ctx, presentation(t, map[string]any{"id": testDID}), "challenge-1")
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(ctx, result.Tokens.RefreshToken))

	_, err = f.service.Refresh(ctx, result.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrToken)

	// Access token keeps authorizing until it expires on its own.
	claims, err := f.service.Authorize(result.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testDID, claims.DID())

	// Logging out again is a no-op.
	require.NoError(t, f.service.Logout(ctx, result.Tokens.RefreshToken))
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	result, err := f.service.Authenticate(ctx, presentation(t, map[string]any{"id": testDID, "name": "vishwas"}), "challenge-1")
	require.NoError(t, err)

	claims, err := f.service.Authorize(result.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testDID, claims.DID())
	assert.Equal(t, "vishwas", claims["name"])

	_, err = f.service.Authorize(result.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrToken)

	_, err = f.service.Authorize("")
	assert.ErrorIs(t, err, ErrValidation)
}
