// ABOUTME: Authentication orchestrator tying presentations, tokens, and sessions together
// ABOUTME: Implements authenticate, refresh, logout, authorize, and poll flows

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hypersign-protocol/hypersign-auth-go/internal/credential"
	"github.com/hypersign-protocol/hypersign-auth-go/internal/events"
	"github.com/hypersign-protocol/hypersign-auth-go/internal/mail"
	"github.com/hypersign-protocol/hypersign-auth-go/internal/session"
	"github.com/hypersign-protocol/hypersign-auth-go/internal/token"
	"github.com/hypersign-protocol/hypersign-auth-go/internal/tokenstore"
)

// Gatekeeper guards entry to the authenticated flows. A nil Gatekeeper on the
// Service disables the check entirely.
type Gatekeeper interface {
	Check(ctx context.Context) error
}

// Options carries the non-dependency knobs of the Service.
type Options struct {
	// BaseURL is the externally reachable address of this service, used to
	// build links embedded in registration mails.
	BaseURL string

	// VerifyResourcePath is the path appended to BaseURL in registration
	// links. Empty means the default credential-issuance path.
	VerifyResourcePath string

	// NodeURL is the identity node address; its origin anchors the deep
	// link embedded in registration mails.
	NodeURL string

	// AppName is the display name used in outbound mail.
	AppName string

	// Keys is the service's own signing key on the node, used when issuing
	// credentials during registration.
	Keys credential.KeyPair
}

const defaultVerifyResourcePath = "/hs/api/v2/credential"

// Service is the authentication core. It owns no transport; HTTP and socket
// layers call into it and map its errors onto their own status codes.
type Service struct {
	verifier   credential.Verifier
	issuer     *token.Issuer
	tokens     tokenstore.Store
	sessions   *session.Store
	gatekeeper Gatekeeper
	mailer     mail.Sender
	publisher  events.Publisher
	logger     *slog.Logger
	opts       Options
}

// NewService assembles the orchestrator. gatekeeper and mailer may be nil;
// a nil gatekeeper skips subscription checks and a nil mailer makes the
// registration mail path return ErrMailNotConfigured.
func NewService(
	verifier credential.Verifier,
	issuer *token.Issuer,
	tokens tokenstore.Store,
	sessions *session.Store,
	gatekeeper Gatekeeper,
	mailer mail.Sender,
	publisher events.Publisher,
	logger *slog.Logger,
	opts Options,
) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if opts.VerifyResourcePath == "" {
		opts.VerifyResourcePath = defaultVerifyResourcePath
	}
	return &Service{
		verifier:   verifier,
		issuer:     issuer,
		tokens:     tokens,
		sessions:   sessions,
		gatekeeper: gatekeeper,
		mailer:     mailer,
		publisher:  publisher,
		logger:     logger,
		opts:       opts,
	}
}

// Result is the outcome of a successful authentication or refresh: the
// subject's claims and a fresh token pair.
type Result struct {
	User   token.Claims `json:"user"`
	Tokens token.Pair   `json:"tokens"`
}

// pushMessage is the frame sent to a live client connection on successful
// authentication.
type pushMessage struct {
	Type    string     `json:"type"`
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Data    token.Pair `json:"data"`
}

// RegisterClient records a live connection waiting on the given challenge.
// When authentication for that challenge later succeeds, the token pair is
// pushed over the connection instead of being held for polling.
func (s *Service) RegisterClient(challenge string, conn session.Conn) error {
	if challenge == "" {
		return fmt.Errorf("%w: challenge is required", ErrValidation)
	}
	s.sessions.Register(challenge, conn)
	s.logger.Debug("client registered", "challenge", challenge)
	return nil
}

// Authenticate verifies a signed presentation against its challenge and, on
// success, issues a token pair. The pair is delivered over the challenge's
// live connection when one is registered, otherwise it is retained for Poll.
// The pair is also returned directly for transports that respond in-band.
func (s *Service) Authenticate(ctx context.Context, rawPresentation []byte, challenge string) (*Result, error) {
	if challenge == "" {
		return nil, fmt.Errorf("%w: challenge is required", ErrValidation)
	}

	if s.gatekeeper != nil {
		if err := s.gatekeeper.Check(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSubscription, err)
		}
	}

	vp, err := credential.Parse(rawPresentation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	ok, err := s.verifier.VerifyPresentation(ctx, credential.VerifyRequest{
		Presentation: vp,
		Challenge:    challenge,
		IssuerDID:    vp.IssuerMethod(),
		HolderDID:    vp.HolderMethod(),
	})
	if err != nil {
		return nil, fmt.Errorf("verifying presentation: %w", err)
	}
	if !ok {
		return nil, ErrVerificationFailed
	}

	claims := token.Claims(vp.FirstSubject())
	pair, err := s.issuer.Mint(claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	did := claims.DID()
	if err := s.tokens.Set(ctx, did, pair.RefreshToken, s.issuer.RefreshTTL()); err != nil {
		return nil, fmt.Errorf("persisting refresh token: %w", err)
	}

	s.deliver(challenge, pair)

	if err := s.publisher.PublishAuthenticated(ctx, did); err != nil {
		s.logger.Warn("publishing authenticated event", "did", did, "error", err)
	}

	s.logger.Info("user authenticated", "did", did)
	return &Result{User: claims, Tokens: pair}, nil
}

// deliver routes a freshly minted pair to the challenge's session. A live
// connection gets the pair pushed and the session dropped; anything else
// leaves the pair behind for exactly one Poll.
func (s *Service) deliver(challenge string, pair token.Pair) {
	sess, ok := s.sessions.Get(challenge)
	if !ok || sess.Conn == nil {
		s.sessions.Update(challenge, nil, true, pair.AccessToken, pair.RefreshToken)
		return
	}

	frame, err := json.Marshal(pushMessage{
		Type:    "end",
		Success: true,
		Message: "User is authenticated",
		Data:    pair,
	})
	if err != nil {
		s.sessions.Update(challenge, nil, true, pair.AccessToken, pair.RefreshToken)
		return
	}

	if err := sess.Conn.Send(frame); err != nil {
		s.logger.Warn("pushing tokens to client failed, falling back to poll",
			"challenge", challenge, "error", err)
		s.sessions.Update(challenge, nil, true, pair.AccessToken, pair.RefreshToken)
		return
	}

	s.sessions.Delete(challenge)
}

// Refresh exchanges a valid refresh token for a new pair. The supplied token
// must be byte-identical to the one stored for the subject; any earlier
// token, even an unexpired one, is rejected once a newer pair exists.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Result, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh token is required", ErrValidation)
	}

	claims, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrToken, err)
	}

	did := claims.DID()
	stored, err := s.tokens.Get(ctx, did)
	if err != nil {
		if errors.Is(err, tokenstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: no active session", ErrToken)
		}
		return nil, fmt.Errorf("loading refresh token: %w", err)
	}
	if stored != refreshToken {
		return nil, fmt.Errorf("%w: token superseded", ErrToken)
	}

	pair, err := s.issuer.Rotate(ctx, claims)
	if err != nil {
		return nil, fmt.Errorf("rotating tokens: %w", err)
	}

	s.logger.Info("tokens refreshed", "did", did)
	return &Result{User: claims, Tokens: pair}, nil
}

// Logout invalidates the subject's refresh token. The access token keeps
// working until its own expiry; only the refresh chain is severed. Logging
// out twice is not an error.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return fmt.Errorf("%w: refresh token is required", ErrValidation)
	}

	claims, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrToken, err)
	}

	did := claims.DID()
	if err := s.tokens.Delete(ctx, did); err != nil && !errors.Is(err, tokenstore.ErrNotFound) {
		return fmt.Errorf("deleting refresh token: %w", err)
	}

	if err := s.publisher.PublishLogout(ctx, did); err != nil {
		s.logger.Warn("publishing logout event", "did", did, "error", err)
	}

	s.logger.Info("user logged out", "did", did)
	return nil
}

// Authorize validates an access token and returns its claims. It consults no
// state beyond the token itself, so a logged-out subject's access token still
// authorizes until it expires.
func (s *Service) Authorize(accessToken string) (token.Claims, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("%w: access token is required", ErrValidation)
	}
	claims, err := s.issuer.VerifyAccess(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrToken, err)
	}
	return claims, nil
}

// Poll retrieves the token pair retained for a challenge. A successful poll
// consumes the session; a second poll for the same challenge fails with
// ErrNotFound. A pending, not yet authenticated challenge returns
// ErrUnauthorized and stays pollable.
func (s *Service) Poll(challenge string) (token.Pair, error) {
	if challenge == "" {
		return token.Pair{}, fmt.Errorf("%w: challenge is required", ErrValidation)
	}

	sess, taken := s.sessions.Take(challenge)
	if sess == nil {
		return token.Pair{}, ErrNotFound
	}
	if !taken {
		return token.Pair{}, ErrUnauthorized
	}

	return token.Pair{AccessToken: sess.AccessToken, RefreshToken: sess.RefreshToken}, nil
}
