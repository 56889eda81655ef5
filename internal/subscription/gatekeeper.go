// ABOUTME: Gates authentication behind a subscription check against the developer dashboard
// ABOUTME: Caches the dashboard's auth token and re-presents credentials when it expires

package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hypersign-protocol/hypersign-auth-go/internal/credential"
)

// Subscription errors
var (
	// ErrUnauthorizedAccess means the dashboard rejected the service's own
	// credential. There is no point retrying; the app credential is bad.
	ErrUnauthorizedAccess = errors.New("unauthorized subscription API access")

	// ErrCheckFailed wraps any other non-success response from the dashboard.
	ErrCheckFailed = errors.New("subscription check failed")
)

// verifyResponse is the dashboard's response body. On success Message carries
// the API auth token to cache.
type verifyResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Gatekeeper verifies that this service holds a valid subscription before it
// authenticates anyone. The dashboard's token is cached process-wide; an
// expired-token response clears the cache and retries via a fresh self-signed
// presentation exactly once.
type Gatekeeper struct {
	verifier      credential.Verifier
	appCredential *credential.VerifiableCredential
	keys          credential.KeyPair
	verifyURL     string
	client        *http.Client
	logger        *slog.Logger

	mu           sync.Mutex
	apiAuthToken string
	verified     bool
}

// New creates a Gatekeeper. The app credential is the service's own
// subscription credential, presented to the dashboard when no cached token
// exists.
func New(verifier credential.Verifier, appCredential *credential.VerifiableCredential, keys credential.KeyPair, verifyURL string, logger *slog.Logger) *Gatekeeper {
	return &Gatekeeper{
		verifier:      verifier,
		appCredential: appCredential,
		keys:          keys,
		verifyURL:     verifyURL,
		client:        &http.Client{Timeout: 30 * time.Second},
		logger:        logger,
	}
}

// Check establishes that the subscription is valid, caching the dashboard's
// auth token for subsequent calls. The cache is read and written under a
// lock, but no lock is held across the HTTP round trips.
func (g *Gatekeeper) Check(ctx context.Context) error {
	cached := g.cachedToken()
	if cached == "" {
		g.logger.Debug("no API authorization token cached, presenting app credential")
		return g.checkWithPresentation(ctx)
	}

	g.logger.Debug("found cached API authorization token, verifying")
	status, body, err := g.post(ctx, g.verifyURL+"?apiAuthToken="+url.QueryEscape(cached), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCheckFailed, err)
	}

	switch status {
	case http.StatusOK:
		g.markVerified(cached)
		return nil
	case http.StatusForbidden:
		// Token expired. Clear it before retrying so a concurrent Check
		// cannot re-verify against the stale value.
		g.logger.Debug("API authorization token expired, presenting app credential again")
		g.invalidate(cached)
		return g.checkWithPresentation(ctx)
	default:
		return fmt.Errorf("%w: %s", ErrCheckFailed, errorDetail(status, body))
	}
}

// checkWithPresentation signs a fresh presentation of the app credential over
// a random challenge and submits it to the dashboard.
func (g *Gatekeeper) checkWithPresentation(ctx context.Context) error {
	vp, err := g.verifier.GeneratePresentation(ctx, g.appCredential, g.keys.PublicKeyID)
	if err != nil {
		return fmt.Errorf("%w: generating presentation: %v", ErrCheckFailed, err)
	}

	signed, err := g.verifier.SignPresentation(ctx, vp, g.keys, uuid.New().String())
	if err != nil {
		return fmt.Errorf("%w: signing presentation: %v", ErrCheckFailed, err)
	}

	payload, err := json.Marshal(signed)
	if err != nil {
		return fmt.Errorf("%w: encoding presentation: %v", ErrCheckFailed, err)
	}

	status, body, err := g.post(ctx, g.verifyURL, payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCheckFailed, err)
	}

	switch status {
	case http.StatusOK:
		g.markVerified(body.Message)
		return nil
	case http.StatusUnauthorized:
		return ErrUnauthorizedAccess
	default:
		return fmt.Errorf("%w: %s", ErrCheckFailed, errorDetail(status, body))
	}
}

// IsValid reports whether a subscription check has succeeded.
func (g *Gatekeeper) IsValid() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verified
}

// Invalidate drops the cached token, forcing the next Check through the
// self-presentation path.
func (g *Gatekeeper) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.apiAuthToken = ""
	g.verified = false
}

func (g *Gatekeeper) cachedToken() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.apiAuthToken
}

func (g *Gatekeeper) markVerified(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.apiAuthToken = token
	g.verified = true
}

// invalidate clears the cache only if it still holds the token that just
// failed, so a token refreshed by a concurrent Check is left alone.
func (g *Gatekeeper) invalidate(stale string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.apiAuthToken == stale {
		g.apiAuthToken = ""
		g.verified = false
	}
}

// post submits an optional JSON payload and decodes the response body.
func (g *Gatekeeper) post(ctx context.Context, endpoint string, payload []byte) (int, verifyResponse, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return 0, verifyResponse{}, fmt.Errorf("creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, verifyResponse{}, fmt.Errorf("calling subscription endpoint: %w", err)
	}
	defer resp.Body.Close()

	var body verifyResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if len(raw) > 0 {
		// Tolerate non-JSON error bodies; the status code still decides.
		if err := json.Unmarshal(raw, &body); err != nil {
			body.Error = strings.TrimSpace(string(raw))
		}
	}

	return resp.StatusCode, body, nil
}

func errorDetail(status int, body verifyResponse) string {
	if body.Error != "" {
		return body.Error
	}
	return fmt.Sprintf("unexpected status %d", status)
}
