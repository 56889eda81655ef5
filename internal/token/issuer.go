// ABOUTME: Mints and verifies access/refresh JWT pairs from subject claims
// ABOUTME: Uses HS256 with distinct secrets and TTLs per token kind

package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hypersign-protocol/hypersign-auth-go/internal/tokenstore"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingDID   = errors.New("claims carry no subject DID")
)

// Claims is the subject claim set embedded in both tokens of a pair.
// The "id" claim is the subject DID.
type Claims map[string]any

// DID returns the subject identity from the "id" claim, or "" when absent.
func (c Claims) DID() string {
	did, _ := c["id"].(string)
	return did
}

// Pair is one access token and one refresh token, independently signed and
// independently expiring.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Issuer mints token pairs and verifies them. Access and refresh tokens use
// distinct secrets so neither can be replayed as the other.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	store         tokenstore.Store
}

// NewIssuer creates an Issuer. The store is only written by Rotate.
func NewIssuer(accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration, store tokenstore.Store) *Issuer {
	return &Issuer{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		store:         store,
	}
}

// RefreshTTL returns the configured refresh token validity window.
func (i *Issuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

// Mint produces a fresh token pair from the subject claims. Positional
// metadata (iat, exp, nbf, identity echo) is stripped before re-embedding so
// stale timestamps from a previous signing never leak into the new pair.
func (i *Issuer) Mint(claims Claims) (Pair, error) {
	if claims.DID() == "" {
		return Pair{}, ErrMissingDID
	}

	subject := stripReserved(claims)

	accessToken, err := sign(subject, i.accessSecret, i.accessTTL)
	if err != nil {
		return Pair{}, fmt.Errorf("signing access token: %w", err)
	}

	refreshToken, err := sign(subject, i.refreshSecret, i.refreshTTL)
	if err != nil {
		return Pair{}, fmt.Errorf("signing refresh token: %w", err)
	}

	return Pair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// SignClaims signs an arbitrary claim set with the access secret and TTL,
// without requiring a subject DID. Registration links are signed this way
// before the holder has a DID at all.
func (i *Issuer) SignClaims(claims Claims) (string, error) {
	return sign(stripReserved(claims), i.accessSecret, i.accessTTL)
}

// Rotate mints a new pair and unconditionally overwrites the subject's stored
// refresh token. Concurrent rotations for the same subject converge on the
// last writer; the loser's token fails the equality check on its next use.
func (i *Issuer) Rotate(ctx context.Context, claims Claims) (Pair, error) {
	pair, err := i.Mint(claims)
	if err != nil {
		return Pair{}, err
	}

	if err := i.store.Set(ctx, claims.DID(), pair.RefreshToken, i.refreshTTL); err != nil {
		return Pair{}, fmt.Errorf("persisting rotated refresh token: %w", err)
	}

	return pair, nil
}

// VerifyAccess validates an access token's signature and expiry and returns its claims.
func (i *Issuer) VerifyAccess(tokenString string) (Claims, error) {
	return verify(tokenString, i.accessSecret)
}

// VerifyRefresh validates a refresh token's signature and expiry and returns its claims.
func (i *Issuer) VerifyRefresh(tokenString string) (Claims, error) {
	return verify(tokenString, i.refreshSecret)
}

// stripReserved copies the claims without the fields that are re-set on each
// signing. These are positional metadata, not attributes of the subject.
func stripReserved(claims Claims) Claims {
	out := make(Claims, len(claims))
	for k, v := range claims {
		switch k {
		case "iat", "exp", "nbf", "jti", "did":
			continue
		}
		out[k] = v
	}
	return out
}

// sign embeds the claims into an HS256 JWT with fresh iat/exp.
func sign(claims Claims, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()

	payload := make(jwt.MapClaims, len(claims)+2)
	for k, v := range claims {
		payload[k] = v
	}
	payload["iat"] = now.Unix()
	payload["exp"] = now.Add(ttl).Unix()
	// Unique per signing so that two pairs minted within the same second
	// still differ byte-for-byte; the refresh equality check depends on it.
	payload["jti"] = uuid.New().String()

	return jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(secret)
}

// verify parses and validates a JWT against the given secret.
func verify(tokenString string, secret []byte) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})

	if err != nil {
		// Check if it's specifically an expiration error
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	return Claims(mapClaims), nil
}
