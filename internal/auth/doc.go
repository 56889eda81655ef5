// Package auth is the authentication core. It owns the complete lifecycle of
// a login: verifying a signed presentation against its challenge, minting an
// access/refresh token pair, delivering the pair over a live connection or
// holding it for a poll, rotating pairs on refresh, and severing the refresh
// chain on logout. Registration issues credentials to new users, either
// directly or through a mailed issuance link.
//
// The package is transport-free. HTTP and socket layers call into Service and
// translate its sentinel errors (ErrValidation, ErrToken, ErrNotFound,
// ErrUnauthorized, ErrSubscription, ErrVerificationFailed) into their own
// status codes with errors.Is.
package auth
