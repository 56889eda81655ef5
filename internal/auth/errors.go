// ABOUTME: Error taxonomy for the authentication orchestrator
// ABOUTME: Callers discriminate with errors.Is to pick retry or restart behavior

package auth

import "errors"

// Orchestrator errors. Each maps to one failure kind in the API surface.
var (
	// ErrValidation indicates a required input was missing or malformed.
	ErrValidation = errors.New("validation failed")

	// ErrVerificationFailed indicates the presentation did not verify
	// against its challenge.
	ErrVerificationFailed = errors.New("could not verify the presentation")

	// ErrSubscription indicates authorization to use the service could not
	// be established.
	ErrSubscription = errors.New("subscription check unsuccessful")

	// ErrToken indicates an invalid, expired, or superseded token.
	ErrToken = errors.New("invalid or expired token")

	// ErrNotFound indicates an unknown challenge.
	ErrNotFound = errors.New("invalid challenge")

	// ErrUnauthorized indicates a known challenge that is not yet
	// authenticated; the caller may poll again later.
	ErrUnauthorized = errors.New("not yet authenticated")

	// ErrMailNotConfigured indicates the registration path was invoked
	// without a mail sender configured.
	ErrMailNotConfigured = errors.New("mail configuration is not defined")
)
