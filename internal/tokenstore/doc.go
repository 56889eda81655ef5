// Package tokenstore provides expiring key-value storage for refresh tokens,
// keyed by subject DID.
//
// The invariant is one active refresh token per subject: Set overwrites
// whatever was there, immediately invalidating the previous token. Two
// implementations exist — an in-memory store for single-process deployments
// and a Redis-backed store for anything that needs to survive restarts.
// Orchestration code only sees the Store interface.
package tokenstore
