// Package token mints, rotates, and verifies the access/refresh JWT pairs
// issued after a successful authentication.
//
// Both tokens of a pair are derived from the same subject claim set but signed
// with distinct HS256 secrets and TTLs. Rotate additionally overwrites the
// subject's entry in the refresh token store, which is what enforces the
// single-active-session-per-subject invariant.
package token
