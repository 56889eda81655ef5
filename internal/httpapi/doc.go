// Package httpapi exposes the authentication core as a JSON HTTP API.
//
// All state-changing operations are POSTs under /api/v1; the credential
// redemption endpoint is a GET because it is followed from a mailed link.
// Orchestrator sentinel errors map onto HTTP statuses in one place so every
// handler reports failures the same way.
package httpapi
