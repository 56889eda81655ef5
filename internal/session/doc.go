// Package session tracks in-flight authentication attempts, keyed by the
// challenge issued at pairing time.
//
// A session starts pending, optionally carrying a live connection. When
// verification completes, the issued tokens are either pushed over that
// connection immediately or parked on the session for a later poll. Either
// way the session is consumed exactly once; Take gates the consumption with
// a single atomic delete-and-return. Stale sessions expire after a bounded
// TTL.
package session
