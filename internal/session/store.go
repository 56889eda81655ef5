// ABOUTME: Tracks pending authentication sessions keyed by challenge
// ABOUTME: Supports push-or-poll token delivery with at-most-once consumption

package session

import (
	"log/slog"
	"sync"
	"time"
)

// Conn is a live channel capable of out-of-band delivery. Ownership is shared
// with the transport layer; the store only ever calls Send and clears the
// reference, never closes it.
type Conn interface {
	Send(payload []byte) error
}

// ClientSession is the record for one authentication attempt. A session is
// pending until tokens are written, and is deleted exactly once after its
// tokens have been delivered.
type ClientSession struct {
	Challenge     string
	Conn          Conn
	Authenticated bool
	AccessToken   string
	RefreshToken  string

	updatedAt time.Time
}

// Store maps challenges to client sessions. Sessions that are never consumed
// (pending forever, or authenticated but never polled) are swept after the
// configured TTL so abandoned attempts cannot accumulate.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*ClientSession
	ttl      time.Duration
	logger   *slog.Logger
	done     chan struct{}
	closed   bool
}

// NewStore creates a session store whose entries expire after ttl.
func NewStore(ttl time.Duration, logger *slog.Logger) *Store {
	s := &Store{
		sessions: make(map[string]*ClientSession),
		ttl:      ttl,
		logger:   logger,
	}
	s.done = make(chan struct{})
	go s.cleanup()
	return s
}

// Register creates a pending session for the challenge, attaching the live
// connection when one exists. Registering an already-known challenge replaces
// the previous session; there is at most one session per challenge.
func (s *Store) Register(challenge string, conn Conn) *ClientSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &ClientSession{
		Challenge: challenge,
		Conn:      conn,
		updatedAt: time.Now(),
	}
	s.sessions[challenge] = sess
	return sess
}

// Get returns the session for the challenge, or false when none exists.
func (s *Store) Get(challenge string) (*ClientSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[challenge]
	return sess, ok
}

// Update upserts the session for the challenge with the given connection,
// authentication state, and tokens.
func (s *Store) Update(challenge string, conn Conn, authenticated bool, accessToken, refreshToken string) *ClientSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &ClientSession{
		Challenge:     challenge,
		Conn:          conn,
		Authenticated: authenticated,
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		updatedAt:     time.Now(),
	}
	s.sessions[challenge] = sess
	return sess
}

// Delete removes the session for the challenge. Deleting an absent challenge
// is not an error.
func (s *Store) Delete(challenge string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, challenge)
}

// Take atomically removes and returns the session for the challenge if it is
// authenticated. The check and the delete happen under one lock, so two
// concurrent consumers cannot both succeed: the second sees taken=false with
// the session already gone. A pending session is returned without being
// removed so the caller can retry later.
func (s *Store) Take(challenge string) (sess *ClientSession, taken bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[challenge]
	if !ok {
		return nil, false
	}
	if !sess.Authenticated {
		return sess, false
	}

	delete(s.sessions, challenge)
	return sess, true
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}

// cleanup runs in a background goroutine, periodically sweeping stale sessions.
func (s *Store) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

// sweep removes sessions that have outlived the store TTL.
func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for challenge, sess := range s.sessions {
		if now.Sub(sess.updatedAt) > s.ttl {
			delete(s.sessions, challenge)
			if s.logger != nil {
				s.logger.Debug("expired stale session",
					"challenge", challenge,
					"authenticated", sess.Authenticated,
				)
			}
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.done)
		s.closed = true
	}
}
