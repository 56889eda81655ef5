// ABOUTME: In-memory refresh token store with per-entry TTL
// ABOUTME: A background goroutine sweeps expired entries; reads also filter them

package tokenstore

import (
	"context"
	"sync"
	"time"
)

// memoryEntry stores a token and its expiry deadline.
type memoryEntry struct {
	token    string
	deadline time.Time
}

// Memory is a mutex-guarded map-backed Store. Expired entries are dropped
// lazily on read and swept periodically by a cleanup goroutine.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	done    chan struct{}
	closed  bool
}

// NewMemory creates an in-memory store and starts its cleanup goroutine.
func NewMemory() *Memory {
	m := &Memory{
		entries: make(map[string]memoryEntry),
		done:    make(chan struct{}),
	}
	go m.cleanup()
	return m
}

// Set records the current refresh token for the subject, replacing any
// previous one regardless of its remaining TTL.
func (m *Memory) Set(_ context.Context, did, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[did] = memoryEntry{
		token:    token,
		deadline: time.Now().Add(ttl),
	}
	return nil
}

// Get returns the live refresh token for the subject, or ErrNotFound when
// absent or expired.
func (m *Memory) Get(_ context.Context, did string) (string, error) {
	m.mu.RLock()
	entry, ok := m.entries[did]
	m.mu.RUnlock()

	if !ok || time.Now().After(entry.deadline) {
		return "", ErrNotFound
	}
	return entry.token, nil
}

// Delete removes the subject's refresh token. Deleting an absent key is not an error.
func (m *Memory) Delete(_ context.Context, did string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, did)
	return nil
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (m *Memory) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.done:
			return
		}
	}
}

// sweep removes all expired entries.
func (m *Memory) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for did, entry := range m.entries {
		if now.After(entry.deadline) {
			delete(m.entries, did)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		close(m.done)
		m.closed = true
	}
}
