// Package session implements the Session Binder: a stable opaque identity
// for a client across transport reconnects, independent of any one browser
// instance or socket connection.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loool999/browser-test-2/internal/apperr"
	"github.com/loool999/browser-test-2/internal/clock"
)

// DefaultTimeout is SessionTimeout from spec.md §6: sessions idle longer
// than this are considered expired.
const DefaultTimeout = 2 * time.Hour

// Settings mirrors the subset of StreamState a session remembers across
// reconnects.
type Settings struct {
	Fps        int
	Quality    int
	Adaptive   bool
	Resolution string
}

// Session is a stable client identity. BrowserID is a weak reference: the
// Session Binder never owns or closes a browser on the session's behalf.
type Session struct {
	ID             string
	Token          string
	CreatedAt      time.Time
	LastActivityAt time.Time
	Settings       Settings
	Metadata       map[string]string
	BrowserID      string
	IPAddress      string
	UserAgent      string
}

func (s *Session) clone() *Session {
	cp := *s
	if s.Metadata != nil {
		cp.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// Binder holds every live Session, keyed by id, with a secondary token
// index kept consistent under the same lock, per spec.md §9's design note.
type Binder struct {
	mu      sync.Mutex
	byID    map[string]*Session
	idByTok map[string]string
	timeout time.Duration
	clock   clock.Clock
}

// New builds a Binder. A zero timeout defaults to DefaultTimeout.
func New(clk clock.Clock, timeout time.Duration) *Binder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Binder{
		byID:    make(map[string]*Session),
		idByTok: make(map[string]string),
		timeout: timeout,
		clock:   clk,
	}
}

// GetOrCreate returns the session bound to token if it exists and has not
// expired, refreshing ipAddress/userAgent if they changed; otherwise it
// mints a fresh session with a new id and token.
func (b *Binder) GetOrCreate(token, ipAddress, userAgent string) *Session {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()

	if token != "" {
		if id, ok := b.idByTok[token]; ok {
			if sess, ok := b.byID[id]; ok {
				if now.Sub(sess.LastActivityAt) <= b.timeout {
					sess.LastActivityAt = now
					if ipAddress != "" {
						sess.IPAddress = ipAddress
					}
					if userAgent != "" {
						sess.UserAgent = userAgent
					}
					return sess.clone()
				}
				b.deleteLocked(sess.ID)
			}
		}
	}

	sess := &Session{
		ID:             uuid.New().String(),
		Token:          uuid.New().String(),
		CreatedAt:      now,
		LastActivityAt: now,
		Settings:       Settings{},
		Metadata:       make(map[string]string),
		IPAddress:      ipAddress,
		UserAgent:      userAgent,
	}
	b.byID[sess.ID] = sess
	b.idByTok[sess.Token] = sess.ID
	return sess.clone()
}

// Get looks up a session by id or token; idOrToken is checked first against
// the id index, then the token index.
func (b *Binder) Get(idOrToken string) (*Session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sess, ok := b.byID[idOrToken]; ok {
		return sess.clone(), true
	}
	if id, ok := b.idByTok[idOrToken]; ok {
		if sess, ok := b.byID[id]; ok {
			return sess.clone(), true
		}
	}
	return nil, false
}

// Validate returns the session for token, or nil if it does not exist or
// has expired. An expired session is deleted as a side effect.
func (b *Binder) Validate(token string) (*Session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id, ok := b.idByTok[token]
	if !ok {
		return nil, false
	}
	sess, ok := b.byID[id]
	if !ok {
		delete(b.idByTok, token)
		return nil, false
	}
	if b.clock.Now().Sub(sess.LastActivityAt) > b.timeout {
		b.deleteLocked(id)
		return nil, false
	}
	return sess.clone(), true
}

// Update applies fn to the stored session's mutable fields and bumps
// LastActivityAt. fn receives the live record, not a clone.
func (b *Binder) Update(id string, fn func(*Session)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sess, ok := b.byID[id]
	if !ok {
		return apperr.New(apperr.NotFound, "session.Update", "unknown session id")
	}
	fn(sess)
	sess.LastActivityAt = b.clock.Now()
	return nil
}

// SetBrowserID records which browser id this session last bound, for
// display/lookup only; the Session Binder never closes it.
func (b *Binder) SetBrowserID(id, browserID string) error {
	return b.Update(id, func(s *Session) { s.BrowserID = browserID })
}

// Delete removes a session and its token mapping atomically.
func (b *Binder) Delete(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deleteLocked(id)
}

func (b *Binder) deleteLocked(id string) bool {
	sess, ok := b.byID[id]
	if !ok {
		return false
	}
	delete(b.byID, id)
	delete(b.idByTok, sess.Token)
	return true
}

// All returns a snapshot of every live session, cloned.
func (b *Binder) All() []*Session {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*Session, 0, len(b.byID))
	for _, sess := range b.byID {
		out = append(out, sess.clone())
	}
	return out
}

// Count returns the number of live sessions.
func (b *Binder) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byID)
}

// ReapExpired deletes every session whose LastActivityAt predates the
// configured timeout. Returns the number removed.
func (b *Binder) ReapExpired() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	var expired []string
	for id, sess := range b.byID {
		if now.Sub(sess.LastActivityAt) > b.timeout {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		b.deleteLocked(id)
	}
	return len(expired)
}
