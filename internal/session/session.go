// Package session holds the bearer token for the remote file store and
// the invalidation signal raised when the store rejects it.
//
// Token acquisition and renewal live outside this process. The sync
// engine only consumes whatever token is current and reacts to
// authentication failure by invalidating the session, which clears the
// token and notifies the application so it can prompt for re-login.
package session

import "sync"

// Session is a concurrency-safe holder for the current access token.
//
// Every token read also returns an epoch. The epoch increments on each
// Invalidate or SetToken, so a pipeline that captured (token, epoch)
// before a long network operation can check Current() afterwards and
// discard its results if the session changed underneath it.
type Session struct {
	mu    sync.Mutex
	token string
	epoch uint64

	// onAuthExpired is called (outside the lock) when Invalidate fires.
	// Typically wired to the UI's re-login prompt.
	onAuthExpired func()
}

// New creates a session with the given initial token. onAuthExpired may
// be nil.
func New(token string, onAuthExpired func()) *Session {
	return &Session{token: token, onAuthExpired: onAuthExpired}
}

// Token returns the current access token and its epoch. An empty token
// means the session is logged out.
func (s *Session) Token() (string, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.token, s.epoch
}

// Current reports whether the given epoch still identifies the live
// session. Results produced under a stale epoch must be discarded.
func (s *Session) Current(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.epoch == epoch && s.token != ""
}

// SetToken installs a fresh token (login or renewal) and bumps the
// epoch so work started under the old token cannot apply its results.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.epoch++
	s.mu.Unlock()
}

// Invalidate drops the token, bumps the epoch, and fires the
// auth-expired callback. Called when the remote store answers 401/403.
// Safe to call repeatedly; the callback fires on each call.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.epoch++
	cb := s.onAuthExpired
	s.mu.Unlock()

	if cb != nil {
		cb()
	}
}
