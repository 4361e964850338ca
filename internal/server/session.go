// Package server provides the session handling, WebSocket plumbing and
// command processing behind the web interface.
package server

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	sessionCookieName = "vumeter_session"
	sessionDuration   = 24 * time.Hour
	csrfTokenDuration = 10 * time.Minute
)

// tokenStore is a set of random tokens that expire.
type tokenStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	tokens map[string]time.Time
	now    func() time.Time
}

func newTokenStore(ttl time.Duration) *tokenStore {
	return &tokenStore{ttl: ttl, tokens: make(map[string]time.Time), now: time.Now}
}

// issue creates and stores a new token. Expired tokens are swept first.
func (s *tokenStore) issue() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Error().Err(err).Msg("failed to generate token")
		return ""
	}
	token := hex.EncodeToString(b)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, exp := range s.tokens {
		if now.After(exp) {
			delete(s.tokens, k)
		}
	}
	s.tokens[token] = now.Add(s.ttl)
	return token
}

// valid reports whether token exists and has not expired. consume removes
// the token either way.
func (s *tokenStore) valid(token string, consume bool) bool {
	if token == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.tokens[token]
	if !ok {
		return false
	}
	expired := s.now().After(exp)
	if expired || consume {
		delete(s.tokens, token)
	}
	return !expired
}

func (s *tokenStore) revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// SessionManager handles login sessions and single-use CSRF tokens for the
// login form.
type SessionManager struct {
	sessions *tokenStore
	csrf     *tokenStore
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: newTokenStore(sessionDuration),
		csrf:     newTokenStore(csrfTokenDuration),
	}
}

// Validate checks if a session token is valid.
func (sm *SessionManager) Validate(token string) bool {
	return sm.sessions.valid(token, false)
}

// Authenticated reports whether the request carries a valid session cookie.
func (sm *SessionManager) Authenticated(r *http.Request) bool {
	cookie, err := r.Cookie(sessionCookieName)
	return err == nil && sm.Validate(cookie.Value)
}

// AuthMiddleware requires a valid session cookie. Page requests without one
// are redirected to /login; API and WebSocket requests get 401.
func (sm *SessionManager) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sm.Authenticated(r) {
			next(w, r)
			return
		}
		if r.URL.Path == "/" || r.URL.Path == "/index.html" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
}

// Login checks credentials in constant time and sets a session cookie on
// success.
func (sm *SessionManager) Login(w http.ResponseWriter, r *http.Request, username, password, configUser, configPass string) bool {
	userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(configUser)) == 1
	passMatch := subtle.ConstantTimeCompare([]byte(password), []byte(configPass)) == 1
	if !userMatch || !passMatch {
		return false
	}

	token := sm.sessions.issue()
	if token == "" {
		return false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionDuration.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	return true
}

// Logout clears the session cookie and deletes the session.
func (sm *SessionManager) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		sm.sessions.revoke(cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

// CreateCSRFToken generates a new single-use CSRF token.
func (sm *SessionManager) CreateCSRFToken() string {
	return sm.csrf.issue()
}

// ValidateCSRFToken checks a CSRF token and consumes it.
func (sm *SessionManager) ValidateCSRFToken(token string) bool {
	return sm.csrf.valid(token, true)
}
