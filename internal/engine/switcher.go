package engine

import (
	"sync"
	"sync/atomic"

	"github.com/oszuidwest/zwfm-vumeter/internal/capture"
)

// binding is an immutable pairing of a generation with the session that
// feeds it. A nil session means no source.
type binding struct {
	gen     uint64
	session capture.Session
}

// Switcher holds the current capture session keyed by a monotonically
// increasing generation. The scheduler reads it lock-free on every tick;
// writers are serialized so a request and an apply never interleave.
type Switcher struct {
	mu      sync.Mutex
	latest  atomic.Uint64
	current atomic.Pointer[binding]
}

// NewSwitcher returns a switcher with no source at generation zero.
func NewSwitcher() *Switcher {
	s := &Switcher{}
	s.current.Store(&binding{})
	return s
}

// Begin starts a new generation. The current session is detached
// immediately and returned so the caller can stop it.
func (s *Switcher) Begin() (gen uint64, detached capture.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen = s.latest.Add(1)
	old := s.current.Swap(&binding{gen: gen})
	return gen, old.session
}

// Apply installs session for gen if gen is still the latest requested
// generation. It returns false for a stale generation; the caller then owns
// the session and must stop it.
func (s *Switcher) Apply(gen uint64, session capture.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.latest.Load() {
		return false
	}
	s.current.Store(&binding{gen: gen, session: session})
	return true
}

// Current returns the session feeding the meter and its generation.
func (s *Switcher) Current() (capture.Session, uint64) {
	b := s.current.Load()
	return b.session, b.gen
}

// Latest returns the most recently requested generation.
func (s *Switcher) Latest() uint64 {
	return s.latest.Load()
}

// IsLatest reports whether gen is the most recently requested generation.
func (s *Switcher) IsLatest(gen uint64) bool {
	return gen == s.latest.Load()
}
