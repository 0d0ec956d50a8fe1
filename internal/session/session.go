// Package session holds the authenticated user context shared by the tracker,
// the history view and the desktop shell.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/baronglock/Site-legendas/internal/domain"
)

// ErrExpired is returned when the token is missing or was rejected by the backend.
var ErrExpired = errors.New("session expired or not signed in")

// ProfileSource reads the authoritative profile from the backend.
type ProfileSource interface {
	Me(ctx context.Context) (domain.Profile, error)
}

// Session is the explicit replacement for global auth state.
type Session struct {
	mu        sync.RWMutex
	token     string
	profile   domain.Profile
	loaded    bool
	pending   float64
	valid     bool
	onExpired []func()
}

// New creates a session for token. Plan and balance are empty until Refresh.
func New(token string) *Session {
	return &Session{
		token:   token,
		valid:   token != "",
		profile: domain.Profile{Plan: domain.PlanFree},
	}
}

// Token returns the bearer token.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Plan returns the plan from the last refresh.
func (s *Session) Plan() domain.Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile.Plan
}

// Profile returns the last refreshed profile with the optimistic echo applied.
func (s *Session) Profile() domain.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.profile
	p.Balance = s.balanceLocked()
	return p
}

// Loaded reports whether at least one refresh has succeeded.
func (s *Session) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Balance returns the authoritative balance minus credits reserved since the last refresh.
func (s *Session) Balance() domain.UserBalance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balanceLocked()
}

func (s *Session) balanceLocked() domain.UserBalance {
	b := s.profile.Balance
	b.MinutesRemaining -= s.pending
	if b.MinutesRemaining < 0 {
		b.MinutesRemaining = 0
	}
	return b
}

// Reserve records an optimistic local deduction after an accepted submission.
// The backend remains authoritative and the next Refresh discards it.
func (s *Session) Reserve(cost float64) {
	if cost <= 0 {
		return
	}
	s.mu.Lock()
	s.pending += cost
	s.mu.Unlock()
}

// Refresh replaces plan and balance with the backend's view.
func (s *Session) Refresh(ctx context.Context, src ProfileSource) (domain.Profile, error) {
	profile, err := src.Me(ctx)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("refresh session: %w", err)
	}
	if profile.Plan == "" {
		profile.Plan = domain.PlanFree
	}

	s.mu.Lock()
	s.profile = profile
	s.pending = 0
	s.loaded = true
	s.mu.Unlock()
	return profile, nil
}

// Check returns ErrExpired when the session cannot authenticate requests.
func (s *Session) Check() error {
	if !s.Valid() {
		return ErrExpired
	}
	return nil
}

// Valid reports whether the token is still usable.
func (s *Session) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.valid
}

// OnExpired registers fn to run when the session is invalidated.
func (s *Session) OnExpired(fn func()) {
	s.mu.Lock()
	s.onExpired = append(s.onExpired, fn)
	s.mu.Unlock()
}

// Invalidate marks the session expired. Callbacks run once per transition.
func (s *Session) Invalidate() {
	s.mu.Lock()
	if !s.valid {
		s.mu.Unlock()
		return
	}
	s.valid = false
	callbacks := append([]func(){}, s.onExpired...)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}
