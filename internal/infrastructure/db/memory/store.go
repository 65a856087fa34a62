// Package memory is the in-process reference implementation of
// ports.SessionStore. It backs the test suite and STORE_DRIVER=memory.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/projectcamp/auth-service/internal/core/domain"
	"github.com/projectcamp/auth-service/internal/core/ports"
)

// Store keeps principals and sessions in maps guarded by one lock, so every
// call is atomic with respect to every other.
type Store struct {
	mu         sync.RWMutex
	principals map[string]*domain.Principal
	byEmail    map[string]string
	byUsername map[string]string
	sessions   map[string]*domain.Session
	now        func() time.Time
}

var _ ports.SessionStore = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		principals: make(map[string]*domain.Principal),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
		sessions:   make(map[string]*domain.Session),
		now:        time.Now,
	}
}

func clonePrincipal(p *domain.Principal) *domain.Principal {
	if p == nil {
		return nil
	}
	c := *p
	if p.Verification != nil {
		g := *p.Verification
		c.Verification = &g
	}
	if p.PasswordReset != nil {
		g := *p.PasswordReset
		c.PasswordReset = &g
	}
	return &c
}

// FindPrincipalByEmailOrUsername matches email first, then username; empty
// keys are skipped.
func (s *Store) FindPrincipalByEmailOrUsername(_ context.Context, email, username string) (*domain.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if email != "" {
		if id, ok := s.byEmail[email]; ok {
			return clonePrincipal(s.principals[id]), nil
		}
	}
	if username != "" {
		if id, ok := s.byUsername[username]; ok {
			return clonePrincipal(s.principals[id]), nil
		}
	}
	return nil, domain.ErrNotFound
}

// FindPrincipalByID returns a copy of the principal stored under id.
func (s *Store) FindPrincipalByID(_ context.Context, id string) (*domain.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.principals[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePrincipal(p), nil
}

// FindPrincipalByToken scans for the principal whose grant under field holds
// hashed and is still live at now.
func (s *Store) FindPrincipalByToken(_ context.Context, field domain.TokenField, hashed string, now time.Time) (*domain.Principal, error) {
	if hashed == "" {
		return nil, domain.ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.principals {
		g := p.Grant(field)
		if g.ActiveAt(now) && g.Hash == hashed {
			return clonePrincipal(p), nil
		}
	}
	return nil, domain.ErrNotFound
}

// CreatePrincipal assigns an id and timestamps and stores a copy of
// principal. A taken email or username is domain.ErrConflict.
func (s *Store) CreatePrincipal(_ context.Context, principal *domain.Principal) (*domain.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[principal.Email]; exists {
		return nil, domain.ErrConflict
	}
	if principal.Username != "" {
		if _, exists := s.byUsername[principal.Username]; exists {
			return nil, domain.ErrConflict
		}
	}

	created := clonePrincipal(principal)
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if created.CreatedAt.IsZero() {
		created.CreatedAt = now
	}
	created.UpdatedAt = now

	s.principals[created.ID] = created
	s.byEmail[created.Email] = created.ID
	if created.Username != "" {
		s.byUsername[created.Username] = created.ID
	}
	return clonePrincipal(created), nil
}

// UpdatePrincipal checks the preconditions of u and applies it under the
// write lock. A failed precondition is ports.ErrPreconditionFailed.
func (s *Store) UpdatePrincipal(_ context.Context, id string, u ports.PrincipalUpdate) (*domain.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.principals[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	if u.ExpectRefreshTokenHash != nil && p.RefreshTokenHash != *u.ExpectRefreshTokenHash {
		return nil, ports.ErrPreconditionFailed
	}
	if u.ExpectGrant != nil {
		g := p.Grant(u.ExpectGrant.Field)
		if g == nil || g.Hash != u.ExpectGrant.Hash {
			return nil, ports.ErrPreconditionFailed
		}
	}

	next := clonePrincipal(p)
	if u.PasswordHash != nil {
		next.PasswordHash = *u.PasswordHash
	}
	if u.MarkEmailVerified {
		next.EmailVerified = true
	}
	if u.RefreshTokenHash != nil {
		next.RefreshTokenHash = *u.RefreshTokenHash
	}
	if u.ClearVerification {
		next.Verification = nil
	}
	if u.SetVerification != nil {
		g := *u.SetVerification
		next.Verification = &g
	}
	if u.ClearPasswordReset {
		next.PasswordReset = nil
	}
	if u.SetPasswordReset != nil {
		g := *u.SetPasswordReset
		next.PasswordReset = &g
	}
	next.UpdatedAt = s.now().UTC()

	s.principals[id] = next
	return clonePrincipal(next), nil
}

// CreateSession stores a copy of session; a duplicate id is domain.ErrConflict.
func (s *Store) CreateSession(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return domain.ErrConflict
	}
	c := *session
	s.sessions[session.ID] = &c
	return nil
}

// FindSession returns a copy of the session stored under id.
func (s *Store) FindSession(_ context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *sess
	return &c, nil
}

// DeleteSession removes the session; deleting an absent id succeeds.
func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}
