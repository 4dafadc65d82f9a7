package authz

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

type fakeStore struct {
	mu        sync.Mutex
	decisions map[string]Decision
	err       error
	calls     atomic.Int32
	lastID    string
}

func newFakeStore() *fakeStore {
	return &fakeStore{decisions: make(map[string]Decision)}
}

func (s *fakeStore) grant(principalID string, req Requirement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions[principalID+"|"+req.String()] = Decision{Granted: true}
}

func (s *fakeStore) deny(principalID string, req Requirement, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions[principalID+"|"+req.String()] = Decision{Reason: reason}
}

func (s *fakeStore) CheckPermission(ctx context.Context, principalID string, action Action, subject string) (Decision, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID = principalID
	if s.err != nil {
		return Decision{}, s.err
	}
	d, ok := s.decisions[principalID+"|"+NewRequirement(action, subject).String()]
	if !ok {
		return Decision{Reason: "no grant"}, nil
	}
	return d, nil
}

type fakeCatalog struct {
	roles []Role
	err   error
	calls atomic.Int32
}

func (c *fakeCatalog) ListActiveRoles(ctx context.Context) ([]Role, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.roles, nil
}

type memoryCache struct {
	mu   sync.Mutex
	h    Hierarchy
	ttl  time.Duration
	sets int
}

func (c *memoryCache) Get(ctx context.Context) (Hierarchy, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.h == nil {
		return nil, false, nil
	}
	return c.h, true, nil
}

func (c *memoryCache) Set(ctx context.Context, h Hierarchy, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.h = h
	c.ttl = ttl
	c.sets++
	return nil
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) AuthzDecision(strategy, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[strategy+"/"+outcome]++
}

func staticSession(p *Principal) SessionResolver {
	return SessionResolverFunc(func(r *http.Request) (*Principal, error) {
		if p == nil {
			return nil, ErrNoSession
		}
		return p, nil
	})
}

func standardRoles() []Role {
	return []Role{
		{Name: "SUPER_ADMIN", Priority: Rank(1), Active: true},
		{Name: "ADMIN", Priority: Rank(2), Active: true},
		{Name: "MANAGER", Priority: Rank(3), Active: true},
		{Name: "FOREMAN", Priority: Rank(5), Active: true},
		{Name: "EMPLOYEE", Priority: Rank(6), Active: true},
		{Name: "USER", Priority: Rank(7), Active: true},
	}
}
