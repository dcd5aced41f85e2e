package application

import (
	"context"
	"sync"
	"time"

	"github.com/monoklix/mkx-cli/internal/domain"
)

type fakeCache struct {
	mu      sync.Mutex
	profile domain.Profile
	loaded  bool
	getErr  error
	putErr  error
	puts    int
}

func (c *fakeCache) Get(context.Context) (domain.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return domain.Profile{}, c.getErr
	}
	if !c.loaded {
		return domain.Profile{}, domain.ErrProfileNotFound
	}
	return c.profile, nil
}

func (c *fakeCache) Put(_ context.Context, profile domain.Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.putErr != nil {
		return c.putErr
	}
	c.profile = profile
	c.loaded = true
	c.puts++
	return nil
}

type fakeProfiles struct {
	mu        sync.Mutex
	profiles  map[string]domain.Profile
	getErr    error
	assignErr error
	gets      int
}

func newFakeProfiles(profiles ...domain.Profile) *fakeProfiles {
	byID := make(map[string]domain.Profile, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}
	return &fakeProfiles{profiles: byID}
}

func (s *fakeProfiles) GetProfile(_ context.Context, userID string) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getErr != nil {
		return domain.Profile{}, s.getErr
	}
	profile, ok := s.profiles[userID]
	if !ok {
		return domain.Profile{}, domain.ErrProfileNotFound
	}
	return profile, nil
}

func (s *fakeProfiles) AssignPersonalToken(_ context.Context, userID, token string) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assignErr != nil {
		return domain.Profile{}, s.assignErr
	}
	profile, ok := s.profiles[userID]
	if !ok {
		profile = domain.Profile{ID: userID, Role: domain.RoleMember}
	}
	profile.PersonalAuthToken = token
	s.profiles[userID] = profile
	return profile, nil
}

type fakePool struct {
	mu     sync.Mutex
	tokens []domain.PoolToken
}

func (p *fakePool) ListTokens(_ context.Context, pool domain.TokenPool) ([]domain.PoolToken, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.PoolToken
	for _, t := range p.tokens {
		if t.Pool == pool {
			out = append(out, t)
		}
	}
	return out, nil
}

func (p *fakePool) AddToken(_ context.Context, token domain.PoolToken) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens = append(p.tokens, token)
	return nil
}

func (p *fakePool) RemoveToken(_ context.Context, token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, t := range p.tokens {
		if t.Token == token {
			p.tokens = append(p.tokens[:i], p.tokens[i+1:]...)
			return nil
		}
	}
	return domain.ErrPoolTokenNotFound
}

func (p *fakePool) IncrementIfAvailable(_ context.Context, token string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, t := range p.tokens {
		if t.Token != token {
			continue
		}
		if t.UsageCount >= t.UsageCeiling {
			return false, nil
		}
		p.tokens[i].UsageCount++
		return true, nil
	}
	return false, domain.ErrPoolTokenNotFound
}

type fakeAdmission struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (a *fakeAdmission) AcquireSlot(context.Context, string, time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return a.err
}

func (a *fakeAdmission) slotCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type captureSink struct {
	mu      sync.Mutex
	entries []domain.LogEntry
}

func (s *captureSink) Record(entry domain.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

func (s *captureSink) recorded() []domain.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
