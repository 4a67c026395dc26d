package mobly

import (
	"context"
	"sync"
)

// MockService counts lifecycle calls and can be told to fail any of them.
// Start sets alive and Stop clears it only when they succeed, so a failing
// Stop leaves the service alive.
type MockService struct {
	mu sync.Mutex

	Owner   any
	Configs any

	StartCalls   int
	StopCalls    int
	PauseCalls   int
	ResumeCalls  int
	StartConfigs []any

	StartErr  error
	StopErr   error
	PauseErr  error
	ResumeErr error

	// PanicOnStop makes Stop panic instead of returning
	PanicOnStop bool
	// PanicOnIsAlive makes IsAlive panic
	PanicOnIsAlive bool
	// PauseClearsAlive makes Pause/Resume toggle alive, like a service that
	// loses its connection while paused
	PauseClearsAlive bool

	alive bool
}

// mockFactory returns a Factory producing MockServices and the list every
// produced service is appended to
func mockFactory(setup func(*MockService)) (Factory, *[]*MockService) {
	var made []*MockService
	return func(owner, configs any) (Service, error) {
		s := &MockService{Owner: owner, Configs: configs}
		if setup != nil {
			setup(s)
		}
		made = append(made, s)
		return s, nil
	}, &made
}

func newMockService(owner, configs any) (Service, error) {
	return &MockService{Owner: owner, Configs: configs}, nil
}

func (s *MockService) Start(ctx context.Context, configs any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartCalls++
	s.StartConfigs = append(s.StartConfigs, configs)
	if s.StartErr != nil {
		return s.StartErr
	}
	s.alive = true
	return nil
}

func (s *MockService) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCalls++
	if s.PanicOnStop {
		panic("stop exploded")
	}
	if s.StopErr != nil {
		return s.StopErr
	}
	s.alive = false
	return nil
}

func (s *MockService) Pause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PauseCalls++
	if s.PauseErr != nil {
		return s.PauseErr
	}
	if s.PauseClearsAlive {
		s.alive = false
	}
	return nil
}

func (s *MockService) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResumeCalls++
	if s.ResumeErr != nil {
		return s.ResumeErr
	}
	if s.PauseClearsAlive {
		s.alive = true
	}
	return nil
}

func (s *MockService) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PanicOnIsAlive {
		panic("is_alive exploded")
	}
	return s.alive
}

// mustGet returns the MockService registered under alias
func mustGet(m *Manager, alias string) *MockService {
	s, ok := Lookup[*MockService](m, alias)
	if !ok {
		panic("no mock service registered as " + alias)
	}
	return s
}
