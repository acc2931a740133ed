package poller

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/veranemoloko/video-tracker/internal/domain"
)

// Session is the live, cancellable polling loop for one task handle.
// It is mutated only by its own loop goroutine.
type Session struct {
	id     string
	handle domain.TaskHandle

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	queries atomic.Int64

	mu       sync.RWMutex
	last     domain.TaskSnapshot
	state    domain.TaskState
	terminal bool
	stopped  bool
}

func newSession(parent context.Context, handle domain.TaskHandle) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		id:     uuid.New().String(),
		handle: handle,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  domain.TaskStatePending,
		last:   domain.TaskSnapshot{State: domain.TaskStatePending},
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Handle returns the task handle being polled.
func (s *Session) Handle() domain.TaskHandle { return s.handle }

// Last returns the most recent snapshot observed.
func (s *Session) Last() domain.TaskSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// State returns the session's forward-only lifecycle state.
func (s *Session) State() domain.TaskState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Terminal reports whether the session has observed Succeeded or Failed.
func (s *Session) Terminal() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.terminal
}

// Queries returns the number of status queries issued so far.
func (s *Session) Queries() int64 { return s.queries.Load() }

// Done is closed once the polling loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the cancellation cause if the session ended before reaching a
// terminal state, nil otherwise.
func (s *Session) Err() error {
	if s.Terminal() {
		return nil
	}
	return s.ctx.Err()
}

// apply records snap unless the session was stopped. It reports whether the
// snapshot was recorded and whether the session is now terminal.
func (s *Session) apply(snap domain.TaskSnapshot) (applied, terminal bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false, false
	}

	s.last = snap
	s.state = s.state.Advance(snap.State)
	if s.state.IsTerminal() {
		s.terminal = true
	}
	return true, s.terminal
}

// stop cancels the session. It reports false if it was already stopped or terminal.
func (s *Session) stop() bool {
	s.mu.Lock()
	first := !s.stopped && !s.terminal
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	return first
}
