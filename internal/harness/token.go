package harness

import (
	"sync"
)

// State is the stop state carried by a Token
type State int

const (
	// Running means no stop was requested
	Running State = iota
	// GracefulRequested means in-flight work should finish, then stop
	GracefulRequested
	// Forced means outstanding work may be abandoned immediately
	Forced
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case GracefulRequested:
		return "graceful"
	case Forced:
		return "forced"
	default:
		return "unknown"
	}
}

// Token is a two-stage cancellation token. The first stop request asks for a
// graceful shutdown, any further request forces it. States only move forward.
type Token struct {
	mu       sync.Mutex
	state    State
	graceful chan struct{}
	forced   chan struct{}
}

// NewToken returns a token in the Running state
func NewToken() *Token {
	return &Token{
		graceful: make(chan struct{}),
		forced:   make(chan struct{}),
	}
}

// RequestStop escalates the token one step and returns the new state
func (t *Token) RequestStop() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case Running:
		t.state = GracefulRequested
		close(t.graceful)
	case GracefulRequested:
		t.state = Forced
		close(t.forced)
	}
	return t.state
}

// Force moves the token straight to Forced
func (t *Token) Force() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == Running {
		close(t.graceful)
	}
	if t.state != Forced {
		close(t.forced)
	}
	t.state = Forced
}

// State returns the current state
func (t *Token) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Graceful is closed once any stop was requested
func (t *Token) Graceful() <-chan struct{} {
	return t.graceful
}

// Forced is closed once the stop was escalated
func (t *Token) Forced() <-chan struct{} {
	return t.forced
}
