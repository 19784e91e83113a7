package server

import (
	"fmt"
	"sync"
	"time"
)

// SessionGuard admits at most one in-flight request per UI session.
type SessionGuard struct {
	mu     sync.Mutex
	active map[string]time.Time
}

// BusyError is returned when a session already has a request running.
type BusyError struct {
	SessionID string
	Since     time.Duration
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("session %s is busy (request running for %v)", e.SessionID, e.Since.Round(time.Millisecond))
}

// NewSessionGuard creates an empty guard.
func NewSessionGuard() *SessionGuard {
	return &SessionGuard{active: make(map[string]time.Time)}
}

// Acquire marks the session busy. The returned release func must be called
// once the request finishes; it is safe to call more than once.
func (g *SessionGuard) Acquire(sessionID string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if started, ok := g.active[sessionID]; ok {
		return nil, &BusyError{SessionID: sessionID, Since: now.Sub(started)}
	}
	g.active[sessionID] = now

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.active, sessionID)
			g.mu.Unlock()
		})
	}, nil
}

// Active returns the number of sessions with a request in flight.
func (g *SessionGuard) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}
