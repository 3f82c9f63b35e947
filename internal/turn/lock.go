package turn

import "sync"

// sessionLocks is a per-session try-lock. A held session rejects new turns
// instead of queueing them.
type sessionLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{held: make(map[string]struct{})}
}

func (l *sessionLocks) tryLock(sessionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[sessionID]; ok {
		return false
	}
	l.held[sessionID] = struct{}{}
	return true
}

func (l *sessionLocks) unlock(sessionID string) {
	l.mu.Lock()
	delete(l.held, sessionID)
	l.mu.Unlock()
}
