package service

import (
	"sync"

	"peertrust/internal/domain"
)

// peerLocks serializes writes to the same peer's trust record. Entries are
// dropped once no writer holds or waits for them.
type peerLocks struct {
	mu    sync.Mutex
	locks map[domain.PeerID]*peerLock
}

type peerLock struct {
	mu   sync.Mutex
	refs int
}

func newPeerLocks() *peerLocks {
	return &peerLocks{locks: make(map[domain.PeerID]*peerLock)}
}

// lock blocks until id is free and returns the matching unlock
func (l *peerLocks) lock(id domain.PeerID) func() {
	l.mu.Lock()
	pl, ok := l.locks[id]
	if !ok {
		pl = &peerLock{}
		l.locks[id] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()
	return func() {
		pl.mu.Unlock()
		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *peerLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
