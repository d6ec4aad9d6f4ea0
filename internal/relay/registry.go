package relay

import (
	"sync"

	"github.com/Haven-Technologies-Inc/telecall/internal/domain"
)

// registry maps connected users to their signaling connection. One
// connection per user: a reconnect supersedes the previous socket.
type registry struct {
	mu    sync.RWMutex
	conns map[domain.UserID]*conn
}

func newRegistry() *registry {
	return &registry{conns: make(map[domain.UserID]*conn)}
}

// bind registers c for uid and returns the superseded connection, if
// any, for the caller to close.
func (r *registry) bind(uid domain.UserID, c *conn) *conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.conns[uid]
	r.conns[uid] = c
	return prev
}

// unbind removes uid only while c is still its current connection and
// reports whether it did; a superseded connection leaves the entry
// alone.
func (r *registry) unbind(uid domain.UserID, c *conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[uid] == c {
		delete(r.conns, uid)
		return true
	}
	return false
}

func (r *registry) get(uid domain.UserID) (*conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[uid]
	return c, ok
}
