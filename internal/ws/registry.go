package ws

import "sync"

// Registry maps user ids to their single live connection. It is the only
// structure in the core mutated from many connection lifecycles at once, so
// every operation serializes on one mutex. The registry never performs I/O;
// closing evicted handles is the caller's job.
type Registry struct {
	mu      sync.RWMutex
	clients map[int]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[int]*Client)}
}

// Register installs the client as the user's connection, replacing any
// previous one. The replaced client is returned so the caller can close it:
// last write wins, at most one connection per user.
func (r *Registry) Register(c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.clients[c.User.ID]
	r.clients[c.User.ID] = c
	return prev
}

// Unregister removes the client if it is still the user's current
// connection. A client evicted by a newer register leaves its successor
// untouched; calling twice is a no-op. Reports whether a removal happened.
func (r *Registry) Unregister(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.clients[c.User.ID]; !ok || current != c {
		return false
	}
	delete(r.clients, c.User.ID)
	return true
}

// Lookup returns the live connection for a user, if any.
func (r *Registry) Lookup(userID int) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[userID]
	return c, ok
}

// IsOnline reports whether the user has a registered connection.
func (r *Registry) IsOnline(userID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[userID]
	return ok
}

// OnlineUserIDs returns the ids of all connected users.
func (r *Registry) OnlineUserIDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

// Snapshot returns the current set of live connections. Callers push frames
// outside the registry lock.
func (r *Registry) Snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
