package ws

import (
	"encoding/json"
	"log"

	"messenger-service/internal/observability"
)

// Router resolves target identities against the registry and pushes events
// onto live connections. Delivery is at-most-once and best-effort: offline
// targets are silently skipped, and a push failure is handled as an implicit
// disconnect of that target, never surfaced to the sender.
type Router struct {
	registry *Registry
	stale    func(*Client)
}

// NewRouter constructs a Router over the registry.
func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// SetStaleHandler installs the cleanup run when a push hits a dead
// connection. The session manager registers itself here.
func (r *Router) SetStaleHandler(fn func(*Client)) {
	r.stale = fn
}

// DeliverTo pushes the event to a single user, if online.
func (r *Router) DeliverTo(event any, userID int) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("marshal event: %v", err)
		return
	}
	client, ok := r.registry.Lookup(userID)
	if !ok {
		observability.IncDelivery("offline")
		return
	}
	r.push(client, payload)
}

// DeliverToMany pushes the event to every listed user that is online.
func (r *Router) DeliverToMany(event any, userIDs []int) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("marshal event: %v", err)
		return
	}
	for _, userID := range userIDs {
		client, ok := r.registry.Lookup(userID)
		if !ok {
			observability.IncDelivery("offline")
			continue
		}
		r.push(client, payload)
	}
}

// BroadcastAll pushes the event to every live connection.
func (r *Router) BroadcastAll(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("marshal event: %v", err)
		return
	}
	for _, client := range r.registry.Snapshot() {
		r.push(client, payload)
	}
}

func (r *Router) push(c *Client, payload []byte) {
	if err := c.Enqueue(payload); err != nil {
		log.Printf("push to user %d failed: %v", c.User.ID, err)
		observability.IncDelivery("stale")
		if r.stale != nil {
			r.stale(c)
		}
		return
	}
	observability.IncDelivery("delivered")
}
