package ws

import (
	"context"
	"log"
	"time"

	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
)

// SessionManager runs the connect and disconnect halves of a connection's
// lifetime: registry bookkeeping, durable presence flags, and status
// broadcasts. Presence persistence is best-effort; the registry is the
// source of truth for who is online right now.
type SessionManager struct {
	registry *Registry
	router   *Router
	users    repositories.UserRepository
}

// NewSessionManager wires the session manager and installs it as the
// router's stale-connection handler.
func NewSessionManager(registry *Registry, router *Router, users repositories.UserRepository) *SessionManager {
	s := &SessionManager{registry: registry, router: router, users: users}
	router.SetStaleHandler(s.dropStale)
	return s
}

// Connect registers an authenticated connection, evicts any previous one for
// the same user, and announces the user online. The status broadcast happens
// only after registration, so "who is online" queries racing the broadcast
// stay consistent with the registry.
func (s *SessionManager) Connect(ctx context.Context, user models.User, conn Conn) *Client {
	client := NewClient(user, conn)
	if prev := s.registry.Register(client); prev != nil {
		log.Printf("user %d reconnected, evicting connection %s", user.ID, prev.ConnID)
		prev.Close()
	}

	s.persistPresence(ctx, user.ID, true)
	s.router.BroadcastAll(models.StatusEvent{Type: models.EventStatus, UserID: user.ID, IsOnline: true})
	return client
}

// Disconnect tears the connection down. Idempotent, and safe against the
// eviction race: if the client was already replaced by a newer connection,
// only its handle is closed and no offline status is announced.
func (s *SessionManager) Disconnect(ctx context.Context, client *Client) {
	client.Close()
	if !s.registry.Unregister(client) {
		return
	}

	s.persistPresence(ctx, client.User.ID, false)
	s.router.BroadcastAll(models.StatusEvent{Type: models.EventStatus, UserID: client.User.ID, IsOnline: false})
}

func (s *SessionManager) dropStale(client *Client) {
	s.Disconnect(context.Background(), client)
}

func (s *SessionManager) persistPresence(ctx context.Context, userID int, online bool) {
	if err := s.users.SetOnline(ctx, userID, online); err != nil {
		log.Printf("persist online=%t for user %d: %v", online, userID, err)
	}
	if err := s.users.TouchLastSeen(ctx, userID, time.Now().UTC()); err != nil {
		log.Printf("persist last_seen for user %d: %v", userID, err)
	}
}
