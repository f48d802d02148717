package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
)

// PresenceTracker reports live connection state. The websocket registry
// implements it; the durable is_online column is only a best-effort mirror.
type PresenceTracker interface {
	IsOnline(userID int) bool
}

// UserHandler serves user profiles with live presence overlaid.
type UserHandler struct {
	users    repositories.UserRepository
	presence PresenceTracker
}

// NewUserHandler builds a UserHandler.
func NewUserHandler(users repositories.UserRepository, presence PresenceTracker) *UserHandler {
	return &UserHandler{users: users, presence: presence}
}

// GetMe returns the authenticated user's profile.
func (h *UserHandler) GetMe(c *gin.Context) {
	userID := c.GetInt("userID")

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}
	user.IsOnline = h.presence.IsOnline(user.ID)
	c.JSON(http.StatusOK, user)
}

// ListUsers returns every other user, with is_online taken from the live
// registry rather than the persisted flag.
func (h *UserHandler) ListUsers(c *gin.Context) {
	userID := c.GetInt("userID")

	users, err := h.users.ListOthers(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}
	for i := range users {
		users[i].IsOnline = h.presence.IsOnline(users[i].ID)
	}
	c.JSON(http.StatusOK, users)
}

// GetUser returns a single user profile.
func (h *UserHandler) GetUser(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}
	user.IsOnline = h.presence.IsOnline(user.ID)
	c.JSON(http.StatusOK, user)
}

func senderByID(users []models.User) map[int]models.Sender {
	senders := make(map[int]models.Sender, len(users))
	for _, u := range users {
		senders[u.ID] = models.Sender{ID: u.ID, Username: u.Username, Avatar: u.Avatar}
	}
	return senders
}
