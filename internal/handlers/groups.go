package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
)

// GroupHandler serves group management and group history.
type GroupHandler struct {
	groups   repositories.GroupRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	presence PresenceTracker
}

// NewGroupHandler builds a GroupHandler.
func NewGroupHandler(groups repositories.GroupRepository, messages repositories.MessageRepository, users repositories.UserRepository, presence PresenceTracker) *GroupHandler {
	return &GroupHandler{groups: groups, messages: messages, users: users, presence: presence}
}

// CreateGroup creates a group owned by the caller, who becomes its first
// member.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	group, err := h.groups.CreateGroup(c.Request.Context(), userID, req.Name, req.Description)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	detail, err := h.withMembers(c, group)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load members"})
		return
	}
	c.JSON(http.StatusOK, detail)
}

// ListGroups returns the caller's groups with their member lists.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	userID := c.GetInt("userID")

	groups, err := h.groups.ListGroupsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load groups"})
		return
	}

	details := make([]models.GroupDetail, 0, len(groups))
	for _, group := range groups {
		detail, err := h.withMembers(c, group)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load members"})
			return
		}
		details = append(details, detail)
	}
	c.JSON(http.StatusOK, gin.H{"groups": details})
}

// JoinGroup enrolls the caller. Joining a group twice is a no-op.
func (h *GroupHandler) JoinGroup(c *gin.Context) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	userID := c.GetInt("userID")
	if err := h.groups.AddMember(c.Request.Context(), groupID, userID); err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not join group"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetGroupMessages returns a group's history to its members.
func (h *GroupHandler) GetGroupMessages(c *gin.Context) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	userID := c.GetInt("userID")
	member, err := h.groups.IsMember(c.Request.Context(), groupID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a group member"})
		return
	}

	msgs, err := h.messages.ListGroup(c.Request.Context(), groupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	handler := MessageHandler{messages: h.messages, users: h.users}
	responses, err := handler.withSenders(c.Request.Context(), msgs)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load sender info"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": responses})
}

func (h *GroupHandler) withMembers(c *gin.Context, group models.Group) (models.GroupDetail, error) {
	memberIDs, err := h.groups.MemberIDs(c.Request.Context(), group.ID)
	if err != nil {
		return models.GroupDetail{}, err
	}
	members, err := h.users.GetByIDs(c.Request.Context(), memberIDs)
	if err != nil {
		return models.GroupDetail{}, err
	}
	for i := range members {
		members[i].IsOnline = h.presence.IsOnline(members[i].ID)
	}
	return models.GroupDetail{Group: group, Members: members}, nil
}
