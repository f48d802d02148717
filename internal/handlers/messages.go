package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
)

// MessageHandler serves direct-message history.
type MessageHandler struct {
	messages repositories.MessageRepository
	users    repositories.UserRepository
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messages repositories.MessageRepository, users repositories.UserRepository) *MessageHandler {
	return &MessageHandler{messages: messages, users: users}
}

type messageResponse struct {
	models.Message
	Sender models.Sender `json:"sender"`
}

// GetDirectMessages returns the conversation with another user, oldest
// first, and marks the incoming side as read.
func (h *MessageHandler) GetDirectMessages(c *gin.Context) {
	otherID, err := strconv.Atoi(c.Param("other_user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	userID := c.GetInt("userID")

	msgs, err := h.messages.ListDirect(c.Request.Context(), userID, otherID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	if err := h.messages.MarkDirectRead(c.Request.Context(), userID, otherID); err != nil {
		// Read receipts are advisory; the history itself already loaded.
		log.Printf("mark direct read %d<-%d: %v", userID, otherID, err)
	}

	responses, err := h.withSenders(c.Request.Context(), msgs)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load sender info"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": responses})
}

func (h *MessageHandler) withSenders(ctx context.Context, msgs []models.Message) ([]messageResponse, error) {
	senderIDs := make([]int, 0, len(msgs))
	seen := map[int]struct{}{}
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			senderIDs = append(senderIDs, m.SenderID)
		}
	}

	users, err := h.users.GetByIDs(ctx, senderIDs)
	if err != nil {
		return nil, err
	}
	senders := senderByID(users)

	responses := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		responses = append(responses, messageResponse{Message: m, Sender: senders[m.SenderID]})
	}
	return responses, nil
}
