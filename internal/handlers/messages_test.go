package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/mocks"
	"messenger-service/internal/models"
)

func directMessage(id, senderID, receiverID int, content string) models.Message {
	return models.Message{
		ID:         id,
		Content:    content,
		SenderID:   senderID,
		ReceiverID: &receiverID,
		CreatedAt:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestGetDirectMessagesReturnsHistoryWithSenders(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	users := new(mocks.UserRepositoryMock)

	messages.On("ListDirect", mock.Anything, 1, 2).Return([]models.Message{
		directMessage(10, 1, 2, "hi"),
		directMessage(11, 2, 1, "hey"),
	}, nil).Once()
	messages.On("MarkDirectRead", mock.Anything, 1, 2).Return(nil).Once()
	users.On("GetByIDs", mock.Anything, []int{1, 2}).Return([]models.User{
		{ID: 1, Username: "alice", Avatar: "a.png"},
		{ID: 2, Username: "bob", Avatar: "b.png"},
	}, nil).Once()

	engine := gin.New()
	engine.GET("/api/messages/:other_user_id", asUser(1), NewMessageHandler(messages, users).GetDirectMessages)
	rec := perform(engine, http.MethodGet, "/api/messages/2")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Messages []struct {
			ID      int           `json:"id"`
			Content string        `json:"content"`
			Sender  models.Sender `json:"sender"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Messages, 2)
	require.Equal(t, "alice", body.Messages[0].Sender.Username)
	require.Equal(t, "bob", body.Messages[1].Sender.Username)
	messages.AssertExpectations(t)
	users.AssertExpectations(t)
}

func TestGetDirectMessagesReadReceiptFailureIsNonFatal(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	users := new(mocks.UserRepositoryMock)

	messages.On("ListDirect", mock.Anything, 1, 2).
		Return([]models.Message{directMessage(10, 2, 1, "hey")}, nil).Once()
	messages.On("MarkDirectRead", mock.Anything, 1, 2).Return(errors.New("db down")).Once()
	users.On("GetByIDs", mock.Anything, []int{2}).
		Return([]models.User{{ID: 2, Username: "bob"}}, nil).Once()

	engine := gin.New()
	engine.GET("/api/messages/:other_user_id", asUser(1), NewMessageHandler(messages, users).GetDirectMessages)
	rec := perform(engine, http.MethodGet, "/api/messages/2")

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGetDirectMessagesRejectsBadID(t *testing.T) {
	engine := gin.New()
	engine.GET("/api/messages/:other_user_id", asUser(1),
		NewMessageHandler(new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock)).GetDirectMessages)
	rec := perform(engine, http.MethodGet, "/api/messages/nope")

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDirectMessagesListFailure(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	messages.On("ListDirect", mock.Anything, 1, 2).Return(nil, errors.New("db down")).Once()

	engine := gin.New()
	engine.GET("/api/messages/:other_user_id", asUser(1),
		NewMessageHandler(messages, new(mocks.UserRepositoryMock)).GetDirectMessages)
	rec := perform(engine, http.MethodGet, "/api/messages/2")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
