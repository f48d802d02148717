package models

import "time"

// Event kinds accepted from and emitted to websocket clients.
const (
	EventMessage = "message"
	EventTyping  = "typing"
	EventStatus  = "status"
	EventError   = "error"
)

// ClientEvent is the inbound websocket payload. Type must be "message" or
// "typing"; exactly one of ReceiverID and GroupID must be set. Anything else
// is a protocol error and closes the connection.
type ClientEvent struct {
	Type       string `json:"type"`
	Content    string `json:"content"`
	FileURL    string `json:"file_url"`
	FileType   string `json:"file_type"`
	ReceiverID *int   `json:"receiver_id,omitempty"`
	GroupID    *int   `json:"group_id,omitempty"`
}

// HasExclusiveTarget reports whether exactly one of receiver/group is set.
func (e ClientEvent) HasExclusiveTarget() bool {
	return (e.ReceiverID != nil) != (e.GroupID != nil)
}

// Sender is the profile snapshot embedded in outbound message events so
// clients can render without a second lookup.
type Sender struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// MessageEvent is the outbound echo of a stored message. ID and CreatedAt are
// the server-assigned values, so the sending client can reconcile any
// optimistic local copy.
type MessageEvent struct {
	Type       string    `json:"type"`
	ID         int       `json:"id"`
	Content    string    `json:"content"`
	FileURL    string    `json:"file_url"`
	FileType   string    `json:"file_type"`
	SenderID   int       `json:"sender_id"`
	ReceiverID *int      `json:"receiver_id,omitempty"`
	GroupID    *int      `json:"group_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Sender     Sender    `json:"sender"`
}

// NewMessageEvent builds the outbound event for a stored message.
func NewMessageEvent(msg Message, sender Sender) MessageEvent {
	return MessageEvent{
		Type:       EventMessage,
		ID:         msg.ID,
		Content:    msg.Content,
		FileURL:    msg.FileURL,
		FileType:   msg.FileType,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		GroupID:    msg.GroupID,
		CreatedAt:  msg.CreatedAt,
		Sender:     sender,
	}
}

// TypingEvent tells recipients that a user is composing. Never persisted.
type TypingEvent struct {
	Type     string `json:"type"`
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
}

// StatusEvent announces an online/offline transition. Ephemeral.
type StatusEvent struct {
	Type     string `json:"type"`
	UserID   int    `json:"user_id"`
	IsOnline bool   `json:"is_online"`
}

// ErrorEvent reports a transient failure to the sending client without
// closing the connection. The client is expected to retry the send.
type ErrorEvent struct {
	Type   string `json:"type"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
}
