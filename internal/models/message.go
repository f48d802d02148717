package models

import "time"

// Message is a stored chat message. Exactly one of ReceiverID and GroupID is
// set: a message is either direct or group, never both.
type Message struct {
	ID         int       `db:"id" json:"id"`
	Content    string    `db:"content" json:"content"`
	FileURL    string    `db:"file_url" json:"file_url"`
	FileType   string    `db:"file_type" json:"file_type"`
	SenderID   int       `db:"sender_id" json:"sender_id"`
	ReceiverID *int      `db:"receiver_id" json:"receiver_id,omitempty"`
	GroupID    *int      `db:"group_id" json:"group_id,omitempty"`
	IsRead     bool      `db:"is_read" json:"is_read"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// IsDirect reports whether the message targets a single receiver.
func (m Message) IsDirect() bool {
	return m.ReceiverID != nil
}
