package repositories

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

// ErrAmbiguousTarget rejects an append whose target is not exactly one of
// receiver/group. The dispatcher validates before calling; the repository
// enforces the invariant again so no caller can store a malformed row.
var ErrAmbiguousTarget = errors.New("message must target exactly one of receiver or group")

// AppendParams carries everything needed to store one message.
type AppendParams struct {
	SenderID   int
	Content    string
	FileURL    string
	FileType   string
	ReceiverID *int
	GroupID    *int
}

// MessageRepository abstracts message persistence. Append is the durability
// point for real-time delivery: fan-out only happens after it returns.
type MessageRepository interface {
	Append(ctx context.Context, params AppendParams) (models.Message, error)
	ListDirect(ctx context.Context, userID, otherID int) ([]models.Message, error)
	MarkDirectRead(ctx context.Context, userID, otherID int) error
	ListGroup(ctx context.Context, groupID int) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, content, file_url, file_type, sender_id, receiver_id, group_id, is_read, created_at`

// Append stores a message and returns it with the server-assigned id and
// timestamp.
func (r *MessageRepo) Append(ctx context.Context, params AppendParams) (models.Message, error) {
	if (params.ReceiverID == nil) == (params.GroupID == nil) {
		return models.Message{}, ErrAmbiguousTarget
	}

	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (content, file_url, file_type, sender_id, receiver_id, group_id)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING `+messageColumns,
		params.Content, params.FileURL, params.FileType, params.SenderID, params.ReceiverID, params.GroupID).
		StructScan(&msg)
	return msg, err
}

// ListDirect returns the conversation between two users in both directions,
// oldest first.
func (r *MessageRepo) ListDirect(ctx context.Context, userID, otherID int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
        ORDER BY created_at ASC`, userID, otherID)
	return msgs, err
}

// MarkDirectRead flags the other user's messages to this user as read.
func (r *MessageRepo) MarkDirectRead(ctx context.Context, userID, otherID int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE messages SET is_read=TRUE
        WHERE sender_id=$2 AND receiver_id=$1 AND is_read=FALSE`, userID, otherID)
	return err
}

// ListGroup returns a group's messages, oldest first.
func (r *MessageRepo) ListGroup(ctx context.Context, groupID int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE group_id=$1
        ORDER BY created_at ASC`, groupID)
	return msgs, err
}
