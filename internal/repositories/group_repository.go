package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

var ErrGroupNotFound = errors.New("group not found")

// GroupRepository abstracts group persistence and membership lookup. Member
// sets are resolved per call, never cached: fan-out must see membership as it
// is at delivery time.
type GroupRepository interface {
	CreateGroup(ctx context.Context, ownerID int, name, description string) (models.Group, error)
	GetGroup(ctx context.Context, groupID int) (models.Group, error)
	ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error)
	AddMember(ctx context.Context, groupID int, userID int) error
	IsMember(ctx context.Context, groupID int, userID int) (bool, error)
	MemberIDs(ctx context.Context, groupID int) ([]int, error)
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

// CreateGroup creates a group and enrolls the owner as its first member.
func (r *GroupRepo) CreateGroup(ctx context.Context, ownerID int, name, description string) (models.Group, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Group{}, err
	}
	defer tx.Rollback()

	var group models.Group
	if err := tx.QueryRowxContext(ctx, `INSERT INTO groups (name, description, owner_id) VALUES ($1, $2, $3)
        RETURNING id, name, description, avatar, owner_id, created_at`, name, description, ownerID).
		StructScan(&group); err != nil {
		return models.Group{}, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)`, group.ID, ownerID); err != nil {
		return models.Group{}, err
	}
	return group, tx.Commit()
}

// GetGroup fetches a group by id.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID int) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `SELECT id, name, description, avatar, owner_id, created_at FROM groups WHERE id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

// ListGroupsForUser returns the groups the user belongs to.
func (r *GroupRepo) ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.SelectContext(ctx, &groups, `SELECT g.id, g.name, g.description, g.avatar, g.owner_id, g.created_at
        FROM groups g
        JOIN group_members gm ON gm.group_id = g.id
        WHERE gm.user_id=$1
        ORDER BY g.created_at DESC`, userID)
	return groups, err
}

// AddMember enrolls a user in a group. Joining twice is a no-op.
func (r *GroupRepo) AddMember(ctx context.Context, groupID int, userID int) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id)
        SELECT $1, $2 WHERE EXISTS (SELECT 1 FROM groups WHERE id=$1)
        ON CONFLICT (group_id, user_id) DO NOTHING`, groupID, userID)
	if err != nil {
		return err
	}
	exists, err := r.groupExists(ctx, groupID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrGroupNotFound
	}
	return nil
}

// IsMember checks whether a user belongs to the group.
func (r *GroupRepo) IsMember(ctx context.Context, groupID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id=$1 AND user_id=$2)`, groupID, userID)
	return exists, err
}

// MemberIDs returns the current member set. An unknown group yields an empty
// slice, not an error: fan-out treats it as zero recipients.
func (r *GroupRepo) MemberIDs(ctx context.Context, groupID int) ([]int, error) {
	ids := []int{}
	err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM group_members WHERE group_id=$1 ORDER BY user_id ASC`, groupID)
	return ids, err
}

func (r *GroupRepo) groupExists(ctx context.Context, groupID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM groups WHERE id=$1)`, groupID)
	return exists, err
}
