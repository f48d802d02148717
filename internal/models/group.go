package models

import "time"

// Group represents a chat group.
type Group struct {
	ID          int       `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Avatar      string    `db:"avatar" json:"avatar"`
	OwnerID     int       `db:"owner_id" json:"owner_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// GroupDetail is the API view of a group including its member list.
type GroupDetail struct {
	Group
	Members []User `json:"members"`
}
