package domain

import "time"

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

type Project struct {
	ID         string     `db:"id"`
	OwnerID    int64      `db:"owner_id"`
	Visibility Visibility `db:"visibility"`
	CreatedAt  time.Time  `db:"created_at"`
}

// Роли коллабораторов; для relay важен сам факт наличия роли.
const (
	RoleEditor = "editor"
	RoleViewer = "viewer"
)
