package model

import "github.com/google/uuid"

type UserRole string

const (
	UserRoleAdmin   UserRole = "ADMIN"
	UserRoleManager UserRole = "MANAGER"
	UserRoleViewer  UserRole = "VIEWER"
)

type Principal struct {
	UserID uuid.UUID
	OrgID  uuid.UUID
	Role   UserRole
}

func (p Principal) IsViewer() bool {
	return p.Role == UserRoleViewer
}

func (p Principal) CanEdit() bool {
	return p.Role == UserRoleAdmin || p.Role == UserRoleManager
}
