package models

// Role names accepted by the panel API.
type Role = string

const (
	RoleAdmin  Role = "admin"
	RoleUser   Role = "user"
	RoleViewer Role = "viewer"
)
