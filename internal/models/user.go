package models

import "time"

type Role string

const (
	RoleAdmin       Role = "admin"
	RoleSuperLeader Role = "super_leader"
	RoleLeader      Role = "leader"
	RoleMember      Role = "member"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSuperLeader, RoleLeader, RoleMember:
		return true
	}
	return false
}

type User struct {
	ID           int64     `json:"id,string"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	Role         Role      `json:"role"`
	DeviceToken  *string   `json:"-"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
