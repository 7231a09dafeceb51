package models

import "time"

type UserRole string

const (
	RoleViewer UserRole = "viewer"
	RoleStaff  UserRole = "staff"
)

var roleRank = map[UserRole]int{
	RoleViewer: 1,
	RoleStaff:  2,
}

func IsValidRole(role UserRole) bool {
	_, ok := roleRank[role]
	return ok
}

// HasAtLeast reports whether role sits at or above the required tier.
func HasAtLeast(role, required UserRole) bool {
	return roleRank[role] >= roleRank[required] && IsValidRole(role)
}

type User struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name" db:"last_name"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         UserRole  `json:"role" db:"role"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// DisplayName is what event logs record as the author.
func (u User) DisplayName() string {
	if u.FirstName == "" && u.LastName == "" {
		return u.Username
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
