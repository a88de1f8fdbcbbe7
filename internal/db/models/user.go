package models

import "time"

// Roles. Admins may delete stored transcriptions.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is an API account. Password holds the bcrypt hash.
type User struct {
	ID        int64
	Username  string
	Password  string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile is the part of a user that is safe to return to clients.
type Profile struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (u *User) Profile() Profile {
	return Profile{ID: u.ID, Username: u.Username, Role: u.Role}
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
