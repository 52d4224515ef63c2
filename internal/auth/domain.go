package auth

import "time"

// User represents an authenticated user account.
type User struct {
	ID             int64
	OrganizationID int64
	Email          string
	FullName       string
	PasswordHash   string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Session keys holding display data for the signed-in user.
const (
	SessionUserName  = "user_name"
	SessionUserEmail = "user_email"
)
