package users

import "time"

// User is an account as listed on the admin pages.
type User struct {
	ID             int64
	OrganizationID int64
	Email          string
	FullName       string
	IsActive       bool
	Roles          []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Role is the first role name, or empty.
func (u User) Role() string {
	if len(u.Roles) == 0 {
		return ""
	}
	return u.Roles[0]
}

// CreateUserInput is the new-user form payload.
type CreateUserInput struct {
	Email    string `validate:"required,email,max=200"`
	FullName string `validate:"required,max=160"`
	Password string `validate:"required,min=8,max=72"`
	Role     string `validate:"required,max=60"`
}
