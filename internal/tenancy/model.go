// Package tenancy manages organizations, the tenants every business row belongs to.
package tenancy

import "time"

// Organization is one dealership or travel agency.
type Organization struct {
	ID        int64
	Name      string
	Slug      string
	Locale    string
	Currency  string
	CreatedAt time.Time
}

// CreateInput describes a new organization.
type CreateInput struct {
	Name     string `validate:"required,max=120"`
	Locale   string `validate:"omitempty,oneof=en fr"`
	Currency string `validate:"omitempty,len=3,uppercase"`
}
