package zones

import "time"

// Zone groups customers and cars by sales territory.
type Zone struct {
	ID             int64
	OrganizationID int64
	Code           string
	Name           string
	Description    string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
