package rbac

import "time"

// Role represents a named permission grouping inside an organization.
type Role struct {
	ID             int64
	OrganizationID int64
	Name           string
	Description    string
	Permissions    []string
	CreatedAt      time.Time
}

// Permission represents an atomic capability.
type Permission struct {
	ID          int64
	Name        string
	Description string
}
