package zones

// ZoneInput is the create/edit form payload.
type ZoneInput struct {
	Code        string `validate:"required,max=20"`
	Name        string `validate:"required,max=120"`
	Description string `validate:"max=500"`
	IsActive    bool
}

// ListZonesRequest filters the zone listing.
type ListZonesRequest struct {
	OrganizationID int64
	Search         string
	IsActive       *bool
	Limit          int
	Offset         int
}
