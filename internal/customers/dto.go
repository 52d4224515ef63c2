package customers

// CustomerInput is the create/edit form payload.
type CustomerInput struct {
	Code       string  `validate:"required,max=30"`
	FullName   string  `validate:"required,max=200"`
	Email      *string `validate:"omitempty,email,max=200"`
	Phone      *string `validate:"omitempty,max=50"`
	NationalID *string `validate:"omitempty,max=50"`
	Address    *string `validate:"omitempty,max=500"`
	ZoneID     *int64  `validate:"omitempty,gt=0"`
	Notes      *string `validate:"omitempty,max=2000"`
	IsActive   bool
}

// ListCustomersRequest filters the customer listing.
type ListCustomersRequest struct {
	OrganizationID int64
	Search         string
	ZoneID         *int64
	IsActive       *bool
	Limit          int
	Offset         int
}
