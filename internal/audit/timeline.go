package audit

import "time"

// TimelineFilters narrows the audit timeline of one organization.
type TimelineFilters struct {
	OrganizationID int64
	From           time.Time
	To             time.Time
	Actor          string
	Entity         string
	Action         string
	Page           int
	PageSize       int
}

// TimelineRow is one audit entry as displayed.
type TimelineRow struct {
	At       time.Time
	Actor    string
	Action   string
	Entity   string
	EntityID string
	Meta     string
}

// PagingInfo holds simple next/prev paging metadata.
type PagingInfo struct {
	Page     int
	HasNext  bool
	PageSize int
	PrevPage int
	NextPage int
}

// FiltersViewModel echoes the filters back to the template.
type FiltersViewModel struct {
	From   time.Time
	To     time.Time
	Actor  string
	Entity string
	Action string
}

// ViewModel is the data of the audit timeline page.
type ViewModel struct {
	Filters FiltersViewModel
	Rows    []TimelineRow
	Paging  PagingInfo
	Query   string
}
