package shared

// Permission names checked by route groups.
const (
	PermZonesView = "zones.view"
	PermZonesEdit = "zones.edit"

	PermCustomersView = "customers.view"
	PermCustomersEdit = "customers.edit"

	PermCarsView = "cars.view"
	PermCarsEdit = "cars.edit"

	PermDealsView = "deals.view"
	PermDealsEdit = "deals.edit"

	PermServicesView = "services.view"
	PermServicesEdit = "services.edit"

	PermBookingsView    = "bookings.view"
	PermBookingsEdit    = "bookings.edit"
	PermBookingsRespond = "bookings.respond"

	PermRevenueView = "revenue.view"

	PermDocumentsRender = "documents.render"

	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermAuditView = "audit.view"
)

// AllPermissions lists every permission known to the application.
func AllPermissions() []string {
	return []string{
		PermZonesView, PermZonesEdit,
		PermCustomersView, PermCustomersEdit,
		PermCarsView, PermCarsEdit,
		PermDealsView, PermDealsEdit,
		PermServicesView, PermServicesEdit,
		PermBookingsView, PermBookingsEdit, PermBookingsRespond,
		PermRevenueView,
		PermDocumentsRender,
		PermUsersView, PermUsersEdit,
		PermAuditView,
	}
}

// BuiltinRoles maps the seeded role names to their permissions.
func BuiltinRoles() map[string][]string {
	all := AllPermissions()
	manager := make([]string, 0, len(all))
	for _, p := range all {
		if p != PermUsersEdit {
			manager = append(manager, p)
		}
	}
	return map[string][]string{
		"admin":   all,
		"manager": manager,
		"agent": {
			PermZonesView,
			PermCustomersView, PermCustomersEdit,
			PermCarsView,
			PermDealsView, PermDealsEdit,
			PermServicesView,
			PermBookingsView, PermBookingsEdit, PermBookingsRespond,
			PermDocumentsRender,
		},
	}
}
