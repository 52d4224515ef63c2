package i18n

import "golang.org/x/text/language"

var dictionaries = map[language.Tag]map[string]string{
	language.English: {
		"nav.dashboard":           "Dashboard",
		"nav.zones":               "Zones",
		"nav.customers":           "Customers",
		"nav.cars":                "Cars",
		"nav.deals":               "Deals",
		"nav.services":            "Services",
		"nav.bookings":            "Bookings",
		"nav.revenue":             "Revenue",
		"nav.users":               "Users",
		"nav.audit":               "Audit log",
		"nav.logout":              "Sign out",
		"nav.login":               "Sign in",
		"action.new":              "New",
		"action.save":             "Save",
		"action.edit":             "Edit",
		"action.delete":           "Delete",
		"action.search":           "Search",
		"action.cancel":           "Cancel",
		"action.accept":           "Accept",
		"action.decline":          "Decline",
		"action.send":             "Send requests",
		"action.sign":             "Mark signed",
		"action.complete":         "Complete",
		"action.export":           "Export",
		"action.contract":         "Contract PDF",
		"action.invoice":          "Invoice PDF",
		"label.status":            "Status",
		"label.total":             "Total",
		"label.notes":             "Notes",
		"label.name":              "Name",
		"label.email":             "Email",
		"label.phone":             "Phone",
		"label.code":              "Code",
		"label.zone":              "Zone",
		"label.price":             "Price",
		"label.customer":          "Customer",
		"label.actions":           "Actions",
		"label.password":          "Password",
		"label.role":              "Role",
		"label.active":            "Active",
		"dashboard.customers":     "Customers",
		"dashboard.cars":          "Cars available",
		"dashboard.deals":         "Open deals",
		"dashboard.bookings":      "Bookings awaiting providers",
		"dashboard.income":        "Income this month",
		"dashboard.net":           "Net this month",
		"respond.title":           "Service request",
		"respond.thanks":          "Thank you, your answer has been recorded.",
		"respond.already":         "This request has already been answered.",
		"empty.list":              "Nothing here yet.",
		"pagination.summary":      "Page %d of %d",
		"login.title":             "Sign in",
		"login.invalid":           "Invalid email or password",
		"welcome.title":           "Welcome to MotorCRM",
		"welcome.body":            "Dealership and trip booking workspace.",
		"label.booking":           "Booking",
		"label.service":           "Service",
		"label.trip":              "Trip",
		"label.pax":               "Travellers",
		"respond.note":            "Note for the agency (optional)",
		"respond.expired":         "This link is invalid or has expired.",
		"respond.closed":          "This booking no longer accepts answers.",
		"email.greeting":          "Hello",
		"email.request.subject":   "Service request for booking %s",
		"email.reminder.subject":  "Reminder: service request for booking %s",
		"email.request.intro":     "%s asks you to confirm the following service.",
		"email.request.cta":       "Accept or decline",
		"email.request.expiry":    "This link expires on %s.",
		"email.confirmed.subject": "Booking %s is confirmed",
		"email.confirmed.intro":   "Your trip from %s to %s is confirmed.",
		"email.changes.subject":   "Booking %s needs changes",
		"email.changes.intro":     "Some services of your trip from %s to %s are not available:",
		"email.changes.outro":     "Your agent will contact you with alternatives.",
	},
	language.French: {
		"nav.dashboard":           "Tableau de bord",
		"nav.zones":               "Zones",
		"nav.customers":           "Clients",
		"nav.cars":                "Voitures",
		"nav.deals":               "Ventes",
		"nav.services":            "Prestations",
		"nav.bookings":            "Réservations",
		"nav.revenue":             "Chiffre d'affaires",
		"nav.users":               "Utilisateurs",
		"nav.audit":               "Journal d'audit",
		"nav.logout":              "Se déconnecter",
		"nav.login":               "Se connecter",
		"action.new":              "Nouveau",
		"action.save":             "Enregistrer",
		"action.edit":             "Modifier",
		"action.delete":           "Supprimer",
		"action.search":           "Rechercher",
		"action.cancel":           "Annuler",
		"action.accept":           "Accepter",
		"action.decline":          "Refuser",
		"action.send":             "Envoyer les demandes",
		"action.sign":             "Marquer signé",
		"action.complete":         "Terminer",
		"action.export":           "Exporter",
		"action.contract":         "Contrat PDF",
		"action.invoice":          "Facture PDF",
		"label.status":            "Statut",
		"label.total":             "Total",
		"label.notes":             "Notes",
		"label.name":              "Nom",
		"label.email":             "E-mail",
		"label.phone":             "Téléphone",
		"label.code":              "Code",
		"label.zone":              "Zone",
		"label.price":             "Prix",
		"label.customer":          "Client",
		"label.actions":           "Actions",
		"label.password":          "Mot de passe",
		"label.role":              "Rôle",
		"label.active":            "Actif",
		"dashboard.customers":     "Clients",
		"dashboard.cars":          "Voitures disponibles",
		"dashboard.deals":         "Ventes en cours",
		"dashboard.bookings":      "Réservations en attente",
		"dashboard.income":        "Recettes du mois",
		"dashboard.net":           "Net du mois",
		"respond.title":           "Demande de prestation",
		"respond.thanks":          "Merci, votre réponse a été enregistrée.",
		"respond.already":         "Cette demande a déjà reçu une réponse.",
		"empty.list":              "Rien pour le moment.",
		"pagination.summary":      "Page %d sur %d",
		"login.title":             "Connexion",
		"login.invalid":           "E-mail ou mot de passe invalide",
		"welcome.title":           "Bienvenue sur MotorCRM",
		"welcome.body":            "Espace concession et réservations de voyages.",
		"label.booking":           "Réservation",
		"label.service":           "Prestation",
		"label.trip":              "Voyage",
		"label.pax":               "Voyageurs",
		"respond.note":            "Note pour l'agence (facultatif)",
		"respond.expired":         "Ce lien est invalide ou a expiré.",
		"respond.closed":          "Cette réservation n'accepte plus de réponses.",
		"email.greeting":          "Bonjour",
		"email.request.subject":   "Demande de prestation pour la réservation %s",
		"email.reminder.subject":  "Rappel : demande de prestation pour la réservation %s",
		"email.request.intro":     "%s vous demande de confirmer la prestation suivante.",
		"email.request.cta":       "Accepter ou refuser",
		"email.request.expiry":    "Ce lien expire le %s.",
		"email.confirmed.subject": "La réservation %s est confirmée",
		"email.confirmed.intro":   "Votre voyage du %s au %s est confirmé.",
		"email.changes.subject":   "La réservation %s doit être modifiée",
		"email.changes.intro":     "Certaines prestations de votre voyage du %s au %s ne sont pas disponibles :",
		"email.changes.outro":     "Votre conseiller vous proposera des alternatives.",
	},
}

func lookup(tag language.Tag, key string) (string, bool) {
	entries, ok := dictionaries[tag]
	if !ok {
		return "", false
	}
	v, ok := entries[key]
	return v, ok
}
