package view

import (
	"context"
	"net/http"

	"github.com/motorcrm/motorcrm/internal/i18n"
	"github.com/motorcrm/motorcrm/internal/shared"
)

type currentUserKey struct{}

// WithCurrentUser stores the signed-in user for templates.
func WithCurrentUser(ctx context.Context, user *CurrentUser) context.Context {
	return context.WithValue(ctx, currentUserKey{}, user)
}

// CurrentUserFromContext returns the user stored by WithCurrentUser.
func CurrentUserFromContext(ctx context.Context) *CurrentUser {
	user, _ := ctx.Value(currentUserKey{}).(*CurrentUser)
	return user
}

// NewTemplateData fills the request scoped fields: CSRF token, pending flash,
// locale and user.
func NewTemplateData(r *http.Request, csrf *shared.CSRFManager, title string, data any) TemplateData {
	ctx := r.Context()
	sess := shared.SessionFromContext(ctx)
	td := TemplateData{
		Title:       title,
		CurrentPath: r.URL.Path,
		Locale:      i18n.FromContext(ctx),
		User:        CurrentUserFromContext(ctx),
		Data:        data,
	}
	if sess != nil {
		if csrf != nil {
			td.CSRFToken, _ = csrf.EnsureToken(ctx, sess)
		}
		td.Flash = sess.PopFlash()
	}
	return td
}
