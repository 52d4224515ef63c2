// Package i18n resolves the request locale from a cookie or Accept-Language
// and translates template keys through an x/text message catalog.
package i18n

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// CookieName holds the locale selected by the user.
const CookieName = "locale"

// Supported lists the locales with translations, default first.
var Supported = []language.Tag{language.English, language.French}

// Translator translates keys for the supported locales.
type Translator struct {
	catalog  *catalog.Builder
	matcher  language.Matcher
	fallback language.Tag
}

// New builds a Translator with the bundled dictionaries.
func New(defaultLocale string) *Translator {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, entries := range dictionaries {
		for key, value := range entries {
			_ = b.SetString(tag, key, value)
		}
	}
	fallback := language.English
	if parsed, err := language.Parse(defaultLocale); err == nil {
		_, idx, _ := language.NewMatcher(Supported).Match(parsed)
		fallback = Supported[idx]
	}
	return &Translator{
		catalog:  b,
		matcher:  language.NewMatcher(Supported),
		fallback: fallback,
	}
}

// Resolve picks the locale for a request: cookie first, then Accept-Language, then the default.
func (t *Translator) Resolve(r *http.Request) language.Tag {
	if c, err := r.Cookie(CookieName); err == nil {
		if tag, ok := t.supported(c.Value); ok {
			return tag
		}
	}
	if header := r.Header.Get("Accept-Language"); header != "" {
		tags, _, err := language.ParseAcceptLanguage(header)
		if err == nil && len(tags) > 0 {
			_, idx, conf := t.matcher.Match(tags...)
			if conf != language.No {
				return Supported[idx]
			}
		}
	}
	return t.fallback
}

// Printer returns a message printer bound to the catalog.
func (t *Translator) Printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag, message.Catalog(t.catalog))
}

// Translate returns the translation of key, or the key itself when unknown.
func (t *Translator) Translate(tag language.Tag, key string, args ...any) string {
	if _, ok := lookup(tag, key); !ok {
		if _, ok := lookup(language.English, key); !ok {
			return key
		}
	}
	return t.Printer(tag).Sprintf(key, args...)
}

func (t *Translator) supported(raw string) (language.Tag, bool) {
	tag, err := language.Parse(strings.TrimSpace(raw))
	if err != nil {
		return language.Und, false
	}
	for _, s := range Supported {
		base, _ := tag.Base()
		sBase, _ := s.Base()
		if base == sBase {
			return s, true
		}
	}
	return language.Und, false
}

type localeKey struct{}

// Middleware stores the resolved locale in the request context.
func (t *Translator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tag := t.Resolve(r)
		ctx := context.WithValue(r.Context(), localeKey{}, tag)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the locale chosen by Middleware, English when absent.
func FromContext(ctx context.Context) language.Tag {
	if tag, ok := ctx.Value(localeKey{}).(language.Tag); ok {
		return tag
	}
	return language.English
}

// MountRoutes registers the locale switcher.
func (t *Translator) MountRoutes(r chi.Router) {
	r.Get("/{tag}", t.switchLocale)
}

func (t *Translator) switchLocale(w http.ResponseWriter, r *http.Request) {
	tag, ok := t.supported(chi.URLParam(r, "tag"))
	if !ok {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    tag.String(),
		Path:     "/",
		Expires:  time.Now().AddDate(1, 0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, safeReturnPath(r.Referer()), http.StatusSeeOther)
}

// safeReturnPath keeps redirects on this host.
func safeReturnPath(ref string) string {
	if ref == "" {
		return "/"
	}
	u, err := url.Parse(ref)
	if err != nil || u.Path == "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(u.Path, "//") {
		return "/"
	}
	if u.RawQuery != "" {
		return u.Path + "?" + u.RawQuery
	}
	return u.Path
}
