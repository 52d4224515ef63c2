package view

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	"github.com/motorcrm/motorcrm/internal/i18n"
	"github.com/motorcrm/motorcrm/internal/shared"
	"github.com/motorcrm/motorcrm/web"
)

// CurrentUser is the signed-in user as seen by templates.
type CurrentUser struct {
	ID          int64
	Name        string
	Email       string
	Permissions map[string]bool
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Locale      language.Tag
	User        *CurrentUser
	Data        any
}

// Can reports whether the current user holds perm.
func (d TemplateData) Can(perm string) bool {
	if d.User == nil {
		return false
	}
	return d.User.Permissions[perm]
}

// Engine renders HTML templates. Each page is parsed together with the layouts and
// partials so pages can define their own "content" block.
type Engine struct {
	pages      map[string]*template.Template
	translator *i18n.Translator
}

// NewEngine parses every page under templates/pages.
func NewEngine(tr *i18n.Translator) (*Engine, error) {
	if tr == nil {
		tr = i18n.New("en")
	}
	files, err := fs.Glob(web.Templates, "templates/pages/*/*.html")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New("view: no page templates found")
	}
	e := &Engine{pages: make(map[string]*template.Template, len(files)), translator: tr}
	for _, file := range files {
		name := strings.TrimSuffix(strings.TrimPrefix(file, "templates/pages/"), ".html")
		tpl, err := template.New(path.Base(file)).
			Funcs(Funcs(tr, language.English)).
			ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", file)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		e.pages[name] = tpl
	}
	return e, nil
}

// Has reports whether a page exists.
func (e *Engine) Has(name string) bool {
	_, ok := e.pages[name]
	return ok
}

// Render executes page name inside the base layout.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	return e.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus renders like Render with an explicit status code. Nothing is written
// when the template fails so callers can still send an error response.
func (e *Engine) RenderStatus(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.Execute(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// Execute writes the rendered page to w without touching HTTP headers.
func (e *Engine) Execute(w io.Writer, name string, data TemplateData) error {
	base, ok := e.pages[name]
	if !ok {
		return fmt.Errorf("view: unknown page %q", name)
	}
	tpl, err := base.Clone()
	if err != nil {
		return err
	}
	tpl.Funcs(Funcs(e.translator, data.Locale))
	return tpl.ExecuteTemplate(w, "base", data)
}

// Funcs returns the helpers shared by pages, emails and documents. The t helper is
// bound to locale.
func Funcs(tr *i18n.Translator, locale language.Tag) template.FuncMap {
	return template.FuncMap{
		"t": func(key string, args ...any) string {
			if tr == nil {
				return key
			}
			return tr.Translate(locale, key, args...)
		},
		"locale":     func() string { return locale.String() },
		"formatDate": FormatDate,
		"formatDay":  FormatDay,
		"money":      Money,
		"deref":      Deref,
		"derefTime":  DerefTime,
		"derefID":    DerefID,
		"add":        func(a, b int) int { return a + b },
		"lower":      strings.ToLower,
		"dict":       Dict,
	}
}

// FormatDate formats a timestamp for lists and detail pages.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02 Jan 2006 15:04")
}

// FormatDay formats a calendar date.
func FormatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02 Jan 2006")
}

// Money renders an amount with two decimals and thousand separators.
func Money(d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")
	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// Deref returns the pointed string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// DerefID returns 0 for a nil reference.
func DerefID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

// DerefTime formats an optional timestamp.
func DerefTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatDate(*t)
}

// Dict builds a map from alternating key/value arguments for partial templates.
func Dict(values ...any) (map[string]any, error) {
	if len(values)%2 != 0 {
		return nil, errors.New("dict: odd number of arguments")
	}
	out := make(map[string]any, len(values)/2)
	for i := 0; i < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict: key %v is not a string", values[i])
		}
		out[key] = values[i+1]
	}
	return out, nil
}
