package documents

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/language"

	"github.com/motorcrm/motorcrm/internal/i18n"
	"github.com/motorcrm/motorcrm/internal/view"
	"github.com/motorcrm/motorcrm/web"
)

// Party is the customer block printed on documents.
type Party struct {
	Code       string
	Name       string
	Email      string
	Phone      string
	Address    string
	NationalID string
}

// ContractData feeds the deal contract template.
type ContractData struct {
	Locale       language.Tag
	Organization string
	DocNumber    string
	Date         time.Time
	Status       string
	Customer     Party
	Vehicle      string
	VIN          string
	Year         int
	Mileage      int
	SalePrice    decimal.Decimal
	DownPayment  decimal.Decimal
	Balance      decimal.Decimal
	Terms        string
}

// InvoiceLine is one billed booking service.
type InvoiceLine struct {
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	Total     decimal.Decimal
}

// InvoiceData feeds the booking invoice template.
type InvoiceData struct {
	Locale       language.Tag
	Organization string
	DocNumber    string
	Date         time.Time
	Customer     Party
	TripStart    time.Time
	TripEnd      time.Time
	Pax          int
	Lines        []InvoiceLine
	Total        decimal.Decimal
}

// Renderer fills document templates and converts them to PDF.
type Renderer struct {
	converter  Converter
	translator *i18n.Translator
	templates  map[string]*template.Template
	markdown   goldmark.Markdown
}

// NewRenderer parses templates/documents/*.html.
func NewRenderer(converter Converter, tr *i18n.Translator) (*Renderer, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough))
	r := &Renderer{converter: converter, translator: tr, markdown: md, templates: map[string]*template.Template{}}

	files, err := fs.Glob(web.Templates, "templates/documents/*.html")
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		name := strings.TrimSuffix(path.Base(file), ".html")
		tpl, err := template.New(path.Base(file)).Funcs(r.funcs(language.English)).ParseFS(web.Templates, file)
		if err != nil {
			return nil, fmt.Errorf("parse document %s: %w", name, err)
		}
		r.templates[name] = tpl
	}
	return r, nil
}

// Markdown renders source as HTML. Raw HTML in the source is dropped.
func (r *Renderer) Markdown(source string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// HTML executes the named document template.
func (r *Renderer) HTML(name string, locale language.Tag, data any) (string, error) {
	base, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown document %q", name)
	}
	tpl, err := base.Clone()
	if err != nil {
		return "", err
	}
	tpl.Funcs(r.funcs(locale))
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render document %s: %w", name, err)
	}
	return buf.String(), nil
}

// Contract renders a deal contract PDF.
func (r *Renderer) Contract(ctx context.Context, data ContractData) ([]byte, error) {
	html, err := r.HTML("contract", data.Locale, data)
	if err != nil {
		return nil, err
	}
	return r.converter.Convert(ctx, html, DefaultOptions())
}

// Invoice renders a booking invoice PDF.
func (r *Renderer) Invoice(ctx context.Context, data InvoiceData) ([]byte, error) {
	html, err := r.HTML("invoice", data.Locale, data)
	if err != nil {
		return nil, err
	}
	return r.converter.Convert(ctx, html, DefaultOptions())
}

func (r *Renderer) funcs(locale language.Tag) template.FuncMap {
	funcs := view.Funcs(r.translator, locale)
	funcs["markdown"] = func(source string) (template.HTML, error) {
		return r.Markdown(source)
	}
	return funcs
}
