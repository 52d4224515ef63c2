package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"path"
	"strings"

	"golang.org/x/text/language"

	"github.com/motorcrm/motorcrm/internal/i18n"
	"github.com/motorcrm/motorcrm/internal/view"
	"github.com/motorcrm/motorcrm/web"
)

// Email templates.
const (
	TemplateProviderRequest     = "provider_request"
	TemplateBookingConfirmed    = "booking_confirmed"
	TemplateBookingNeedsChanges = "booking_needs_changes"
)

// Email is a templated message waiting to be rendered. It travels as the payload of
// the mail:send task, so Data holds JSON friendly values only.
type Email struct {
	Template string         `json:"template"`
	To       []string       `json:"to"`
	Locale   string         `json:"locale"`
	Data     map[string]any `json:"data"`
	// Key makes delivery idempotent across task retries.
	Key string `json:"key"`
}

// Mailer renders web/templates/emails and hands the result to a Sender. Each
// template defines a "subject" and a "body" block.
type Mailer struct {
	sender     Sender
	translator *i18n.Translator
	templates  map[string]*template.Template
	logger     *slog.Logger
}

// NewMailer parses the email templates.
func NewMailer(sender Sender, tr *i18n.Translator, logger *slog.Logger) (*Mailer, error) {
	m := &Mailer{sender: sender, translator: tr, templates: map[string]*template.Template{}, logger: logger}
	files, err := fs.Glob(web.Templates, "templates/emails/*.html")
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		name := strings.TrimSuffix(path.Base(file), ".html")
		tpl, err := template.New(path.Base(file)).Funcs(view.Funcs(tr, language.English)).ParseFS(web.Templates, file)
		if err != nil {
			return nil, fmt.Errorf("parse email %s: %w", name, err)
		}
		m.templates[name] = tpl
	}
	return m, nil
}

// Render produces the subject and HTML body of email.
func (m *Mailer) Render(email Email) (SendRequest, error) {
	base, ok := m.templates[email.Template]
	if !ok {
		return SendRequest{}, fmt.Errorf("unknown email template %q", email.Template)
	}
	tpl, err := base.Clone()
	if err != nil {
		return SendRequest{}, err
	}
	locale := language.Make(email.Locale)
	if email.Locale == "" {
		locale = language.English
	}
	tpl.Funcs(view.Funcs(m.translator, locale))

	var subject, body bytes.Buffer
	if err := tpl.ExecuteTemplate(&subject, "subject", email.Data); err != nil {
		return SendRequest{}, fmt.Errorf("render %s subject: %w", email.Template, err)
	}
	if err := tpl.ExecuteTemplate(&body, "body", email.Data); err != nil {
		return SendRequest{}, fmt.Errorf("render %s body: %w", email.Template, err)
	}
	return SendRequest{
		To:      email.To,
		Subject: strings.TrimSpace(subject.String()),
		HTML:    body.String(),
		RefID:   email.Key,
	}, nil
}

// Deliver renders email and sends it.
func (m *Mailer) Deliver(ctx context.Context, email Email) (SendResult, error) {
	req, err := m.Render(email)
	if err != nil {
		return SendResult{}, err
	}
	res, err := m.sender.Send(ctx, req)
	if err != nil {
		return SendResult{}, err
	}
	m.logger.Info("email sent", slog.String("template", email.Template), slog.String("message_id", res.MessageID))
	return res, nil
}
