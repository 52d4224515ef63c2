package view

import (
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/motorcrm/motorcrm/internal/i18n"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine(i18n.New("en"))
	require.NoError(t, err, "Templates should parse without error")
	assert.True(t, engine.Has("auth/login"))
	assert.True(t, engine.Has("dashboard/index"))
}

func TestRenderUsesLocale(t *testing.T) {
	engine, err := NewEngine(i18n.New("en"))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	err = engine.Render(rec, "auth/login", TemplateData{Title: "Login", Locale: language.French})
	require.NoError(t, err)
	assert.Contains(t, rec.Body.String(), "Mot de passe")
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	err = engine.Render(rec, "auth/login", TemplateData{Title: "Login", Locale: language.English})
	require.NoError(t, err)
	assert.Contains(t, rec.Body.String(), "Password")
}

func TestRenderUnknownPage(t *testing.T) {
	engine, err := NewEngine(nil)
	require.NoError(t, err)
	err = engine.Render(httptest.NewRecorder(), "nope/missing", TemplateData{})
	assert.Error(t, err)
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "0.00", Money(decimal.Zero))
	assert.Equal(t, "999.50", Money(decimal.RequireFromString("999.5")))
	assert.Equal(t, "1,234,567.89", Money(decimal.RequireFromString("1234567.891")))
	assert.Equal(t, "-12,000.00", Money(decimal.NewFromInt(-12000)))
}

func TestCan(t *testing.T) {
	var d TemplateData
	assert.False(t, d.Can("zones.view"))
	d.User = &CurrentUser{Permissions: map[string]bool{"zones.view": true}}
	assert.True(t, d.Can("zones.view"))
	assert.False(t, d.Can("zones.edit"))
}

func TestDict(t *testing.T) {
	m, err := Dict("a", 1, "b", "two")
	require.NoError(t, err)
	assert.Equal(t, 1, m["a"])
	_, err = Dict("a")
	assert.Error(t, err)
	_, err = Dict(1, 2)
	assert.Error(t, err)
}
