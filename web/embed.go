package web

import "embed"

// Templates embeds HTML templates for pages, emails and documents.
//
//go:embed templates
var Templates embed.FS

// Static embeds static assets.
//
//go:embed static
var Static embed.FS
