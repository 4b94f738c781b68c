// Package web holds the embedded email templates.
package web

import "embed"

// EmailTemplatesGlob matches every email template inside Emails.
const EmailTemplatesGlob = "templates/emails/*.html"

// Emails embeds the transactional email layouts and bodies.
//
//go:embed templates/emails/*.html
var Emails embed.FS
