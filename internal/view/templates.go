package view

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/odyssey-erp/odyssey-auth/web"
)

// Engine renders HTML email templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title string
	Data  any
}

// VerifyEmailData feeds the verification email.
type VerifyEmailData struct {
	Name      string
	Link      string
	ExpiresAt time.Time
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.UTC().Format("02 Jan 2006 15:04")
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Emails, web.EmailTemplatesGlob)
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData and returns the output.
func (e *Engine) Render(name string, data TemplateData) (string, error) {
	if e == nil {
		return "", fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderVerifyEmail renders the email-verification message body.
func (e *Engine) RenderVerifyEmail(data VerifyEmailData) (string, error) {
	return e.Render("emails/verify_email.html", TemplateData{Title: "Verify your email address", Data: data})
}
