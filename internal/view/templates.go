package view

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/inventory-manager/inventory-manager/internal/rbac"
	"github.com/inventory-manager/inventory-manager/internal/shared"
	"github.com/inventory-manager/inventory-manager/web"
)

// DisplayDateLayout is the date format used on pages and in JSON listings.
const DisplayDateLayout = "02, Jan 2006"

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Viewer      *rbac.Principal
	Data        any
}

// NewTemplateData fills the shared fields from the request: the CSRF token,
// the next flash message and the logged-in principal.
func NewTemplateData(r *http.Request, csrf *shared.CSRFManager, title string, data any) TemplateData {
	sess := shared.SessionFromContext(r.Context())
	var token string
	if csrf != nil && sess != nil {
		token, _ = csrf.EnsureToken(r.Context(), sess)
	}
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	return TemplateData{
		Title:       title,
		CSRFToken:   token,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Viewer:      rbac.PrincipalFromContext(r.Context()),
		Data:        data,
	}
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	titleCaser := cases.Title(language.English)
	funcMap := template.FuncMap{
		"formatDate": formatDate,
		"formatDateTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"dateInput": func(t *time.Time) string {
			if t == nil || t.IsZero() {
				return ""
			}
			return t.Format("2006-01-02")
		},
		"title": func(v any) string {
			return titleCaser.String(strings.ReplaceAll(fmt.Sprint(v), "_", " "))
		},
		"hasAdmin": func(p *rbac.Principal) bool {
			return p.HasAdmin()
		},
		"isSuper": func(p *rbac.Principal) bool {
			return p.IsSuper()
		},
		"active": func(current, prefix string) bool {
			if prefix == "/" {
				return current == "/"
			}
			return strings.HasPrefix(current, prefix)
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	return e.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus renders into a buffer first so a template failure never leaves
// a half written page behind a success status.
func (e *Engine) RenderStatus(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// Execute writes a template to an arbitrary writer, used for documents that
// are not served directly such as PDF sources.
func (e *Engine) Execute(w io.Writer, name string, data any) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	return e.templates.ExecuteTemplate(w, name, data)
}

type errorPage struct {
	Status   int
	Message  string
	LoginURL string
}

// RenderError draws the shared error page with the given status.
func (e *Engine) RenderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	page := errorPage{Status: status, Message: message}
	if status == http.StatusUnauthorized {
		page.LoginURL = rbac.LoginURL(r)
	}
	data := TemplateData{
		Title:       http.StatusText(status),
		CurrentPath: r.URL.Path,
		Viewer:      rbac.PrincipalFromContext(r.Context()),
		Data:        page,
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		data.CSRFToken = sess.Get(shared.CSRFSessionKey)
	}
	if err := e.RenderStatus(w, status, "pages/error.html", data); err != nil {
		http.Error(w, message, status)
	}
}

func formatDate(v any) string {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.Format(DisplayDateLayout)
	case *time.Time:
		if t == nil || t.IsZero() {
			return ""
		}
		return t.Format(DisplayDateLayout)
	}
	return ""
}

var _ rbac.ErrorRenderer = (*Engine)(nil)
