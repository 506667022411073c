// Package views holds the embedded HTML templates.
package views

import (
	"embed"
	"html/template"
	"time"

	"github.com/cppla/qaforum/utils"
)

//go:embed templates/*.html
var templateFS embed.FS

// Funcs are available to every template.
var Funcs = template.FuncMap{
	"markup":     utils.SanitizeHTML,
	"formatTime": func(t time.Time) string { return t.In(time.Local).Format("2006-01-02 15:04") },
}

// Load parses every page and partial into one set. Pages are addressed by file name, e.g. "index.html".
func Load() (*template.Template, error) {
	return template.New("").Funcs(Funcs).ParseFS(templateFS, "templates/*.html")
}
