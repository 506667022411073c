package utils

import (
	"html/template"

	"github.com/microcosm-cc/bluemonday"
)

var sanitizer = bluemonday.UGCPolicy()

// SanitizeHTML cleans user-supplied markup down to a safe subset and marks it trusted for templates.
// Content is stored as submitted and cleaned only on the way out.
func SanitizeHTML(input string) template.HTML {
	return template.HTML(sanitizer.Sanitize(input))
}
