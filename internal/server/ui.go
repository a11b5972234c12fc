package server

import (
	"embed"
	"html/template"
)

//go:embed templates/index.html
var templatesFS embed.FS

func mustParsePage() *template.Template {
	return template.Must(template.ParseFS(templatesFS, "templates/index.html"))
}
