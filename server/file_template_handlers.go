package server

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/jrsteele09/possession-claims-frontend/claimmodel"
	"github.com/jrsteele09/possession-claims-frontend/journey"
	"github.com/rs/zerolog/log"
)

//go:embed templates/*
var templateFiles embed.FS

const layoutTemplate = "layout.html"

func TemplateFilesFS() fs.FS {
	// Create the sub filesystem once
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

// ParseTemplate parses a page from the embedded filesystem together with the shared layout
func ParseTemplate(name string) (*template.Template, error) {
	return template.ParseFS(TemplateFilesFS(), layoutTemplate, name)
}

// pageData is the model every page template renders from.
type pageData struct {
	AppName string
	Title   string
	User    *claimmodel.User

	Step    *journey.Step
	Values  map[string]string
	Errors  map[string]string
	Error   string
	Answers map[string]map[string]string

	Documents []claimmodel.DocumentReference

	Status int
	// Detail carries the raw error text and is only set in DEV.
	Detail string
}

func (s *Server) newPage(r *http.Request, title string) pageData {
	return pageData{
		AppName: s.appName,
		Title:   title,
		User:    currentSession(r).User(),
	}
}

// render executes the page into a buffer first so a template failure never leaves a half
// written response.
func (s *Server) render(w http.ResponseWriter, tmpl *template.Template, status int, data pageData) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, layoutTemplate, data); err != nil {
		log.Err(err).Str("template", tmpl.Name()).Msg("Failed to render template")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
