// Package ui serves the embedded web interface.
package ui

import (
	_ "embed"
	"html/template"
	"net/http"
)

//go:embed index.html
var indexHTML string

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

// PageData parameterizes the index page.
type PageData struct {
	Width  int
	Height int
}

// Handler returns an http.Handler serving the index page with the stream
// sized to the given capture resolution.
func Handler(width, height int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = indexTemplate.Execute(w, PageData{Width: width, Height: height})
	})
}
