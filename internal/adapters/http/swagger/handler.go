// Package swagger serves the ops API description and a rendered docs page.
package swagger

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrSpec reports an embedded OpenAPI document that cannot be rendered.
var ErrSpec = errors.New("invalid openapi document")

type document struct {
	Info struct {
		Title       string `yaml:"title"`
		Version     string `yaml:"version"`
		Description string `yaml:"description"`
	} `yaml:"info"`
	Paths map[string]map[string]struct {
		Summary   string `yaml:"summary"`
		Responses map[string]struct {
			Description string `yaml:"description"`
		} `yaml:"responses"`
	} `yaml:"paths"`
}

type route struct {
	Method    string
	Path      string
	Summary   string
	Responses []response
}

type response struct {
	Status      string
	Description string
}

type page struct {
	Title       string
	Version     string
	Description string
	Routes      []route
}

// Render builds the docs page from an OpenAPI document.
func Render(spec []byte) ([]byte, error) {
	var doc document
	if err := yaml.Unmarshal(spec, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpec, err)
	}
	if len(doc.Paths) == 0 {
		return nil, fmt.Errorf("%w: no paths", ErrSpec)
	}

	p := page{Title: doc.Info.Title, Version: doc.Info.Version, Description: doc.Info.Description}
	for path, ops := range doc.Paths {
		for method, op := range ops {
			r := route{Method: method, Path: path, Summary: op.Summary}
			for status, resp := range op.Responses {
				r.Responses = append(r.Responses, response{Status: status, Description: resp.Description})
			}
			sort.Slice(r.Responses, func(i, j int) bool { return r.Responses[i].Status < r.Responses[j].Status })
			p.Routes = append(p.Routes, r)
		}
	}
	sort.Slice(p.Routes, func(i, j int) bool {
		if p.Routes[i].Path != p.Routes[j].Path {
			return p.Routes[i].Path < p.Routes[j].Path
		}
		return p.Routes[i].Method < p.Routes[j].Method
	})

	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, p); err != nil {
		return nil, fmt.Errorf("render docs: %w", err)
	}
	return buf.Bytes(), nil
}

// Register attaches the docs routes to mux.
//
//	GET /api-docs      -> HTML page rendered from the spec
//	GET /openapi.yaml  -> embedded OpenAPI spec
func Register(mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	index, err := Render(OpenAPI)
	if err != nil {
		panic(err)
	}

	mux.HandleFunc("/api-docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(index)
	})

	mux.HandleFunc("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		_, _ = w.Write(OpenAPI)
	})
}

var indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>{{.Title}}</title>
    <style>
      body{font-family:sans-serif;margin:2em;max-width:50em}
      code{background:#eee;padding:0 .3em}
      td{padding:.2em .8em;vertical-align:top}
    </style>
  </head>
  <body>
    <h1>{{.Title}} <small>v{{.Version}}</small></h1>
    <p>{{.Description}}</p>
    <p>Raw spec: <a href="/openapi.yaml">openapi.yaml</a></p>
    {{range .Routes}}
    <h2><code>{{.Method}} {{.Path}}</code></h2>
    <p>{{.Summary}}</p>
    <table>{{range .Responses}}<tr><td>{{.Status}}</td><td>{{.Description}}</td></tr>{{end}}</table>
    {{end}}
  </body>
</html>
`))
