// Package static holds the browser-side worker script served at /sw.js.
package static

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"text/template"
)

//go:embed sw.js.tmpl
var serviceWorkerJS string

var serviceWorkerTmpl = template.Must(template.New("sw.js").Funcs(template.FuncMap{
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
}).Parse(serviceWorkerJS))

// ServiceWorkerParams are the values baked into the script.
type ServiceWorkerParams struct {
	CacheName   string
	URLsToCache []string
}

// RenderServiceWorker renders the browser worker script for the given cache version.
func RenderServiceWorker(p ServiceWorkerParams) ([]byte, error) {
	if p.URLsToCache == nil {
		p.URLsToCache = []string{}
	}
	var buf bytes.Buffer
	if err := serviceWorkerTmpl.Execute(&buf, p); err != nil {
		return nil, fmt.Errorf("render sw.js: %w", err)
	}
	return buf.Bytes(), nil
}
